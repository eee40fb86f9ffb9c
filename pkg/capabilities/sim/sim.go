// Package sim provides deterministic in-process implementations of
// every capability interface. They are used by the CLI's dry-run mode
// and by tests that exercise the pipeline without external services.
package sim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/voxmuse/atelier/pkg/capabilities"
	"github.com/voxmuse/atelier/pkg/models"
)

// Narrator writes a short templated script from the topic.
type Narrator struct{}

func (Narrator) GenerateNarrative(_ context.Context, topic string, mood *models.Mood) (*models.Script, error) {
	tone := "neutral"
	if mood != nil {
		switch {
		case mood.Valence > 0.3:
			tone = "upbeat"
		case mood.Valence < -0.3:
			tone = "somber"
		}
	}

	return &models.Script{
		Title:    fmt.Sprintf("On %s", topic),
		Body:     fmt.Sprintf("A %s reflection on %s, told in one continuous take.", tone, topic),
		Caption:  fmt.Sprintf("today: %s", topic),
		Duration: 8,
		Attention: map[string]any{
			"hook_intensity": 0.6,
		},
	}, nil
}

// SceneArchitect always picks the first registry location.
type SceneArchitect struct{}

func (SceneArchitect) PlanLayout(_ context.Context, script *models.Script, world *models.WorldRegistry) (*models.SceneLayout, error) {
	if world == nil || len(world.Locations) == 0 {
		return nil, fmt.Errorf("world registry has no locations")
	}

	loc := world.Locations[0]

	return &models.SceneLayout{
		LocationID:  loc.ID,
		Objects:     loc.ObjectIDs,
		Description: fmt.Sprintf("%s, framed for %q", loc.Description, script.Title),
	}, nil
}

// Stylist picks the first wardrobe item and prop.
type Stylist struct{}

func (Stylist) SelectLook(_ context.Context, _ *models.Script, layout *models.SceneLayout, _ *models.Mood, wardrobe *models.WardrobeRegistry) (*models.LookSelection, error) {
	sel := &models.LookSelection{StylistNote: "default look"}
	if wardrobe != nil {
		if len(wardrobe.Items) > 0 {
			item := wardrobe.Items[0]
			sel.ItemIDs = []string{item.ID}
			sel.VisualDetails = item.Description
		}
		if len(wardrobe.Props) > 0 {
			sel.PropIDs = []string{wardrobe.Props[0].ID}
		}
	}
	if sel.VisualDetails == "" {
		sel.VisualDetails = "plain outfit matching " + layout.LocationID
	}

	return sel, nil
}

// ImageStudio produces deterministic byte payloads derived from its
// inputs, so tests can assert that edits actually changed the candidate.
type ImageStudio struct{}

func (ImageStudio) GenerateImage(_ context.Context, prompt string, refs capabilities.ImageRefs) ([]byte, error) {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write(refs.Identity)
	h.Write(refs.Location)

	return []byte("img:" + hex.EncodeToString(h.Sum(nil))[:16]), nil
}

func (ImageStudio) EditImage(_ context.Context, prompt string, base []byte, mask models.BoundingBox) ([]byte, error) {
	h := sha256.New()
	h.Write(base)
	h.Write([]byte(prompt))
	h.Write([]byte(fmt.Sprint(mask)))

	return []byte("img:" + hex.EncodeToString(h.Sum(nil))[:16]), nil
}

func (ImageStudio) DetectRegion(_ context.Context, _ []byte, feature string) (*models.BoundingBox, error) {
	if strings.Contains(feature, "missing") {
		return nil, nil
	}

	return &models.BoundingBox{100, 100, 400, 400}, nil
}

// Critic approves everything with a fixed high score.
type Critic struct {
	Score float64
}

func (c Critic) CompareIdentity(_ context.Context, _ []byte, _ []byte) (*models.QAReport, error) {
	score := c.Score
	if score == 0 {
		score = 0.99
	}

	return &models.QAReport{
		Consistent:    true,
		IdentityScore: score,
		SemanticScore: score,
		Decision:      models.QAApproved,
	}, nil
}

// Director returns a deterministic payload derived from the seed image.
type Director struct{}

func (Director) GenerateVideo(_ context.Context, prompt string, seedImage []byte) ([]byte, error) {
	h := sha256.Sum256(append(append([]byte{}, seedImage...), prompt...))

	return []byte("vid:" + hex.EncodeToString(h[:])[:16]), nil
}

// Stager returns a stable review path without moving any bytes.
type Stager struct{}

func (Stager) StageForReview(_ context.Context, artifacts *models.Artifacts, account string) (string, error) {
	return fmt.Sprintf("reviews/%s/%s", account, artifacts.TaskID), nil
}

// AssetLibrary returns small deterministic reference payloads.
type AssetLibrary struct{}

func (AssetLibrary) IdentityReference(_ context.Context, subjectID string) ([]byte, error) {
	return []byte("ref:identity:" + subjectID), nil
}

func (AssetLibrary) LocationReference(_ context.Context, locationID string) ([]byte, error) {
	return []byte("ref:location:" + locationID), nil
}

func (AssetLibrary) ItemReferences(_ context.Context, itemIDs []string) ([][]byte, error) {
	refs := make([][]byte, 0, len(itemIDs))
	for _, id := range itemIDs {
		refs = append(refs, []byte("ref:item:"+id))
	}

	return refs, nil
}

// NewSet returns a full collaborator set backed by the simulators.
func NewSet() *capabilities.Set {
	return &capabilities.Set{
		Narrator:  Narrator{},
		Architect: SceneArchitect{},
		Stylist:   Stylist{},
		Studio:    ImageStudio{},
		Critic:    Critic{},
		Director:  Director{},
		Stager:    Stager{},
		Assets:    AssetLibrary{},
	}
}
