// Package capabilities defines the collaborator interfaces the
// production pipeline calls out to. The core depends only on these
// signatures; the generative services behind them are external.
package capabilities

import (
	"context"

	"github.com/voxmuse/atelier/pkg/models"
)

// Narrator produces the script for a production intent.
type Narrator interface {
	GenerateNarrative(ctx context.Context, topic string, mood *models.Mood) (*models.Script, error)
}

// SceneArchitect selects the location and recurring objects for a script.
type SceneArchitect interface {
	PlanLayout(ctx context.Context, script *models.Script, world *models.WorldRegistry) (*models.SceneLayout, error)
}

// Stylist selects wardrobe and props for a planned scene.
type Stylist interface {
	SelectLook(ctx context.Context, script *models.Script, layout *models.SceneLayout, mood *models.Mood, wardrobe *models.WardrobeRegistry) (*models.LookSelection, error)
}

// ImageRefs bundles the reference assets an image generation is
// conditioned on.
type ImageRefs struct {
	Identity []byte
	Location []byte
	Items    [][]byte
}

// ImageStudio generates and repairs candidate images.
type ImageStudio interface {
	GenerateImage(ctx context.Context, prompt string, refs ImageRefs) ([]byte, error)

	// EditImage applies a localized edit to the existing candidate
	// inside the masked region, leaving the rest untouched.
	EditImage(ctx context.Context, prompt string, base []byte, mask models.BoundingBox) ([]byte, error)

	// DetectRegion locates a described feature. A nil box means the
	// feature could not be found.
	DetectRegion(ctx context.Context, image []byte, feature string) (*models.BoundingBox, error)
}

// Critic audits a candidate image against the identity reference.
type Critic interface {
	CompareIdentity(ctx context.Context, candidate []byte, reference []byte) (*models.QAReport, error)
}

// Director turns the finalized image and prompt into video.
type Director interface {
	GenerateVideo(ctx context.Context, prompt string, seedImage []byte) ([]byte, error)
}

// Stager hands finished artifacts to review storage and returns the
// staged location.
type Stager interface {
	StageForReview(ctx context.Context, artifacts *models.Artifacts, account string) (string, error)
}

// AssetLibrary resolves the persistent reference assets a run needs.
type AssetLibrary interface {
	IdentityReference(ctx context.Context, subjectID string) ([]byte, error)
	LocationReference(ctx context.Context, locationID string) ([]byte, error)
	ItemReferences(ctx context.Context, itemIDs []string) ([][]byte, error)
}

// Set bundles every collaborator the pipeline needs. All fields must be
// non-nil.
type Set struct {
	Narrator  Narrator
	Architect SceneArchitect
	Stylist   Stylist
	Studio    ImageStudio
	Critic    Critic
	Director  Director
	Stager    Stager
	Assets    AssetLibrary
}
