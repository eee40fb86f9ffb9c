package models

import "time"

// Mood is the emotional state fed into narrative and styling calls.
type Mood struct {
	Valence     float64   `json:"valence"   validate:"gte=-1,lte=1"`
	Arousal     float64   `json:"arousal"   validate:"gte=0,lte=1"`
	Dominance   float64   `json:"dominance" validate:"gte=0,lte=1"`
	Thought     string    `json:"current_thought,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Script is the output of the narrative capability.
type Script struct {
	Title    string `json:"title"    validate:"required"`
	Body     string `json:"script"   validate:"required"`
	Caption  string `json:"caption"`
	Duration int    `json:"estimated_duration"`
	// Attention carries retention metadata (hook intensity, pattern
	// interrupts) passed through to staging untouched.
	Attention map[string]any `json:"attention_metadata,omitempty"`
}

// SceneLayout is the environmental setup chosen for a scene.
type SceneLayout struct {
	LocationID  string   `json:"location_id" validate:"required"`
	Objects     []string `json:"selected_objects"`
	Description string   `json:"scene_description"`
	Lighting    string   `json:"lighting_override,omitempty"`
}

// LookSelection is the wardrobe and prop choice for a scene.
type LookSelection struct {
	ItemIDs       []string `json:"item_ids"`
	PropIDs       []string `json:"prop_ids"`
	StylistNote   string   `json:"stylist_note"`
	VisualDetails string   `json:"visual_details"`
}

// WorldRegistry lists the known locations and recurring objects a layout
// may draw from. Loading registry data is a collaborator concern; the
// core only threads it through.
type WorldRegistry struct {
	Locations []Location `json:"locations"`
}

// Location is one known place in the world registry.
type Location struct {
	ID          string   `json:"location_id" validate:"required"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ObjectIDs   []string `json:"object_ids"`
}

// WardrobeRegistry lists the known wardrobe items and props.
type WardrobeRegistry struct {
	Items []WardrobeItem `json:"items"`
	Props []Prop         `json:"props"`
}

// WardrobeItem is one known outfit piece.
type WardrobeItem struct {
	ID          string   `json:"item_id" validate:"required"`
	Name        string   `json:"name"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
}

// Prop is one known recurring prop.
type Prop struct {
	ID          string `json:"prop_id" validate:"required"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
