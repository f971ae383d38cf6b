package domain

import "image"

// Geometry is a placement rectangle on the canvas.
type Geometry struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// CanvasContext is a transient snapshot of canvas content taken immediately
// before a generation request. Images is empty in text-to-image mode and holds
// one entry (or several in multi-layer composition mode) otherwise. Never
// cached across requests.
type CanvasContext struct {
	Images      []image.Image
	Geometry    Geometry
	Description string
	AspectRatio string
}

// GenerationRequest describes one model call inside a batch. Primary requests
// extend the session history; variations are stateless.
type GenerationRequest struct {
	Prompt      string
	Images      []image.Image
	AspectRatio string
	Model       string
	Seed        int32
	Primary     bool
}

// Artifact is one produced image tagged with its generating seed and the batch
// index it came from.
type Artifact struct {
	Image      image.Image
	PNG        []byte
	Seed       int32
	BatchIndex int
}

// GenerationResult accumulates the outcome of a single batch item.
type GenerationResult struct {
	Artifacts []Artifact
	Text      string
	Err       string
}

// StagedPreview is the single uncommitted generated image reconciled against
// the canvas, plus its placement and originating seed.
type StagedPreview struct {
	Image    image.Image
	Seed     int32
	Geometry Geometry
}
