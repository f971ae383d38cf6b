// Package canvas abstracts the image-editing host. The session core only ever
// talks to the Host interface; the Document interface underneath models the
// narrow slice of an editor document (pixels, selection, named layers) the
// host implementation needs.
package canvas

import (
	"image"

	"genpanel/internal/domain"
)

// StagingLayerName is the single well-known layer holding the uncommitted
// generated image.
const StagingLayerName = "Generated Preview"

// Host is the contract the preview reconciler and session controller consume.
type Host interface {
	// SmartContext extracts the generation context from the current editor
	// state: selection-or-full-canvas pixels with text-vs-image detection,
	// placement geometry, a UI description, and a derived aspect-ratio label.
	SmartContext() (domain.CanvasContext, error)

	// WriteStagingLayer creates or updates the staging layer at the given
	// geometry, resizing the image to fit when dimensions differ by more
	// than one pixel.
	WriteStagingLayer(img image.Image, g domain.Geometry) error

	// RemoveStagingLayer deletes the staging layer if present.
	RemoveStagingLayer()

	// RenameStagingLayer finalizes the staging layer under a permanent name.
	RenameStagingLayer(name string) error

	// Size returns the canvas dimensions, or zeros when no document is open.
	Size() (width, height int)
}

// Document is the low-level editor document surface.
type Document interface {
	// Size returns the document dimensions.
	Size() (width, height int)

	// Selection returns the active selection rectangle, if any.
	Selection() (domain.Geometry, bool)

	// SelectedLayerNames lists the currently selected compatible layers.
	SelectedLayerNames() []string

	// LayerImage returns a layer's pixels and bounds. ok is false when the
	// layer does not exist or has empty bounds.
	LayerImage(name string) (img image.Image, bounds domain.Geometry, ok bool)

	// Snapshot composes the visible layers over the document background and
	// returns the pixels of the given region.
	Snapshot(g domain.Geometry) (image.Image, error)

	// LayerVisible reports a layer's visibility; missing layers are not
	// visible.
	LayerVisible(name string) bool

	// SetLayerVisible toggles a layer's visibility.
	SetLayerVisible(name string, visible bool)

	// SetLayerPixels creates or replaces a layer's content at the given
	// placement.
	SetLayerPixels(name string, img image.Image, g domain.Geometry) error

	// RemoveLayer deletes a layer, reporting whether it existed.
	RemoveLayer(name string) bool

	// RenameLayer renames a layer, reporting whether it existed.
	RenameLayer(oldName, newName string) bool

	// Refresh forces the composed projection to reflect pending layer
	// changes before the next Snapshot.
	Refresh()
}

// DocumentProvider yields the active document, or nil when none is open.
// It mirrors the editor's "active document" accessor so the host keeps
// working across document switches.
type DocumentProvider interface {
	ActiveDocument() Document
}

// StaticProvider wraps a fixed document, used by the standalone daemon and
// tests.
type StaticProvider struct {
	Doc Document
}

func (p StaticProvider) ActiveDocument() Document { return p.Doc }
