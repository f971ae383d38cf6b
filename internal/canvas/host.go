package canvas

import (
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"genpanel/internal/domain"
	"genpanel/internal/imgutil"
)

// DocumentHost implements Host on top of a Document, carrying the smart
// text-vs-image detection and the staging-layer hygiene the session core
// relies on.
type DocumentHost struct {
	docs   DocumentProvider
	logger zerolog.Logger
}

// NewDocumentHost constructs a host over the given document provider.
func NewDocumentHost(docs DocumentProvider, logger zerolog.Logger) *DocumentHost {
	return &DocumentHost{docs: docs, logger: logger}
}

// SmartContext extracts the generation context. The staging layer is hidden
// for the duration of the pixel snapshot and restored afterwards so prior
// generations never contaminate the next request's input.
func (h *DocumentHost) SmartContext() (domain.CanvasContext, error) {
	doc := h.docs.ActiveDocument()
	if doc == nil {
		return domain.CanvasContext{}, domain.ErrNoDocument
	}

	docW, docH := doc.Size()

	// Multi-layer override: more than one selected compatible layer becomes
	// a composition context, one reference image per layer.
	if names := doc.SelectedLayerNames(); len(names) > 1 {
		var images []image.Image
		for _, name := range names {
			if name == StagingLayerName {
				continue
			}
			img, _, ok := doc.LayerImage(name)
			if !ok || imgutil.IsEmpty(img) {
				continue
			}
			images = append(images, imgutil.DownscaleToFit(img, imgutil.MaxContextDimension))
		}
		h.logger.Info().Int("layers", len(images)).Msg("canvas: multi-layer context")
		return domain.CanvasContext{
			Images:      images,
			Geometry:    domain.Geometry{W: docW, H: docH},
			Description: fmt.Sprintf("%d Layers (Smart)", len(images)),
			AspectRatio: imgutil.NearestAspectRatio(docW, docH),
		}, nil
	}

	geom := domain.Geometry{W: docW, H: docH}
	desc := "Canvas"
	if sel, ok := doc.Selection(); ok {
		geom = sel
		desc = "Region"
	}

	restore := h.hideStagingLayer(doc)
	defer restore()

	snap, err := doc.Snapshot(geom)
	if err != nil {
		return domain.CanvasContext{}, fmt.Errorf("canvas: snapshot: %w", err)
	}

	ctx := domain.CanvasContext{
		Geometry:    geom,
		AspectRatio: imgutil.NearestAspectRatio(geom.W, geom.H),
	}
	if imgutil.IsEmpty(snap) {
		h.logger.Info().Msg("canvas: content empty, text-to-image mode")
		ctx.Description = desc + " (Empty)"
	} else {
		h.logger.Info().Msg("canvas: content found, image-to-image mode")
		ctx.Images = []image.Image{imgutil.DownscaleToFit(snap, imgutil.MaxContextDimension)}
		ctx.Description = desc + " (Ref)"
	}
	return ctx, nil
}

// hideStagingLayer makes the staging layer invisible and returns a function
// restoring the previous visibility. The projection is refreshed on both
// transitions so Snapshot observes the change.
func (h *DocumentHost) hideStagingLayer(doc Document) func() {
	if !doc.LayerVisible(StagingLayerName) {
		return func() {}
	}
	doc.SetLayerVisible(StagingLayerName, false)
	doc.Refresh()
	return func() {
		doc.SetLayerVisible(StagingLayerName, true)
		doc.Refresh()
	}
}

// WriteStagingLayer creates or overwrites the staging layer at the given
// geometry. The image is resampled to the target dimensions when they differ
// by more than one pixel in either direction.
func (h *DocumentHost) WriteStagingLayer(img image.Image, g domain.Geometry) error {
	doc := h.docs.ActiveDocument()
	if doc == nil {
		return domain.ErrNoDocument
	}
	if g.W > 0 && g.H > 0 {
		b := img.Bounds()
		if abs(b.Dx()-g.W) > 1 || abs(b.Dy()-g.H) > 1 {
			h.logger.Info().
				Int("from_w", b.Dx()).Int("from_h", b.Dy()).
				Int("to_w", g.W).Int("to_h", g.H).
				Msg("canvas: interpolating staged image")
			img = imgutil.ResizeExact(img, g.W, g.H)
		}
	}
	if err := doc.SetLayerPixels(StagingLayerName, img, g); err != nil {
		return fmt.Errorf("canvas: write staging layer: %w", err)
	}
	doc.Refresh()
	return nil
}

// RemoveStagingLayer deletes the staging layer if it exists.
func (h *DocumentHost) RemoveStagingLayer() {
	doc := h.docs.ActiveDocument()
	if doc == nil {
		return
	}
	if doc.RemoveLayer(StagingLayerName) {
		doc.Refresh()
	}
}

// RenameStagingLayer finalizes the staging layer under a permanent name; the
// next WriteStagingLayer starts a fresh layer.
func (h *DocumentHost) RenameStagingLayer(name string) error {
	doc := h.docs.ActiveDocument()
	if doc == nil {
		return domain.ErrNoDocument
	}
	if !doc.RenameLayer(StagingLayerName, name) {
		return domain.ErrNothingStaged
	}
	return nil
}

// Size returns the active document dimensions, or zeros without a document.
func (h *DocumentHost) Size() (int, int) {
	doc := h.docs.ActiveDocument()
	if doc == nil {
		return 0, 0
	}
	return doc.Size()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var _ Host = (*DocumentHost)(nil)
