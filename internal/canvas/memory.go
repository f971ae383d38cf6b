package canvas

import (
	"errors"
	"image"
	"image/color"
	"sync"

	xdraw "golang.org/x/image/draw"

	"genpanel/internal/domain"
	"genpanel/internal/imgutil"
)

// MemoryDocument is an in-memory Document backend. The standalone daemon uses
// it as its canvas (optionally seeded from a decoded image); tests use it as
// the host fake. Layers compose bottom-up over a solid background.
type MemoryDocument struct {
	mu         sync.Mutex
	width      int
	height     int
	background color.NRGBA
	layers     []*memoryLayer
	selection  *domain.Geometry
	selected   []string
}

type memoryLayer struct {
	name    string
	img     *image.RGBA
	bounds  domain.Geometry
	visible bool
}

// NewMemoryDocument creates a blank white document, matching a fresh editor
// document.
func NewMemoryDocument(width, height int) *MemoryDocument {
	return &MemoryDocument{
		width:      width,
		height:     height,
		background: color.NRGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// NewMemoryDocumentFromImage seeds a document with a base layer holding the
// given image.
func NewMemoryDocumentFromImage(img image.Image) *MemoryDocument {
	b := img.Bounds()
	doc := NewMemoryDocument(b.Dx(), b.Dy())
	_ = doc.SetLayerPixels("Background", img, domain.Geometry{W: b.Dx(), H: b.Dy()})
	return doc
}

// SetBackground overrides the background color (a transparent background
// makes a blank document read as empty via the alpha path).
func (d *MemoryDocument) SetBackground(c color.NRGBA) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.background = c
}

// SetSelection sets or clears (nil) the active selection rectangle.
func (d *MemoryDocument) SetSelection(g *domain.Geometry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selection = g
}

// SetSelectedLayers marks the named layers as selected for the multi-layer
// composition mode.
func (d *MemoryDocument) SetSelectedLayers(names ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selected = names
}

func (d *MemoryDocument) Size() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

func (d *MemoryDocument) Selection() (domain.Geometry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.selection == nil {
		return domain.Geometry{}, false
	}
	return *d.selection, true
}

func (d *MemoryDocument) SelectedLayerNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.selected))
	copy(out, d.selected)
	return out
}

func (d *MemoryDocument) LayerImage(name string) (image.Image, domain.Geometry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.findLayer(name)
	if l == nil || l.bounds.W == 0 || l.bounds.H == 0 {
		return nil, domain.Geometry{}, false
	}
	return l.img, l.bounds, true
}

func (d *MemoryDocument) Snapshot(g domain.Geometry) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if g.W <= 0 || g.H <= 0 {
		return nil, errors.New("canvas: empty snapshot region")
	}

	full := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	bg := image.NewUniform(d.background)
	xdraw.Draw(full, full.Bounds(), bg, image.Point{}, xdraw.Src)
	for _, l := range d.layers {
		if !l.visible {
			continue
		}
		dst := image.Rect(l.bounds.X, l.bounds.Y, l.bounds.X+l.bounds.W, l.bounds.Y+l.bounds.H)
		xdraw.Draw(full, dst, l.img, l.img.Bounds().Min, xdraw.Over)
	}

	out := image.NewRGBA(image.Rect(0, 0, g.W, g.H))
	xdraw.Draw(out, out.Bounds(), full, image.Pt(g.X, g.Y), xdraw.Src)
	return out, nil
}

func (d *MemoryDocument) LayerVisible(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.findLayer(name)
	return l != nil && l.visible
}

func (d *MemoryDocument) SetLayerVisible(name string, visible bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l := d.findLayer(name); l != nil {
		l.visible = visible
	}
}

func (d *MemoryDocument) SetLayerPixels(name string, img image.Image, g domain.Geometry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rgba := imgutil.ToRGBA(img)
	b := rgba.Bounds()
	bounds := domain.Geometry{X: g.X, Y: g.Y, W: b.Dx(), H: b.Dy()}
	if l := d.findLayer(name); l != nil {
		l.img = rgba
		l.bounds = bounds
		l.visible = true
		return nil
	}
	d.layers = append(d.layers, &memoryLayer{name: name, img: rgba, bounds: bounds, visible: true})
	return nil
}

func (d *MemoryDocument) RemoveLayer(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, l := range d.layers {
		if l.name == name {
			d.layers = append(d.layers[:i], d.layers[i+1:]...)
			return true
		}
	}
	return false
}

func (d *MemoryDocument) RenameLayer(oldName, newName string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l := d.findLayer(oldName); l != nil {
		l.name = newName
		return true
	}
	return false
}

// Refresh is a no-op: the in-memory projection is composed on demand.
func (d *MemoryDocument) Refresh() {}

// LayerNames lists the current layers bottom-up.
func (d *MemoryDocument) LayerNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.layers))
	for _, l := range d.layers {
		out = append(out, l.name)
	}
	return out
}

func (d *MemoryDocument) findLayer(name string) *memoryLayer {
	for _, l := range d.layers {
		if l.name == name {
			return l
		}
	}
	return nil
}

var _ Document = (*MemoryDocument)(nil)
