// Package preview maintains the single uncommitted generated image staged
// against the canvas. The reconciler is a two-state machine (empty/staged);
// staging always supersedes, never stacks, so the canvas carries at most one
// staging layer at any time.
package preview

import (
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"genpanel/internal/canvas"
	"genpanel/internal/domain"
)

// Reconciler owns the staged-preview slot. It is the only component allowed
// to write the staging layer. Not safe for concurrent use; the session
// controller serializes access.
type Reconciler struct {
	host   canvas.Host
	staged *domain.StagedPreview
	logger zerolog.Logger
}

// New constructs an empty reconciler over the given canvas host.
func New(host canvas.Host, logger zerolog.Logger) *Reconciler {
	return &Reconciler{host: host, logger: logger}
}

// Stage makes the given image the current preview at the given placement,
// replacing any previously staged content.
func (r *Reconciler) Stage(img image.Image, seed int32, g domain.Geometry) error {
	if img == nil {
		return fmt.Errorf("preview: nil image")
	}
	if err := r.host.WriteStagingLayer(img, g); err != nil {
		return err
	}
	r.staged = &domain.StagedPreview{Image: img, Seed: seed, Geometry: g}
	r.logger.Info().Int32("seed", seed).Msg("preview: staged")
	return nil
}

// Staged returns the current preview, or nil when the slot is empty.
func (r *Reconciler) Staged() *domain.StagedPreview {
	return r.staged
}

// Discard removes the staging layer from the canvas and empties the slot.
// Discarding an empty slot is a no-op.
func (r *Reconciler) Discard() {
	r.host.RemoveStagingLayer()
	r.staged = nil
}

// Commit finalizes the staged content under a permanent layer name and
// returns the committed preview. The slot empties afterwards so a subsequent
// selection starts a fresh staging cycle.
func (r *Reconciler) Commit(name string) (domain.StagedPreview, error) {
	if r.staged == nil {
		return domain.StagedPreview{}, domain.ErrNothingStaged
	}
	if name == "" {
		name = fmt.Sprintf("AI Gen %d", r.staged.Seed)
	}
	if err := r.host.RenameStagingLayer(name); err != nil {
		return domain.StagedPreview{}, err
	}
	committed := *r.staged
	r.staged = nil
	r.logger.Info().Str("layer", name).Msg("preview: committed")
	return committed, nil
}
