// Package session hosts the top-level coordinator for one editing session.
// The Controller owns the conversation history, the staged preview and all
// canvas interaction; generation runs on a single background worker per
// session, and its output reaches subscribers through the hub as an ordered
// event stream.
package session

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genpanel/internal/batch"
	"genpanel/internal/canvas"
	"genpanel/internal/domain"
	"genpanel/internal/gateway"
	"genpanel/internal/history"
	"genpanel/internal/preview"
	"genpanel/internal/settings"
)

const noImageNotice = "The model did not return an image. Try rephrasing your prompt."

// Gateway is the model-facing surface the controller drives.
type Gateway interface {
	batch.Conversationalist
	EnhancePrompt(ctx context.Context, raw string, images []image.Image) gateway.StructuredPrompt
}

// SendRequest is the send intent. BatchSize zero keeps the stored setting;
// a positive value is validated, persisted and used for this batch.
type SendRequest struct {
	Prompt    string
	BatchSize int
}

// StagedInfo is the wire-friendly view of the staged preview.
type StagedInfo struct {
	Seed     int32           `json:"seed"`
	Geometry domain.Geometry `json:"geometry"`
}

// Status is a point-in-time snapshot of the session for the presentation
// layer.
type Status struct {
	Busy       bool        `json:"busy"`
	HistoryLen int         `json:"history_len"`
	Staged     *StagedInfo `json:"staged,omitempty"`
}

// Controller coordinates intents, the generation worker and shared session
// state. At most one worker is active at a time; Send, Retry, Enhance, Undo
// and Reset are rejected with domain.ErrBusy while one runs. SelectImage,
// Commit and Discard stay available so results can be staged as they arrive.
type Controller struct {
	gw     Gateway
	host   canvas.Host
	store  *settings.Store
	hist   *history.History
	orc    *batch.Orchestrator
	prev   *preview.Reconciler
	hub    *Hub
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	busy      bool
	geometry  domain.Geometry
	artifacts map[int32]domain.Artifact
	order     []domain.Artifact
}

// Option tunes controller construction.
type Option func(*options)

type options struct {
	batchOpts []batch.Option
}

// WithBatchOptions forwards options to the batch orchestrator (tests disable
// the inter-item delay this way).
func WithBatchOptions(opts ...batch.Option) Option {
	return func(o *options) { o.batchOpts = append(o.batchOpts, opts...) }
}

// New constructs a controller over a gateway, canvas host and settings store.
func New(gw Gateway, host canvas.Host, store *settings.Store, logger zerolog.Logger, opts ...Option) *Controller {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	hist := history.New()
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		gw:        gw,
		host:      host,
		store:     store,
		hist:      hist,
		orc:       batch.New(gw, hist, logger, o.batchOpts...),
		prev:      preview.New(host, logger),
		hub:       NewHub(),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		artifacts: make(map[int32]domain.Artifact),
	}
}

// Subscribe attaches a new event stream consumer. The cancel function must
// be called when the consumer goes away.
func (c *Controller) Subscribe() (*Queue, func()) {
	return c.hub.Subscribe()
}

// Status reports the current session state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{Busy: c.busy, HistoryLen: c.hist.Len()}
	if p := c.prev.Staged(); p != nil {
		st.Staged = &StagedInfo{Seed: p.Seed, Geometry: p.Geometry}
	}
	return st
}

// Send starts a generation batch from the user's prompt and the current
// canvas context. Any staged preview is discarded first. Returns
// domain.ErrBusy while a worker is active.
func (c *Controller) Send(req SendRequest) error {
	if err := c.acquire(); err != nil {
		return err
	}
	if err := c.beginBatch(req.Prompt, req.BatchSize); err != nil {
		c.setBusy(false)
		return err
	}
	return nil
}

// Retry undoes the last exchange and re-sends its user prompt against the
// current canvas context. It returns the recovered prompt so the
// presentation layer can rewind its visible log to match.
func (c *Controller) Retry() (string, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return "", domain.ErrBusy
	}
	turns := c.hist.AsRequestContext()
	if len(turns) < 2 {
		c.mu.Unlock()
		return "", domain.ErrNothingToRetry
	}
	prompt := turns[len(turns)-2].Text()
	if err := c.hist.UndoLastExchange(); err != nil {
		c.mu.Unlock()
		return "", err
	}
	c.busy = true
	c.mu.Unlock()

	if err := c.beginBatch(prompt, 0); err != nil {
		c.setBusy(false)
		return "", err
	}
	return prompt, nil
}

// Enhance expands raw user text into a structured prompt and, when the
// expansion succeeds, immediately sends it. Enhancement and the downstream
// batch share one busy state. An error-shaped result is returned without
// sending; its FinalPrompt explains the failure.
func (c *Controller) Enhance(ctx context.Context, raw string) (gateway.StructuredPrompt, error) {
	if err := c.acquire(); err != nil {
		return gateway.StructuredPrompt{}, err
	}
	cctx, err := c.host.SmartContext()
	if err != nil {
		c.setBusy(false)
		return gateway.StructuredPrompt{}, err
	}
	p := c.gw.EnhancePrompt(ctx, raw, cctx.Images)
	if p.Failed() {
		c.logger.Warn().Str("message", p.FinalPrompt).Msg("session: prompt enhancement failed")
		c.setBusy(false)
		return p, nil
	}
	if err := c.beginBatch(p.MachineJSON(), 0); err != nil {
		c.setBusy(false)
		return p, err
	}
	return p, nil
}

// Undo removes the last exchange from the history and discards any staged
// preview from it.
func (c *Controller) Undo() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return domain.ErrBusy
	}
	if err := c.hist.UndoLastExchange(); err != nil {
		return err
	}
	c.prev.Discard()
	return nil
}

// Reset clears the conversation and discards any staged preview. Persisted
// configuration is not affected.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return domain.ErrBusy
	}
	c.hist.Reset()
	c.prev.Discard()
	return nil
}

// SelectImage stages the produced image with the given seed at the batch's
// placement geometry, superseding any currently staged preview. Allowed
// while a batch is still running so results can be staged as they arrive.
func (c *Controller) SelectImage(seed int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.artifacts[seed]
	if !ok {
		return domain.ErrUnknownSeed
	}
	return c.prev.Stage(a.Image, a.Seed, c.geometry)
}

// Commit finalizes the staged preview under the given name (or "AI Gen
// <seed>" when empty) and returns it. The staging slot is empty afterwards.
func (c *Controller) Commit(name string) (domain.StagedPreview, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prev.Commit(name)
}

// Discard drops the staged preview, removing its layer from the canvas.
func (c *Controller) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prev.Discard()
}

// Artifacts returns the images produced by the most recent batch, in
// production order.
func (c *Controller) Artifacts() []domain.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Artifact, len(c.order))
	copy(out, c.order)
	return out
}

// Close stops the background worker and waits for it to finish.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return domain.ErrBusy
	}
	c.busy = true
	return nil
}

func (c *Controller) setBusy(v bool) {
	c.mu.Lock()
	c.busy = v
	c.mu.Unlock()
}

// beginBatch snapshots the canvas, resolves generation parameters and starts
// the worker. The caller must hold the busy flag; on error the caller
// releases it.
func (c *Controller) beginBatch(prompt string, batchSize int) error {
	if batchSize >= 1 {
		if err := c.store.Set(settings.KeyBatchSize, batchSize); err != nil {
			return fmt.Errorf("session: persist batch size: %w", err)
		}
	}
	c.Discard()

	cctx, err := c.host.SmartContext()
	if err != nil {
		return err
	}
	ratio := c.store.AspectRatio()
	if ratio == settings.AspectRatioNative {
		ratio = cctx.AspectRatio
	}
	req := batch.Request{
		Prompt:      prompt,
		Images:      cctx.Images,
		Model:       c.store.Model(),
		AspectRatio: ratio,
		Count:       c.store.BatchSize(),
	}

	c.mu.Lock()
	c.geometry = cctx.Geometry
	c.artifacts = make(map[int32]domain.Artifact)
	c.order = nil
	c.mu.Unlock()

	batchID := uuid.NewString()
	c.logger.Info().
		Str("batch_id", batchID).
		Str("model", req.Model).
		Str("aspect_ratio", req.AspectRatio).
		Int("count", req.Count).
		Str("context", cctx.Description).
		Msg("session: starting batch")

	c.wg.Add(1)
	go c.runBatch(batchID, req)
	return nil
}

func (c *Controller) runBatch(batchID string, req batch.Request) {
	defer c.wg.Done()
	defer c.setBusy(false)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("batch_id", batchID).Any("panic", r).Msg("session: worker panicked")
			c.hub.Publish(domain.FatalErrorEvent(fmt.Sprintf("internal error: %v", r)))
		}
	}()

	produced, err := c.orc.Run(c.ctx, req, c.dispatch)
	if err != nil {
		c.hub.Publish(domain.FatalErrorEvent(err.Error()))
		return
	}
	if produced == 0 {
		c.hub.Publish(domain.NoticeEvent(noImageNotice))
	}
	c.logger.Info().Str("batch_id", batchID).Int("produced", produced).Msg("session: batch finished")
}

// dispatch records produced images, auto-stages the latest one at the
// batch's geometry, and forwards every event to subscribers in order.
func (c *Controller) dispatch(ev domain.Event) {
	if ev.Kind == domain.EventImageProduced && ev.Artifact != nil {
		a := *ev.Artifact
		c.mu.Lock()
		c.artifacts[a.Seed] = a
		c.order = append(c.order, a)
		if err := c.prev.Stage(a.Image, a.Seed, c.geometry); err != nil {
			c.logger.Warn().Err(err).Int32("seed", a.Seed).Msg("session: auto-stage failed")
		}
		c.mu.Unlock()
	}
	c.hub.Publish(ev)
}
