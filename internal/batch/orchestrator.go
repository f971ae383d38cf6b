// Package batch drives the N generation requests behind one user action.
// Item 0 is the primary request and extends the conversation history; items
// 1..N-1 are stateless variations with independent seeds. Items run strictly
// sequentially so at most one outbound request is in flight, and one item's
// failure never aborts the rest of the batch.
package batch

import (
	"context"
	"fmt"
	"image"
	"iter"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genpanel/internal/domain"
	"genpanel/internal/gateway"
	"genpanel/internal/history"
)

// DefaultItemDelay is the inter-request pause inside a batch. It mitigates
// provider rate limiting (empty responses under load), not correctness.
const DefaultItemDelay = 1500 * time.Millisecond

// Conversationalist is the slice of the model gateway the orchestrator uses.
type Conversationalist interface {
	Converse(ctx context.Context, prior []domain.Turn, user domain.Turn, cfg gateway.GenerateConfig) iter.Seq[gateway.StreamEvent]
	BuildUserTurn(prompt string, images []image.Image) domain.Turn
}

// Request describes one batched user action.
type Request struct {
	Prompt      string
	Images      []image.Image
	Model       string
	AspectRatio string
	Count       int
}

// Orchestrator executes batches against a gateway and the session history.
type Orchestrator struct {
	gw     Conversationalist
	hist   *history.History
	logger zerolog.Logger
	delay  time.Duration
	sleep  func(time.Duration)
	seed   func() int32
}

// Option tunes orchestration behavior.
type Option func(*Orchestrator)

// WithDelay overrides the inter-item delay; zero disables it (tests).
func WithDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.delay = d }
}

// WithSleep replaces the sleep function (tests).
func WithSleep(fn func(time.Duration)) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithSeedSource replaces the per-item seed source (tests).
func WithSeedSource(fn func() int32) Option {
	return func(o *Orchestrator) { o.seed = fn }
}

// New constructs an orchestrator bound to a gateway and history.
func New(gw Conversationalist, hist *history.History, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gw:     gw,
		hist:   hist,
		logger: logger,
		delay:  DefaultItemDelay,
		sleep:  time.Sleep,
		seed: func() int32 {
			return rand.Int32()
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the batch, forwarding progress, text and images through emit
// in production order. It returns the number of images produced across all
// items. A non-nil error means a batch-fatal setup failure (bad credentials,
// client misconfiguration); per-item failures are annotated through emit and
// do not surface as errors. On the non-fatal path exactly one terminal
// BatchFinished event is emitted after the last item.
func (o *Orchestrator) Run(ctx context.Context, req Request, emit func(domain.Event)) (int, error) {
	count := req.Count
	if count < 1 {
		count = 1
	}
	userTurn := o.gw.BuildUserTurn(req.Prompt, req.Images)
	produced := 0

	for i := 0; i < count; i++ {
		emit(domain.ProgressEvent(fmt.Sprintf("Generating %d/%d...", i+1, count)))
		if i > 0 && o.delay > 0 {
			o.sleep(o.delay)
		}

		seed := o.seed()
		cfg := gateway.GenerateConfig{Model: req.Model, Seed: seed, AspectRatio: req.AspectRatio}
		// Variations read whatever the history holds at their turn,
		// including the pair the primary item just appended.
		prior := o.hist.AsRequestContext()
		o.logger.Info().Int("item", i).Int32("seed", seed).Msg("batch: starting item")

		var fullText strings.Builder
		n, err := o.runItem(ctx, i, prior, userTurn, cfg, &fullText, emit)
		if err != nil {
			return produced, err
		}
		produced += n

		if i == 0 {
			o.completePrimary(userTurn, fullText.String())
		}
	}

	emit(domain.BatchFinishedEvent())
	return produced, nil
}

// runItem consumes one gateway stream, returning the images it produced.
func (o *Orchestrator) runItem(ctx context.Context, index int, prior []domain.Turn, userTurn domain.Turn, cfg gateway.GenerateConfig, fullText *strings.Builder, emit func(domain.Event)) (int, error) {
	produced := 0
	for ev := range o.gw.Converse(ctx, prior, userTurn, cfg) {
		switch ev.Kind {
		case gateway.KindText:
			if index == 0 {
				fullText.WriteString(ev.Text)
				emit(domain.TextDeltaEvent(ev.Text))
			}
		case gateway.KindImage:
			produced++
			emit(domain.ImageProducedEvent(domain.Artifact{
				Image:      ev.Image,
				PNG:        ev.PNG,
				Seed:       ev.Seed,
				BatchIndex: index,
			}))
		case gateway.KindError:
			if !ev.Recoverable {
				o.logger.Error().Str("message", ev.Message).Msg("batch: fatal setup failure")
				return produced, fmt.Errorf("batch: %s", strings.TrimSpace(ev.Message))
			}
			o.logger.Warn().Int("item", index).Str("message", ev.Message).Msg("batch: item failed")
			if index == 0 {
				fullText.WriteString(ev.Message)
				emit(domain.TextDeltaEvent(ev.Message))
			} else {
				emit(domain.TextDeltaEvent(fmt.Sprintf("\n[System: Var %d failed: %s]", index+1, strings.TrimSpace(ev.Message))))
			}
			// Terminal for this item; the stream ends after an error.
		}
	}
	return produced, nil
}

// completePrimary appends the finished exchange. An all-image reply has no
// text; the pair is still recorded for the first exchange of a session so a
// pure text-to-image start leaves the conversation grounded.
func (o *Orchestrator) completePrimary(userTurn domain.Turn, text string) {
	if text == "" && o.hist.Len() > 0 {
		return
	}
	o.hist.Append(userTurn, domain.TextTurn(domain.RoleModel, text))
}
