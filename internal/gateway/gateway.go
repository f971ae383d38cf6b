// Package gateway wraps one logical connection to the generative model
// endpoint. It turns a (history, new turn, config) tuple into a finite,
// consume-once sequence of incremental events and isolates transport and
// service failures into recoverable signals, so callers never see a raw
// provider error mid-stream.
package gateway

import (
	"context"
	"fmt"
	"image"
	"iter"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"genpanel/internal/domain"
	"genpanel/internal/imgutil"
)

const systemInstruction = "You are an expert digital art assistant integrated into a raster image editor. " +
	"Help the user generate images, variations, and provide creative advice."

const (
	generateTemperature = 0.7
	decodeFailureNotice = "[System: Failed to decode image]"
	overloadedNotice    = "\n[System: The model is overloaded (503). Please wait a moment and try again.]"
)

// generativeAPI is the slice of the provider SDK the gateway consumes. It is
// satisfied by *genai.Models and stubbed in tests.
type generativeAPI interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client is the model gateway. It is stateless with respect to conversation
// history; callers pass prior turns on every request.
type Client struct {
	api    generativeAPI
	logger zerolog.Logger
}

// GenerateConfig carries the per-request knobs of one model call.
type GenerateConfig struct {
	Model string
	Seed  int32
	// AspectRatio requests image output at the given ratio; leaving it empty
	// requests text-only output.
	AspectRatio string
}

// NewClient dials the provider with the given API key. The key is required:
// a client is only constructed once credentials exist, so stream errors are
// never a proxy for "not configured".
func NewClient(ctx context.Context, apiKey string, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.ErrNoClient
	}
	cc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: create client: %w", err)
	}
	logger.Info().Msg("gateway: model client initialized")
	return &Client{api: cc.Models, logger: logger}, nil
}

// Converse sends the prior turns plus one new user turn and returns the lazy
// event sequence of the model's streamed reply. The sequence is finite,
// terminates on completion or on the first terminal error, and must be
// consumed exactly once.
func (c *Client) Converse(ctx context.Context, prior []domain.Turn, user domain.Turn, cfg GenerateConfig) iter.Seq[StreamEvent] {
	contents := make([]*genai.Content, 0, len(prior)+1)
	for _, t := range prior {
		contents = append(contents, turnToContent(t))
	}
	contents = append(contents, turnToContent(user))

	genCfg := c.generateConfig(cfg)
	c.logger.Info().
		Str("model", cfg.Model).
		Int("history_turns", len(prior)).
		Int32("seed", cfg.Seed).
		Str("aspect_ratio", cfg.AspectRatio).
		Msg("gateway: sending prompt")

	stream := c.api.GenerateContentStream(ctx, cfg.Model, contents, genCfg)

	return func(yield func(StreamEvent) bool) {
		for resp, err := range stream {
			if err != nil {
				yield(c.mapStreamError(err))
				return
			}
			if !c.yieldResponse(resp, cfg.Seed, yield) {
				return
			}
		}
	}
}

// yieldResponse forwards the parts of one streamed chunk. It returns false
// when the consumer stopped iterating.
func (c *Client) yieldResponse(resp *genai.GenerateContentResponse, seed int32, yield func(StreamEvent) bool) bool {
	if resp == nil {
		return true
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil {
			c.logger.Warn().Interface("feedback", resp.PromptFeedback).Msg("gateway: prompt feedback on empty chunk")
		}
		return true
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		c.logger.Warn().Str("finish_reason", string(cand.FinishReason)).Msg("gateway: empty candidate")
		return true
	}
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			if !yield(textEvent(part.Text)) {
				return false
			}
		}
		if part.InlineData != nil {
			img, err := imgutil.DecodeImage(part.InlineData.Data)
			if err != nil {
				// One bad payload must not abort the rest of the stream.
				c.logger.Error().Err(err).Msg("gateway: image decode failed")
				if !yield(textEvent(decodeFailureNotice)) {
					return false
				}
				continue
			}
			if !yield(imageEvent(img, part.InlineData.Data, seed)) {
				return false
			}
		}
	}
	return true
}

// mapStreamError converts a transport failure during iteration into exactly
// one terminal error event.
func (c *Client) mapStreamError(err error) StreamEvent {
	c.logger.Error().Err(err).Msg("gateway: stream iteration error")
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(msg, "503") || strings.Contains(lower, "overloaded") {
		return errorEvent(overloadedNotice, true)
	}
	if strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(lower, "api key") {
		return errorEvent(fmt.Sprintf("[System: Setup Error - %s]", msg), false)
	}
	return errorEvent(fmt.Sprintf("\n[System: Network Error - %s]", msg), true)
}

func (c *Client) generateConfig(cfg GenerateConfig) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{
		Seed:        genai.Ptr(cfg.Seed),
		Temperature: genai.Ptr[float32](generateTemperature),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		},
		SafetySettings:     safetySettings(),
		ResponseModalities: []string{"TEXT"},
	}
	if cfg.AspectRatio != "" {
		out.ResponseModalities = append(out.ResponseModalities, "IMAGE")
		if ratio := strings.Fields(cfg.AspectRatio)[0]; strings.Contains(ratio, ":") {
			out.ImageConfig = &genai.ImageConfig{AspectRatio: ratio}
		}
	}
	return out
}

// safetySettings fixes all harm categories to the least restrictive supported
// threshold; creative reference material trips the defaults too easily.
func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	out := make([]*genai.SafetySetting, 0, len(categories))
	for _, cat := range categories {
		out = append(out, &genai.SafetySetting{
			Category:  cat,
			Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
		})
	}
	return out
}

func turnToContent(t domain.Turn) *genai.Content {
	parts := make([]*genai.Part, 0, len(t.Parts))
	for _, p := range t.Parts {
		if len(p.PNG) > 0 {
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: "image/png", Data: p.PNG},
			})
		}
		if p.Text != "" {
			parts = append(parts, &genai.Part{Text: p.Text})
		}
	}
	return &genai.Content{Role: string(t.Role), Parts: parts}
}

// encodeImages serializes context images for a request, dropping any that
// fail to encode rather than failing the call.
func (c *Client) encodeImages(images []image.Image) [][]byte {
	out := make([][]byte, 0, len(images))
	for _, img := range images {
		data, err := imgutil.EncodePNG(img)
		if err != nil {
			c.logger.Error().Err(err).Msg("gateway: failed to serialize context image")
			continue
		}
		out = append(out, data)
	}
	return out
}

// BuildUserTurn assembles the user turn for a request: context images first,
// prompt text last.
func (c *Client) BuildUserTurn(prompt string, images []image.Image) domain.Turn {
	return domain.UserTurn(prompt, c.encodeImages(images))
}
