package gateway

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"iter"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"genpanel/internal/domain"
	"genpanel/internal/imgutil"
)

type stubAPI struct {
	streamResponses []*genai.GenerateContentResponse
	streamErr       error
	genResp         *genai.GenerateContentResponse
	genErr          error

	lastModel    string
	lastContents []*genai.Content
	lastConfig   *genai.GenerateContentConfig
}

func (s *stubAPI) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	s.lastModel = model
	s.lastContents = contents
	s.lastConfig = config
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, r := range s.streamResponses {
			if !yield(r, nil) {
				return
			}
		}
		if s.streamErr != nil {
			yield(nil, s.streamErr)
		}
	}
}

func (s *stubAPI) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.lastModel = model
	s.lastContents = contents
	s.lastConfig = config
	return s.genResp, s.genErr
}

func newTestClient(api generativeAPI) *Client {
	return &Client{api: api, logger: zerolog.New(io.Discard)}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func imageResponse(t *testing.T) *genai.GenerateContentResponse {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.SetNRGBA(1, 1, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	data, err := imgutil.EncodePNG(img)
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{
				InlineData: &genai.Blob{MIMEType: "image/png", Data: data},
			}}},
		}},
	}
}

func collect(seq iter.Seq[StreamEvent]) []StreamEvent {
	var out []StreamEvent
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func TestConverseYieldsTextAndImagesInOrder(t *testing.T) {
	api := &stubAPI{streamResponses: []*genai.GenerateContentResponse{
		textResponse("Here is "),
		textResponse("your image:"),
		imageResponse(t),
	}}
	c := newTestClient(api)

	events := collect(c.Converse(context.Background(), nil,
		domain.TextTurn(domain.RoleUser, "draw a cat"),
		GenerateConfig{Model: "gemini-2.5-flash-image", Seed: 7, AspectRatio: "1:1"},
	))

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Kind != KindText || events[0].Text != "Here is " {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[2].Kind != KindImage {
		t.Fatalf("expected image event, got %+v", events[2])
	}
	if events[2].Seed != 7 {
		t.Fatalf("image event seed = %d, want 7", events[2].Seed)
	}
	if events[2].Image == nil || len(events[2].PNG) == 0 {
		t.Fatal("image event missing decoded image or raw payload")
	}
}

func TestConverseRecoversFromDecodeFailure(t *testing.T) {
	api := &stubAPI{streamResponses: []*genai.GenerateContentResponse{
		{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{
					InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("garbage")},
				}}},
			}},
		},
		textResponse("continuing"),
	}}
	c := newTestClient(api)

	events := collect(c.Converse(context.Background(), nil,
		domain.TextTurn(domain.RoleUser, "x"), GenerateConfig{Model: "m"}))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != KindText || events[0].Text != decodeFailureNotice {
		t.Fatalf("expected synthetic decode notice, got %+v", events[0])
	}
	if events[1].Text != "continuing" {
		t.Fatal("stream must continue past a bad image chunk")
	}
}

func TestConverseMapsOverloadError(t *testing.T) {
	api := &stubAPI{
		streamResponses: []*genai.GenerateContentResponse{textResponse("partial")},
		streamErr:       errors.New("rpc error: code 503, model is overloaded"),
	}
	c := newTestClient(api)

	events := collect(c.Converse(context.Background(), nil,
		domain.TextTurn(domain.RoleUser, "x"), GenerateConfig{Model: "m"}))

	last := events[len(events)-1]
	if last.Kind != KindError {
		t.Fatalf("expected terminal error event, got %+v", last)
	}
	if !last.Recoverable {
		t.Fatal("overload must be recoverable")
	}
	if !strings.Contains(last.Message, "overloaded") {
		t.Fatalf("unexpected overload message: %q", last.Message)
	}
}

func TestConverseMapsAuthErrorUnrecoverable(t *testing.T) {
	api := &stubAPI{streamErr: errors.New("401: API key not valid")}
	c := newTestClient(api)

	events := collect(c.Converse(context.Background(), nil,
		domain.TextTurn(domain.RoleUser, "x"), GenerateConfig{Model: "m"}))

	if len(events) != 1 || events[0].Kind != KindError {
		t.Fatalf("expected exactly one error event, got %+v", events)
	}
	if events[0].Recoverable {
		t.Fatal("credential failure must be unrecoverable")
	}
}

func TestConverseMapsGenericNetworkError(t *testing.T) {
	api := &stubAPI{streamErr: errors.New("connection reset by peer")}
	c := newTestClient(api)

	events := collect(c.Converse(context.Background(), nil,
		domain.TextTurn(domain.RoleUser, "x"), GenerateConfig{Model: "m"}))

	if len(events) != 1 || events[0].Kind != KindError || !events[0].Recoverable {
		t.Fatalf("expected one recoverable error event, got %+v", events)
	}
	if !strings.Contains(events[0].Message, "connection reset by peer") {
		t.Fatalf("original text missing from message: %q", events[0].Message)
	}
}

func TestGenerateConfigModalities(t *testing.T) {
	api := &stubAPI{}
	c := newTestClient(api)

	collect(c.Converse(context.Background(), nil,
		domain.TextTurn(domain.RoleUser, "x"), GenerateConfig{Model: "m"}))
	if got := api.lastConfig.ResponseModalities; len(got) != 1 || got[0] != "TEXT" {
		t.Fatalf("text-only config modalities = %v", got)
	}
	if api.lastConfig.ImageConfig != nil {
		t.Fatal("text-only request must not set an image config")
	}

	collect(c.Converse(context.Background(), nil,
		domain.TextTurn(domain.RoleUser, "x"), GenerateConfig{Model: "m", AspectRatio: "16:9 (Wide)"}))
	if got := api.lastConfig.ResponseModalities; len(got) != 2 || got[1] != "IMAGE" {
		t.Fatalf("image config modalities = %v", got)
	}
	if api.lastConfig.ImageConfig == nil || api.lastConfig.ImageConfig.AspectRatio != "16:9" {
		t.Fatalf("aspect ratio not extracted: %+v", api.lastConfig.ImageConfig)
	}
}

func TestConverseIncludesPriorTurns(t *testing.T) {
	api := &stubAPI{}
	c := newTestClient(api)
	prior := []domain.Turn{
		domain.TextTurn(domain.RoleUser, "first"),
		domain.TextTurn(domain.RoleModel, "reply"),
	}
	collect(c.Converse(context.Background(), prior,
		domain.TextTurn(domain.RoleUser, "second"), GenerateConfig{Model: "m"}))

	if len(api.lastContents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(api.lastContents))
	}
	if api.lastContents[1].Role != "model" {
		t.Fatalf("prior model turn role = %q", api.lastContents[1].Role)
	}
}

func TestEnhancePromptParsesStructuredResult(t *testing.T) {
	body := `{"concept":"cozy cabin","scene":{"setting":"snowy forest"},"final_prompt":"A cozy log cabin in a snowy forest at dusk."}`
	api := &stubAPI{genResp: textResponse(body)}
	c := newTestClient(api)

	out := c.EnhancePrompt(context.Background(), "cabin in snow", nil)
	if out.Concept != "cozy cabin" {
		t.Fatalf("Concept = %q", out.Concept)
	}
	if out.Scene == nil || out.Scene.Setting != "snowy forest" {
		t.Fatalf("Scene = %+v", out.Scene)
	}
	if out.FinalPrompt == "" {
		t.Fatal("FinalPrompt must be populated")
	}
	if api.lastModel != reasoningModel {
		t.Fatalf("enhance used model %q, want %q", api.lastModel, reasoningModel)
	}
	if api.lastConfig.ResponseSchema == nil || api.lastConfig.ResponseMIMEType != "application/json" {
		t.Fatal("enhance must request schema-constrained JSON output")
	}
}

func TestEnhancePromptErrorShapesAsData(t *testing.T) {
	api := &stubAPI{genErr: errors.New("deadline exceeded")}
	c := newTestClient(api)

	out := c.EnhancePrompt(context.Background(), "anything", nil)
	if out.FinalPrompt == "" {
		t.Fatal("FinalPrompt must never be empty")
	}
	if !strings.Contains(out.FinalPrompt, "deadline exceeded") {
		t.Fatalf("error text missing: %q", out.FinalPrompt)
	}
}

func TestEnhancePromptEmptyInput(t *testing.T) {
	c := newTestClient(&stubAPI{})
	out := c.EnhancePrompt(context.Background(), "", nil)
	if out.FinalPrompt != "No input provided." {
		t.Fatalf("FinalPrompt = %q", out.FinalPrompt)
	}
}

func TestEnhancePromptEmptyResponse(t *testing.T) {
	api := &stubAPI{genResp: &genai.GenerateContentResponse{}}
	c := newTestClient(api)
	out := c.EnhancePrompt(context.Background(), "something", nil)
	if out.FinalPrompt == "" {
		t.Fatal("FinalPrompt must never be empty")
	}
}
