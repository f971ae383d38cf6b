package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"image"

	"google.golang.org/genai"
)

// reasoningModel handles prompt enhancement; image generation models are not
// tuned for structured output.
const reasoningModel = "gemini-3-pro-preview"

const enhanceInstruction = "You are an expert prompt engineer for generative AI. " +
	"Your task is to convert a user's raw input (and optional reference image) into a structured " +
	"image generation prompt using the provided JSON schema. " +
	"The downstream model is optimized to understand this specific JSON structure directly. " +
	"Do NOT simplify or summarize. Fill all relevant fields based on the input and your creative inference."

// StructuredPrompt is the model-agnostic prompt description produced by
// EnhancePrompt. FinalPrompt is always populated; on any internal failure it
// carries a human-readable error string and the rest of the fields are empty.
// Callers must treat an error-shaped value as valid data.
type StructuredPrompt struct {
	Concept     string             `json:"concept"`
	Scene       *PromptScene       `json:"scene,omitempty"`
	Style       *PromptStyle       `json:"style,omitempty"`
	Composition *PromptComposition `json:"composition,omitempty"`
	Technical   *PromptTechnical   `json:"technical,omitempty"`
	FinalPrompt string             `json:"final_prompt"`
}

// PromptScene describes what is happening, where, and with what key elements.
type PromptScene struct {
	Setting     string   `json:"setting,omitempty"`
	TimeOfDay   string   `json:"time_of_day,omitempty"`
	KeyElements []string `json:"key_elements,omitempty"`
	Action      string   `json:"action,omitempty"`
}

// PromptStyle describes visual style and mood.
type PromptStyle struct {
	MoodKeywords []string `json:"mood_keywords,omitempty"`
	ArtStyle     string   `json:"art_style,omitempty"`
	ColorPalette string   `json:"color_palette,omitempty"`
	Influences   []string `json:"influences,omitempty"`
}

// PromptComposition describes framing and emphasis.
type PromptComposition struct {
	Framing         string `json:"framing,omitempty"`
	Focus           string `json:"focus,omitempty"`
	DepthOfField    string `json:"depth_of_field,omitempty"`
	AdditionalNotes string `json:"additional_notes,omitempty"`
}

// PromptTechnical carries model-agnostic technical preferences.
type PromptTechnical struct {
	RenderQuality   string   `json:"render_quality,omitempty"`
	AspectRatioHint string   `json:"aspect_ratio_hint,omitempty"`
	Avoid           []string `json:"avoid,omitempty"`
}

func errorPrompt(format string, args ...any) StructuredPrompt {
	return StructuredPrompt{FinalPrompt: fmt.Sprintf(format, args...)}
}

// Failed reports whether the value is error-shaped: only FinalPrompt is set,
// carrying an error message instead of a synthesized prompt.
func (p StructuredPrompt) Failed() bool {
	return p.Concept == ""
}

// MachineJSON serializes the structured prompt for use as a machine-facing
// generation prompt.
func (p StructuredPrompt) MachineJSON() string {
	data, err := json.Marshal(p)
	if err != nil {
		return p.FinalPrompt
	}
	return string(data)
}

// EnhancePrompt converts raw user text plus optional reference images into a
// structured generation prompt via a single non-streaming call. It never
// returns an error: every failure path yields a value whose FinalPrompt
// explains what went wrong.
func (c *Client) EnhancePrompt(ctx context.Context, raw string, images []image.Image) StructuredPrompt {
	parts := make([]*genai.Part, 0, len(images)+1)
	if raw != "" {
		parts = append(parts, &genai.Part{Text: "User Request: " + raw})
	}
	for _, data := range c.encodeImages(images) {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: "image/png", Data: data},
		})
	}
	if len(parts) == 0 {
		return errorPrompt("No input provided.")
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: enhanceInstruction}},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema:   universalImagePromptSchema(),
		Temperature:      genai.Ptr[float32](1.0),
		TopP:             genai.Ptr[float32](0.95),
	}
	contents := []*genai.Content{{Role: string(genai.RoleUser), Parts: parts}}

	resp, err := c.api.GenerateContent(ctx, reasoningModel, contents, cfg)
	if err != nil {
		c.logger.Error().Err(err).Msg("gateway: prompt enhancement failed")
		return errorPrompt("Magic Prompt Error: %s", err.Error())
	}

	text := resp.Text()
	if text == "" {
		return errorPrompt("Error: Empty response from Magic Prompt.")
	}
	var out StructuredPrompt
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		c.logger.Error().Err(err).Msg("gateway: enhancement returned unparsable JSON")
		return errorPrompt("Magic Prompt Error: %s", err.Error())
	}
	if out.FinalPrompt == "" {
		out.FinalPrompt = out.Concept
	}
	if out.FinalPrompt == "" {
		return errorPrompt("Error: Empty response from Magic Prompt.")
	}
	return out
}

// universalImagePromptSchema is the fixed response schema for enhancement.
func universalImagePromptSchema() *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeObject,
		Title:       "UniversalImagePrompt",
		Description: "A structured, model-agnostic prompt description for text-to-image generation.",
		Properties: map[string]*genai.Schema{
			"concept": {
				Type:        genai.TypeString,
				Description: "Very short summary of the main idea (1 short phrase).",
			},
			"scene": {
				Type:        genai.TypeObject,
				Description: "What is happening, where, and with what key elements.",
				Properties: map[string]*genai.Schema{
					"setting":     {Type: genai.TypeString, Description: "Environment or location."},
					"time_of_day": {Type: genai.TypeString, Description: "Time and ambience: dawn, golden hour, night, neon-lit, overcast, etc."},
					"key_elements": {
						Type:        genai.TypeArray,
						Description: "Important objects, characters, creatures, or landmarks that must appear.",
						Items:       &genai.Schema{Type: genai.TypeString},
					},
					"action": {Type: genai.TypeString, Description: "Short description of what is happening. Leave empty if static."},
				},
			},
			"style": {
				Type:        genai.TypeObject,
				Description: "Visual style and mood.",
				Properties: map[string]*genai.Schema{
					"mood_keywords": {
						Type:        genai.TypeArray,
						Description: "Mood adjectives: dreamy, dark, epic, cozy, surreal, whimsical, etc.",
						Items:       &genai.Schema{Type: genai.TypeString},
					},
					"art_style":     {Type: genai.TypeString, Description: "Overall style: photorealistic, cinematic, digital painting, anime, pixel art, etc."},
					"color_palette": {Type: genai.TypeString, Description: "Dominant colors or palette."},
					"influences": {
						Type:        genai.TypeArray,
						Description: "Optional stylistic references. No direct copyrighted names if avoidable.",
						Items:       &genai.Schema{Type: genai.TypeString},
					},
				},
			},
			"composition": {
				Type:        genai.TypeObject,
				Description: "How the image is framed and composed.",
				Properties: map[string]*genai.Schema{
					"framing":          {Type: genai.TypeString, Description: "Wide shot, mid shot, close-up, top-down, isometric, etc."},
					"focus":            {Type: genai.TypeString, Description: "What should be in focus or emphasized."},
					"depth_of_field":   {Type: genai.TypeString, Description: "Shallow DOF with blurred background, deep focus, etc."},
					"additional_notes": {Type: genai.TypeString, Description: "Extra composition hints: symmetry, rule of thirds, leading lines, etc."},
				},
			},
			"technical": {
				Type:        genai.TypeObject,
				Description: "Technical preferences that are model-agnostic.",
				Properties: map[string]*genai.Schema{
					"render_quality":    {Type: genai.TypeString, Description: "Overall quality: high detail, ultra-detailed, painterly, sketchy, etc."},
					"aspect_ratio_hint": {Type: genai.TypeString, Description: "Desired aspect ratio or orientation. A hint, not a command."},
					"avoid": {
						Type:        genai.TypeArray,
						Description: "What should NOT appear (e.g. 'no text', 'no watermark').",
						Items:       &genai.Schema{Type: genai.TypeString},
					},
				},
			},
			"final_prompt": {
				Type:        genai.TypeString,
				Description: "Single coherent English description combining all important details, ready to be used as a text prompt.",
			},
		},
		Required: []string{"concept", "final_prompt"},
	}
}
