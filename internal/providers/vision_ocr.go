package providers

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/jackzampolin/folio/internal/failure"
)

const (
	VisionOCRName = "vision"

	visionOCRConfidence = 0.9

	visionOCRPrompt = `Transcribe all text visible on this document page exactly as written.
Preserve reading order and line breaks. Do not translate, summarise or describe the page.
Return only the transcribed text. If the page has no text, return an empty response.`
)

// VisionOCR is the remote OCR strategy backed by a vision-capable chat model.
type VisionOCR struct {
	model  string
	client openai.Client
}

// NewVisionOCR creates a vision-model OCR engine.
func NewVisionOCR(cfg OpenAIConfig) *VisionOCR {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultVisionModel
	}
	return &VisionOCR{
		model:  cfg.Model,
		client: newOpenAIClient(cfg),
	}
}

func (v *VisionOCR) Name() string   { return VisionOCRName }
func (v *VisionOCR) Source() string { return SourceAIOCR }
func (v *VisionOCR) Remote() bool   { return true }

// Recognize sends the page as a base64 data URL and returns the transcription.
func (v *VisionOCR) Recognize(ctx context.Context, img PageImage, progress ProgressFunc) (*OCRResult, error) {
	start := time.Now()
	if progress != nil {
		progress(0)
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img.PNG)
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(v.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(visionOCRPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    dataURL,
					Detail: "high",
				}),
			}),
		},
		Temperature: openai.Float(0),
	}

	completion, err := v.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(ctx, "ocr", err)
	}
	if len(completion.Choices) == 0 {
		return nil, failure.EmptyExtraction("ocr", img.Page)
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return nil, failure.EmptyExtraction("ocr", img.Page)
	}
	if progress != nil {
		progress(100)
	}

	return &OCRResult{
		Text:          text,
		Confidence:    visionOCRConfidence,
		Source:        SourceAIOCR,
		ExecutionTime: time.Since(start),
		Metadata: map[string]any{
			"model_used":        completion.Model,
			"prompt_tokens":     completion.Usage.PromptTokens,
			"completion_tokens": completion.Usage.CompletionTokens,
		},
	}, nil
}

var _ OCREngine = (*VisionOCR)(nil)
