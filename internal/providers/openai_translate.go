package providers

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/jackzampolin/folio/internal/failure"
)

// OpenAITranslator translates pages with a chat completion model.
type OpenAITranslator struct {
	model  string
	client openai.Client
}

// NewOpenAITranslator creates a chat-model translator.
func NewOpenAITranslator(cfg OpenAIConfig) *OpenAITranslator {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultChatModel
	}
	return &OpenAITranslator{
		model:  cfg.Model,
		client: newOpenAIClient(cfg),
	}
}

func (t *OpenAITranslator) Name() string { return OpenAIName }

func (t *OpenAITranslator) params(req TranslateRequest) (openai.ChatCompletionNewParams, error) {
	user, err := translateUserPrompt(req)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	return openai.ChatCompletionNewParams{
		Model: openai.ChatModel(t.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(translateSystemPrompt),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.2),
	}, nil
}

// Translate returns the full translation.
func (t *OpenAITranslator) Translate(ctx context.Context, req TranslateRequest) (*TranslateResult, error) {
	start := time.Now()
	params, err := t.params(req)
	if err != nil {
		return nil, err
	}
	completion, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(ctx, "translate", err)
	}
	if len(completion.Choices) == 0 {
		return nil, failure.New(failure.KindInternal, "translate", "no choices in response")
	}
	return &TranslateResult{
		TranslatedText: completion.Choices[0].Message.Content,
		Provider:       OpenAIName,
		ExecutionTime:  time.Since(start),
	}, nil
}

// TranslateStream emits each content delta as it arrives.
func (t *OpenAITranslator) TranslateStream(ctx context.Context, req TranslateRequest, emit func(StreamEvent) error) error {
	params, err := t.params(req)
	if err != nil {
		return err
	}

	stream := t.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := emit(StreamEvent{Delta: delta}); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return mapOpenAIError(ctx, "translate", err)
	}
	return emit(StreamEvent{Done: true})
}

var _ Translator = (*OpenAITranslator)(nil)
