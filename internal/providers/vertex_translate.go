package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jackzampolin/folio/internal/failure"
)

const (
	VertexName         = "vertex"
	vertexDefaultModel = "gemini-1.5-pro"
)

// VertexConfig configures the Gemini translator.
type VertexConfig struct {
	ProjectID string
	Region    string
	Model     string
}

// VertexTranslator translates pages with Gemini on Vertex AI.
type VertexTranslator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewVertexTranslator creates the client and configures the model.
func NewVertexTranslator(ctx context.Context, cfg VertexConfig) (*VertexTranslator, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("vertex: project and region are required")
	}
	if cfg.Model == "" {
		cfg.Model = vertexDefaultModel
	}
	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(translateSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.2),
	}
	return &VertexTranslator{client: client, model: model}, nil
}

// Close releases the client.
func (t *VertexTranslator) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}

func (t *VertexTranslator) Name() string { return VertexName }

// Translate returns the full translation.
func (t *VertexTranslator) Translate(ctx context.Context, req TranslateRequest) (*TranslateResult, error) {
	start := time.Now()
	user, err := translateUserPrompt(req)
	if err != nil {
		return nil, err
	}
	resp, err := t.model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return nil, mapVertexError(ctx, err)
	}
	return &TranslateResult{
		TranslatedText: strings.TrimSpace(responseText(resp)),
		Provider:       VertexName,
		ExecutionTime:  time.Since(start),
	}, nil
}

// TranslateStream emits text parts as Gemini produces them.
func (t *VertexTranslator) TranslateStream(ctx context.Context, req TranslateRequest, emit func(StreamEvent) error) error {
	user, err := translateUserPrompt(req)
	if err != nil {
		return err
	}
	iter := t.model.GenerateContentStream(ctx, genai.Text(user))
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return mapVertexError(ctx, err)
		}
		if delta := responseText(resp); delta != "" {
			if err := emit(StreamEvent{Delta: delta}); err != nil {
				return err
			}
		}
	}
	return emit(StreamEvent{Done: true})
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

func mapVertexError(ctx context.Context, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return transportError(ctx, "translate", err)
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return failure.RateLimited("translate", st.Message(), 0)
	case codes.DeadlineExceeded:
		return failure.Timeout("translate", err)
	case codes.Unavailable, codes.Aborted, codes.Internal:
		return failure.Network("translate", err)
	case codes.Canceled:
		return failure.Wrap(failure.KindCancelled, "translate", err)
	default:
		return failure.New(failure.KindInternal, "translate", st.Message())
	}
}

var _ Translator = (*VertexTranslator)(nil)
