package providers

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/jackzampolin/folio/internal/failure"
)

// backendDefaultConfidence is reported when the backend omits a score.
const backendDefaultConfidence = 0.9

type backendOCRRequest struct {
	ImageBase64 string `json:"imageBase64"`
	PageNumber  int    `json:"pageNumber"`
}

type backendOCRResponse struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// BackendOCR is the remote OCR strategy: higher accuracy, costs credits,
// needs the network.
type BackendOCR struct {
	client *BackendClient
}

// NewBackendOCR wraps a backend client as an OCR engine.
func NewBackendOCR(client *BackendClient) *BackendOCR {
	return &BackendOCR{client: client}
}

func (o *BackendOCR) Name() string   { return BackendName }
func (o *BackendOCR) Source() string { return SourceAIOCR }
func (o *BackendOCR) Remote() bool   { return true }

// Recognize submits the page image and waits for a single JSON result.
func (o *BackendOCR) Recognize(ctx context.Context, img PageImage, progress ProgressFunc) (*OCRResult, error) {
	start := time.Now()
	ctx, cancel := o.client.withTimeout(ctx)
	defer cancel()

	if progress != nil {
		progress(0)
	}

	req := backendOCRRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(img.PNG),
		PageNumber:  img.Page,
	}
	var resp backendOCRResponse
	if err := o.client.postJSON(ctx, "ocr", "/ocr", "ocr.json", req, &resp); err != nil {
		return nil, err
	}

	if strings.TrimSpace(resp.Text) == "" {
		return nil, failure.EmptyExtraction("ocr", img.Page)
	}

	conf := backendDefaultConfidence
	if resp.Confidence != nil {
		conf = *resp.Confidence
	}
	if progress != nil {
		progress(100)
	}

	return &OCRResult{
		Text:          resp.Text,
		Confidence:    conf,
		Source:        SourceAIOCR,
		ExecutionTime: time.Since(start),
		Metadata: map[string]any{
			"page":        img.Page,
			"image_bytes": len(img.PNG),
		},
	}, nil
}

var _ OCREngine = (*BackendOCR)(nil)
