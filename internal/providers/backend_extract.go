package providers

import "context"

// ExtractRequest asks the backend's document parser for a page's text.
// Office documents go through this path instead of OCR.
type ExtractRequest struct {
	DocumentURL string `json:"documentUrl,omitempty"`
	RawText     string `json:"rawText,omitempty"`
	PageNumber  int    `json:"pageNumber"`
}

type extractResponse struct {
	Text string `json:"text"`
}

// Extract returns the backend's text for one page. Empty text is not an error.
func (c *BackendClient) Extract(ctx context.Context, req ExtractRequest) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var resp extractResponse
	if err := c.postJSON(ctx, "extract", "/extract", "extract.json", req, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}
