//go:build !tesseract

package providers

import "context"

func runTesseract(ctx context.Context, png []byte, languages []string) (string, []float64, error) {
	return "", nil, ErrLocalOCRUnavailable
}
