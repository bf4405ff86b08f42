//go:build tesseract

package providers

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// runTesseract needs libtesseract and its language data at runtime.
func runTesseract(ctx context.Context, png []byte, languages []string) (string, []float64, error) {
	c := gosseract.NewClient()
	defer c.Close()

	if err := c.SetImageFromBytes(png); err != nil {
		return "", nil, fmt.Errorf("set image: %w", err)
	}
	if len(languages) > 0 {
		if err := c.SetLanguage(languages...); err != nil {
			return "", nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	text, err := c.Text()
	if err != nil {
		return "", nil, fmt.Errorf("recognize: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return text, nil, nil
	}
	confs := make([]float64, 0, len(boxes))
	for _, b := range boxes {
		confs = append(confs, b.Confidence/100.0)
	}
	return text, confs, nil
}
