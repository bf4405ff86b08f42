package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/failure"
)

const (
	// DefaultScannedThreshold is the average characters per page below
	// which a document is treated as scanned. It is a tunable heuristic.
	DefaultScannedThreshold = 50.0

	// DefaultClassifyConcurrency bounds parallel page extraction.
	DefaultClassifyConcurrency = 4
)

// TextSource yields the text of one page.
type TextSource interface {
	PageText(ctx context.Context, page int) (string, error)
}

// EngineLister reports the available OCR engines split by strategy.
type EngineLister interface {
	OCRChoices() (remote, local []string)
}

// OCRChoice describes one OCR method offered for a scanned document.
type OCRChoice struct {
	Engine          string `json:"engine"`
	Remote          bool   `json:"remote"`
	Cost            bool   `json:"cost"`
	RequiresNetwork bool   `json:"requires_network"`
	Offline         bool   `json:"offline"`
	ReportsProgress bool   `json:"reports_progress"`
	Accuracy        string `json:"accuracy"`
}

// Classification is the verdict on whether a document has a usable text layer.
type Classification struct {
	Scanned         bool        `json:"scanned"`
	Exempt          bool        `json:"exempt,omitempty"`
	PageCount       int         `json:"page_count"`
	TotalChars      int         `json:"total_chars"`
	AvgCharsPerPage float64     `json:"avg_chars_per_page"`
	Threshold       float64     `json:"threshold"`
	Choices         []OCRChoice `json:"choices,omitempty"`
}

// ClassifierConfig configures a Classifier.
type ClassifierConfig struct {
	Threshold   float64
	Concurrency int
	Engines     EngineLister
	Logger      *slog.Logger
}

// Classifier flags documents that need OCR.
type Classifier struct {
	threshold   float64
	concurrency int
	engines     EngineLister
	logger      *slog.Logger
}

// NewClassifier creates a classifier.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultScannedThreshold
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultClassifyConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		threshold:   cfg.Threshold,
		concurrency: cfg.Concurrency,
		engines:     cfg.Engines,
		logger:      logger,
	}
}

// Threshold returns the configured scanned threshold.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// IsScanned applies the density rule: fewer than threshold characters per
// page on average means the document has no usable text layer.
func IsScanned(totalChars, pageCount int, threshold float64) bool {
	if pageCount <= 0 {
		return false
	}
	return float64(totalChars)/float64(pageCount) < threshold
}

// Classify measures text density over all pages of ref. Office documents
// are exempt and never inspected; images have no text layer and are always
// scanned.
func (c *Classifier) Classify(ctx context.Context, ref document.Ref, pageCount int, src TextSource) (*Classification, error) {
	result := &Classification{PageCount: pageCount, Threshold: c.threshold}

	switch ref.Category {
	case document.CategoryOffice:
		result.Exempt = true
		return result, nil
	case document.CategoryImage:
		result.Scanned = true
		result.Choices = c.choices()
		return result, nil
	case document.CategoryPDF, document.CategoryText:
	default:
		return nil, failure.Unsupported("classify", ref.MIMEType)
	}

	if pageCount <= 0 {
		return nil, fmt.Errorf("classify: page count unknown for %s", ref.ID)
	}

	counts := make([]int, pageCount)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for page := 1; page <= pageCount; page++ {
		g.Go(func() error {
			text, err := src.PageText(gctx, page)
			if err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			counts[page-1] = utf8.RuneCountInString(strings.TrimSpace(text))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, n := range counts {
		result.TotalChars += n
	}
	result.AvgCharsPerPage = float64(result.TotalChars) / float64(pageCount)
	result.Scanned = IsScanned(result.TotalChars, pageCount, c.threshold)
	if result.Scanned {
		result.Choices = c.choices()
	}

	c.logger.Info("classified document",
		"doc", ref.ID,
		"pages", pageCount,
		"avg_chars", result.AvgCharsPerPage,
		"scanned", result.Scanned)
	return result, nil
}

func (c *Classifier) choices() []OCRChoice {
	if c.engines == nil {
		return nil
	}
	remote, local := c.engines.OCRChoices()
	out := make([]OCRChoice, 0, len(remote)+len(local))
	for _, name := range remote {
		out = append(out, OCRChoice{
			Engine:          name,
			Remote:          true,
			Cost:            true,
			RequiresNetwork: true,
			Accuracy:        "high",
		})
	}
	for _, name := range local {
		out = append(out, OCRChoice{
			Engine:          name,
			Offline:         true,
			ReportsProgress: true,
			Accuracy:        "bounded",
		})
	}
	return out
}
