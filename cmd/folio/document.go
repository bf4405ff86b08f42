package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/extract"
	"github.com/jackzampolin/folio/internal/pdfdoc"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/translate"
	"github.com/jackzampolin/folio/internal/viewer"
)

var (
	pageFlag   int
	ocrMethod  string
	manualEdit string
)

var infoCmd = &cobra.Command{
	Use:   "info <source>",
	Short: "Open a document and show its viewing session",
	Long: `Info fetches a document, loads it into the viewer and reports its
category, page count, page sizes and the render path in use.

Sources may be local paths, file://, http(s):// or gs:// URLs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, w, err := openWorkspace(cmd, args[0], svcctx.OpenOptions{})
		if err != nil {
			return err
		}
		defer s.Close()
		defer w.Close()

		info := docInfo{
			Document: w.Ref,
			State:    w.Controller.State(),
			Session:  w.Controller.Session(),
		}
		if w.Handle != nil {
			dims, err := w.Handle.Dims()
			if err != nil {
				s.Logger.Warn("failed to read page sizes", "error", err)
			}
			info.Pages = dims
		}
		return api.Output(info)
	},
}

type docInfo struct {
	Document document.Ref   `json:"document" yaml:"document"`
	State    viewer.State   `json:"state" yaml:"state"`
	Session  viewer.Session `json:"session" yaml:"session"`
	Pages    []pdfdoc.Dim   `json:"pages,omitempty" yaml:"pages,omitempty"`
}

var extractCmd = &cobra.Command{
	Use:   "extract <source>",
	Short: "Extract page text",
	Long: `Extract prints the text of one page, or of every page when --page
is 0. PDF text comes from the embedded text layer; pages without one are
recognised when --ocr names an engine. --edit replaces the page text
with a manual correction.

Examples:
  folio extract report.pdf --page 3
  folio extract scan.pdf --ocr tesseract -o text`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(cmd, args[0], ocrMethod)
	},
}

var ocrCmd = &cobra.Command{
	Use:   "ocr <source>",
	Short: "Recognise text on pages without a text layer",
	Long: `OCR runs an OCR engine over a scanned document. --method picks the
engine; it defaults to extraction.ocr_engine. Run "folio classify" to
see the engines on offer.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method := ocrMethod
		if method == "" {
			s, err := loadServices(cmd)
			if err != nil {
				return err
			}
			method = s.Config.Get().Extraction.OCREngine
		}
		return runExtract(cmd, args[0], method)
	},
}

func runExtract(cmd *cobra.Command, src, engine string) error {
	s, w, err := openWorkspace(cmd, src, svcctx.OpenOptions{OCREngine: engine})
	if err != nil {
		return err
	}
	defer s.Close()
	defer w.Close()

	w.Source.OnProgress(func(page, percent int) {
		s.Logger.Debug("ocr progress", "page", page, "percent", percent)
	})

	pages, err := pageRange(pageFlag, w.Controller.Session().PageCount)
	if err != nil {
		return err
	}
	if manualEdit != "" {
		if len(pages) != 1 {
			return fmt.Errorf("--edit needs a single --page")
		}
		r, err := w.Source.ManualEdit(pages[0], manualEdit)
		if err != nil {
			return err
		}
		return api.Output(pageResults{r})
	}

	results := make(pageResults, 0, len(pages))
	for _, page := range pages {
		r, err := w.Source.Page(cmd.Context(), page)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		results = append(results, r)
	}
	return api.Output(results)
}

// pageResults prints as plain text under page headers.
type pageResults []*extract.Result

func (p pageResults) Text() string {
	var b strings.Builder
	for i, r := range p {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(translate.PageHeader(r.Page))
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(r.Text, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

var classifyCmd = &cobra.Command{
	Use:   "classify <source>",
	Short: "Detect whether a document needs OCR",
	Long: `Classify measures the text layer of every page. Documents averaging
fewer characters per page than extraction.scanned_threshold are reported
as scanned, together with the OCR engines available for them. Office
documents are never classified as scanned.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, w, err := openWorkspace(cmd, args[0], svcctx.OpenOptions{})
		if err != nil {
			return err
		}
		defer s.Close()
		defer w.Close()

		result, err := s.Classifier().Classify(cmd.Context(), w.Ref, w.Controller.Session().PageCount, w.Source)
		if err != nil {
			return err
		}
		return api.Output(result)
	},
}

func init() {
	for _, c := range []*cobra.Command{extractCmd, ocrCmd} {
		c.Flags().IntVarP(&pageFlag, "page", "p", 0, "page number (0 for all pages)")
	}
	extractCmd.Flags().StringVar(&ocrMethod, "ocr", "", "OCR engine for pages without a text layer")
	extractCmd.Flags().StringVar(&manualEdit, "edit", "", "replace the page text with this correction")
	ocrCmd.Flags().StringVarP(&ocrMethod, "method", "m", "", "OCR engine (default: extraction.ocr_engine)")
}

// pageRange expands a --page value; 0 selects every page.
func pageRange(page, count int) ([]int, error) {
	if page < 0 || page > count {
		return nil, fmt.Errorf("page %d out of range [1, %d]", page, count)
	}
	if page > 0 {
		return []int{page}, nil
	}
	pages := make([]int, count)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages, nil
}
