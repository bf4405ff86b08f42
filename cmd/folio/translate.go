package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/failure"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/translate"
)

var (
	translatePage   int
	translateLang   string
	translateStream bool
	translateAll    bool
	translateExport string
	translateWith   string
	translateOCR    string
)

var translateCmd = &cobra.Command{
	Use:   "translate <source>",
	Short: "Translate document pages",
	Long: `Translate sends page text to the configured translator.

A single page is translated with --page. With --stream and -o text the
translation is printed as it arrives. --all translates every page in turn,
skipping pages that fail, and reports "N of M pages translated".
--export writes the completed translations to a file ("-" for stdout,
"auto" for the home exports directory), each page under a
"--- Page N ---" header.

Examples:
  folio translate report.pdf --page 2 --lang es -o text --stream
  folio translate report.pdf --all --lang de --export auto`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, w, err := openWorkspace(cmd, args[0], svcctx.OpenOptions{
			Lang:       translateLang,
			Translator: translateWith,
			OCREngine:  translateOCR,
		})
		if err != nil {
			return err
		}
		defer s.Close()
		defer w.Close()

		if cmd.Flags().Changed("stream") {
			w.Stream = translateStream
		}
		_, code := w.Controller.Selected()
		if code == "" {
			return fmt.Errorf("target language is required (--lang)")
		}
		ctx := cmd.Context()
		stdout := cmd.OutOrStdout()

		if translateAll {
			pageCount := w.Controller.Session().PageCount
			res, err := w.Orchestrator.TranslateAll(ctx, pageCount, code, func(page, total int, percent float64) {
				s.Logger.Info("translated page", "page", page, "total", total, "percent", int(percent))
			})
			if err != nil && !failure.Is(err, failure.KindCancelled) {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), res.Summary())
			if translateExport != "" {
				if err := exportTranslations(stdout, s, w, code); err != nil {
					return err
				}
			}
			if err != nil || translateExport == "-" {
				return err
			}
			return api.Output(batchSummary(res))
		}

		var streamed streamPrinter
		var onUpdate func(string)
		if w.Stream && api.GetOutputFormat() == api.OutputFormatText && translateExport != "-" {
			streamed.w = stdout
			onUpdate = streamed.update
		}
		text, err := w.Translate(ctx, translatePage, code, onUpdate)
		if err != nil {
			return err
		}
		if translateExport != "" {
			return exportTranslations(stdout, s, w, code)
		}
		if onUpdate != nil {
			streamed.update(text)
			_, err := io.WriteString(stdout, "\n")
			return err
		}
		return api.Output(pageTranslation{Page: translatePage, Lang: code, Translation: text})
	},
}

type pageTranslation struct {
	Page        int    `json:"page" yaml:"page"`
	Lang        string `json:"lang" yaml:"lang"`
	Translation string `json:"translation" yaml:"translation"`
}

func (p pageTranslation) Text() string {
	return p.Translation
}

type batchReport struct {
	Lang       string `json:"lang" yaml:"lang"`
	Total      int    `json:"total" yaml:"total"`
	Translated int    `json:"translated" yaml:"translated"`
	Failed     []int  `json:"failed,omitempty" yaml:"failed,omitempty"`
	Cancelled  bool   `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Summary    string `json:"summary" yaml:"summary"`
}

func (b batchReport) Text() string {
	return b.Summary
}

func batchSummary(res *translate.BatchResult) batchReport {
	return batchReport{
		Lang:       res.Lang,
		Total:      res.Total,
		Translated: res.Translated(),
		Failed:     res.FailedPages(),
		Cancelled:  res.Cancelled,
		Summary:    res.Summary(),
	}
}

// streamPrinter writes only the part of the accumulated text not yet shown.
// When a full record replaces the text, the new text starts on a fresh line.
type streamPrinter struct {
	w     io.Writer
	shown string
}

func (p *streamPrinter) update(text string) {
	if text == p.shown {
		return
	}
	if strings.HasPrefix(text, p.shown) {
		io.WriteString(p.w, text[len(p.shown):])
	} else {
		io.WriteString(p.w, "\n"+text)
	}
	p.shown = text
}

// exportTranslations writes every completed page translation in code.
func exportTranslations(stdout io.Writer, s *svcctx.Services, w *svcctx.Workspace, code string) error {
	text, err := w.Orchestrator.ExportAll(code, w.Controller.Session().PageCount)
	if err != nil {
		return err
	}
	switch translateExport {
	case "-":
		_, err := io.WriteString(stdout, text)
		return err
	case "auto":
		if s.Home == nil {
			return errors.New("no home directory for exports")
		}
		return writeExport(s.Home.ExportPath(w.Ref.ID, code), text)
	default:
		return writeExport(translateExport, text)
	}
}

func writeExport(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "exported %s\n", path)
	return nil
}

func init() {
	translateCmd.Flags().IntVarP(&translatePage, "page", "p", 1, "page to translate")
	translateCmd.Flags().StringVarP(&translateLang, "lang", "l", "", "target language, e.g. es or pt-BR (default: translation.default_language)")
	translateCmd.Flags().BoolVar(&translateStream, "stream", true, "stream the translation as it is produced (default: translation.stream)")
	translateCmd.Flags().BoolVar(&translateAll, "all", false, "translate every page in order")
	translateCmd.Flags().StringVar(&translateExport, "export", "", `write translations to a file, "-" for stdout or "auto"`)
	translateCmd.Flags().StringVar(&translateWith, "translator", "", "translator name (default: translation.translator)")
	translateCmd.Flags().StringVar(&translateOCR, "ocr", "", "OCR engine for pages without a text layer")
}
