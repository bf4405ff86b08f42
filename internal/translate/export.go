package translate

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jackzampolin/folio/internal/lang"
)

// PageHeader separates pages in exported text.
func PageHeader(page int) string {
	return fmt.Sprintf("--- Page %d ---", page)
}

// WriteExport writes pages in page order, each under its page header.
func WriteExport(w io.Writer, target string, pages map[int]string) error {
	nums := make([]int, 0, len(pages))
	for p := range pages {
		nums = append(nums, p)
	}
	sort.Ints(nums)

	if _, err := fmt.Fprintf(w, "Translation: %s (%s)\n\n", lang.Name(target), target); err != nil {
		return err
	}
	for i, p := range nums {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s\n%s\n", PageHeader(p), strings.TrimRight(pages[p], "\n")); err != nil {
			return err
		}
	}
	return nil
}

// ExportPage returns the completed translation of one page.
func (o *Orchestrator) ExportPage(key Key) (string, error) {
	code, err := lang.Parse(key.Lang)
	if err != nil {
		return "", err
	}
	key.Lang = code
	text, ok := o.cache.Text(key)
	if !ok {
		return "", fmt.Errorf("%s has not been translated", key)
	}
	return text, nil
}

// ExportAll returns the completed translations of pages 1..pageCount in
// target as one document. Untranslated pages are left out.
func (o *Orchestrator) ExportAll(target string, pageCount int) (string, error) {
	code, err := lang.Parse(target)
	if err != nil {
		return "", err
	}
	pages := o.cache.Pages(code)
	for p := range pages {
		if p > pageCount {
			delete(pages, p)
		}
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("no pages translated into %s", lang.Name(code))
	}
	var b strings.Builder
	if err := WriteExport(&b, code, pages); err != nil {
		return "", err
	}
	return b.String(), nil
}
