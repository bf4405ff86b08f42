package translate

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackzampolin/folio/internal/failure"
	"github.com/jackzampolin/folio/internal/lang"
)

// Progress reports a batch that has processed page of total.
type Progress func(page, total int, percent float64)

// BatchResult is the outcome of TranslateAll.
type BatchResult struct {
	Lang      string
	Total     int
	Pages     map[int]string
	Failed    map[int]error
	Cancelled bool
}

// Translated returns the number of pages with a translation.
func (r *BatchResult) Translated() int {
	return len(r.Pages)
}

// Summary is the user-facing outcome, e.g. "9 of 10 pages translated".
func (r *BatchResult) Summary() string {
	return fmt.Sprintf("%d of %d pages translated", r.Translated(), r.Total)
}

// FailedPages returns the failed page numbers in order.
func (r *BatchResult) FailedPages() []int {
	pages := make([]int, 0, len(r.Failed))
	for p := range r.Failed {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// TranslateAll translates pages 1..pageCount into target one at a time.
// Pages already cached are not requested again. A failed page is logged and
// skipped; the batch continues with the next one. Starting a batch cancels
// any earlier batch.
func (o *Orchestrator) TranslateAll(ctx context.Context, pageCount int, target string, progress Progress) (*BatchResult, error) {
	if pageCount < 1 {
		return nil, fmt.Errorf("invalid page count %d", pageCount)
	}
	code, err := lang.Parse(target)
	if err != nil {
		return nil, err
	}

	bctx, cancel := context.WithCancel(ctx)
	run := &batchRun{lang: code, cancel: cancel}
	o.mu.Lock()
	if o.batch != nil {
		o.batch.cancel()
	}
	o.batch = run
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		if o.batch == run {
			o.batch = nil
		}
		o.mu.Unlock()
		cancel()
	}()

	res := &BatchResult{
		Lang:   code,
		Total:  pageCount,
		Pages:  make(map[int]string),
		Failed: make(map[int]error),
	}
	o.logger.Info("translating document", "pages", pageCount, "lang", code)

	for page := 1; page <= pageCount; page++ {
		if bctx.Err() != nil {
			res.Cancelled = true
			break
		}
		text, err := o.run(bctx, Request{Key: Key{Page: page, Lang: code}}, true)
		if err != nil {
			res.Failed[page] = err
			o.logger.Warn("skipping page", "page", page, "lang", code, "error", err)
		} else {
			res.Pages[page] = text
		}
		if progress != nil {
			progress(page, pageCount, float64(page)/float64(pageCount)*100)
		}
	}

	// A page superseded by an interactive request may still have landed.
	for page := range res.Failed {
		if text, ok := o.cache.Text(Key{Page: page, Lang: code}); ok {
			res.Pages[page] = text
			delete(res.Failed, page)
		}
	}

	o.logger.Info("translation batch finished",
		"lang", code,
		"translated", res.Translated(),
		"failed", len(res.Failed),
		"cancelled", res.Cancelled)

	if res.Cancelled {
		return res, failure.Wrap(failure.KindCancelled, "translate all", bctx.Err())
	}
	return res, nil
}
