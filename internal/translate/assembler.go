package translate

import (
	"io"
	"strings"

	"github.com/jackzampolin/folio/internal/providers"
)

// Assembler accumulates a streamed translation. Deltas append; a full
// translatedText record replaces everything received so far.
type Assembler struct {
	buf  strings.Builder
	done bool
}

// Apply folds ev into the accumulator and reports whether the text changed.
func (a *Assembler) Apply(ev providers.StreamEvent) bool {
	switch {
	case ev.Done:
		a.done = true
		return false
	case ev.Replace != nil:
		a.buf.Reset()
		a.buf.WriteString(*ev.Replace)
		return true
	case ev.Delta != "":
		a.buf.WriteString(ev.Delta)
		return true
	}
	return false
}

// Text returns the accumulated translation.
func (a *Assembler) Text() string {
	return a.buf.String()
}

// Done reports whether the terminal record was seen.
func (a *Assembler) Done() bool {
	return a.done
}

// Assemble reads a complete stream body and returns the final text.
func Assemble(r io.Reader) (string, error) {
	var a Assembler
	err := providers.ReadStream(r, func(ev providers.StreamEvent) error {
		a.Apply(ev)
		return nil
	})
	if err != nil {
		return "", err
	}
	return a.Text(), nil
}
