package extract

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/jackzampolin/folio/internal/pdfdoc"
)

// wordGapRatio is the horizontal gap, as a fraction of the font size, that
// separates two words on one line.
const wordGapRatio = 0.25

// Layout reconstructs reading order from positioned fragments: top to
// bottom, then left to right. A fragment starts a new line when its
// baseline differs from the previous fragment's by more than threshold.
func Layout(frags []pdfdoc.Fragment, threshold float64) string {
	if len(frags) == 0 {
		return ""
	}

	sorted := make([]pdfdoc.Fragment, len(frags))
	copy(sorted, frags)
	// PDF y grows upward.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Y > sorted[j].Y
	})

	var lines [][]pdfdoc.Fragment
	prevY := math.Inf(1)
	for _, f := range sorted {
		if len(lines) == 0 || math.Abs(f.Y-prevY) > threshold {
			lines = append(lines, nil)
		}
		lines[len(lines)-1] = append(lines[len(lines)-1], f)
		prevY = f.Y
	}

	var b strings.Builder
	for i, line := range lines {
		sort.SliceStable(line, func(a, c int) bool {
			return line[a].X < line[c].X
		})
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(joinLine(line))
	}
	return normalize(b.String())
}

func joinLine(line []pdfdoc.Fragment) string {
	var b strings.Builder
	prevEnd := 0.0
	prevSpace := true
	for i, f := range line {
		if i > 0 && !prevSpace && !startsWithSpace(f.Text) {
			gap := f.X - prevEnd
			if f.FontSize > 0 && gap > f.FontSize*wordGapRatio {
				b.WriteByte(' ')
			}
		}
		b.WriteString(f.Text)
		prevEnd = f.X + f.Width
		prevSpace = endsWithSpace(f.Text)
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace)
}

// normalize applies NFC, trims trailing whitespace from each line and
// drops leading and trailing blank lines.
func normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func startsWithSpace(s string) bool {
	return s != "" && unicode.IsSpace([]rune(s)[0])
}

func endsWithSpace(s string) bool {
	if s == "" {
		return false
	}
	r := []rune(s)
	return unicode.IsSpace(r[len(r)-1])
}
