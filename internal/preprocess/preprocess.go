// Package preprocess cleans extracted document text before chunking.
package preprocess

import (
	"regexp"
	"strings"
)

// DefaultRepeatThreshold is the occurrence count at which a line is treated
// as a running header or footer.
const DefaultRepeatThreshold = 2

var spaceRunRe = regexp.MustCompile(` +`)

// RemoveRepeatedLines drops every line whose exact text occurs at least
// threshold times. Survivors keep their relative order and are joined with "\n".
func RemoveRepeatedLines(text string, threshold int) string {
	lines := splitLines(text)
	counts := make(map[string]int, len(lines))
	for _, l := range lines {
		counts[l]++
	}
	kept := lines[:0:0]
	for _, l := range lines {
		if counts[l] < threshold {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

// NormalizeWhitespace turns tabs into spaces, collapses space runs, unifies
// line endings to "\n", trims every line, drops blank lines at both ends and
// collapses runs of blank lines to one.
func NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\t", " ")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	out := make([]string, 0, len(lines))
	prevEmpty := false
	for _, l := range lines {
		if l == "" {
			if prevEmpty {
				continue
			}
			prevEmpty = true
		} else {
			prevEmpty = false
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// Preprocess removes repeated header/footer lines, then normalizes whitespace.
func Preprocess(text string) string {
	return NormalizeWhitespace(RemoveRepeatedLines(text, DefaultRepeatThreshold))
}

// splitLines splits on \n, \r\n, \r, form feed and vertical tab. A trailing
// line break does not produce an empty final line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n', '\f', '\v':
			lines = append(lines, text[start:i])
			start = i + 1
		case '\r':
			lines = append(lines, text[start:i])
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
