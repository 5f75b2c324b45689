package pdftext

import (
	"regexp"
	"strings"
)

var (
	newlineRun = regexp.MustCompile(`\n{3,}`)
	spaceRun   = regexp.MustCompile(` {2,}`)
)

// Normalize cleans extracted text: newline runs collapse to one blank line,
// space runs collapse to one space, every line is trimmed and blank lines
// at both ends are dropped. Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	text = newlineRun.ReplaceAllString(text, "\n\n")
	text = spaceRun.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for idx, line := range lines {
		lines[idx] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	// Trimming can turn whitespace-only lines into new newline runs.
	text = newlineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
