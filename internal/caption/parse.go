package caption

import "strings"

// Parsed is the speaker/text pair extracted from one caption element.
type Parsed struct {
	Speaker string
	Text    string
}

// ParseNode splits the rendered text of a caption element into a speaker
// (first non-empty line) and an utterance (remaining lines joined by single
// spaces). Elements with fewer than two non-empty lines have not finished
// rendering yet and yield ok == false.
func ParseNode(text string) (Parsed, bool) {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return Parsed{}, false
	}
	return Parsed{Speaker: lines[0], Text: strings.Join(lines[1:], " ")}, true
}
