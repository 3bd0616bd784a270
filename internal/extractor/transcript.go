package extractor

import (
	"strings"

	"facilitator-agent/internal/domain"
)

// ParseTranscript splits a raw conversation into turns, one per "Speaker: text"
// line. Lines without a colon continue the previous turn; if there is none
// they start a turn with an empty speaker.
func ParseTranscript(raw string) []domain.Turn {
	turns := make([]domain.Turn, 0)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		speaker, text, ok := strings.Cut(line, ":")
		if !ok {
			if n := len(turns); n > 0 {
				turns[n-1].Text += "\n" + line
				continue
			}
			turns = append(turns, domain.Turn{Text: line})
			continue
		}

		turns = append(turns, domain.Turn{
			Speaker: strings.TrimSpace(speaker),
			Text:    strings.TrimSpace(text),
		})
	}
	return turns
}
