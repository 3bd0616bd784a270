// Package extractor turns the loosely formatted strings the API receives into
// participant records and transcript turns. Nothing here fails: unrecognised
// input degrades to placeholders or an empty transcript.
package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"facilitator-agent/internal/domain"
)

const maxParticipants = 2

var (
	profileIDField = regexp.MustCompile(`(?i)\bprofile[ \t_-]*id[ \t]*:[ \t]*([^\r\n]*)`)
	userNameField  = regexp.MustCompile(`(?i)\buser[ \t_-]*name[ \t]*:[ \t]*([^\r\n]*)`)
	nameField      = regexp.MustCompile(`(?i)\bname[ \t]*:[ \t]*([^\r\n]*)`)
)

// ExtractParticipants returns exactly two participants found in raw.
//
// Identifiers and names are paired by order of appearance, not by block: the
// first "Profile ID" goes with the first "User Name" and so on. A bare "Name"
// field is only consulted when no "User Name" field exists at all. Gaps are
// filled with user_N / User N placeholders and anything past the second
// participant is ignored.
func ExtractParticipants(raw string) [maxParticipants]domain.Participant {
	ids := fieldValues(profileIDField, raw)
	names := fieldValues(userNameField, raw)
	if len(names) == 0 {
		names = fieldValues(nameField, raw)
	}

	var out [maxParticipants]domain.Participant
	for i := range out {
		out[i] = Placeholder(i)
		if i < len(ids) {
			out[i].ID = ids[i]
		}
		if i < len(names) {
			out[i].DisplayName = names[i]
		}
	}
	return out
}

// ExtractPair is ExtractParticipants shaped for the decision engine.
func ExtractPair(raw string) domain.Pair {
	ps := ExtractParticipants(raw)
	return domain.Pair{First: ps[0], Second: ps[1]}
}

// Placeholder returns the synthetic participant used for position i (0-based).
func Placeholder(i int) domain.Participant {
	return domain.Participant{
		ID:          fmt.Sprintf("user_%d", i+1),
		DisplayName: fmt.Sprintf("User %d", i+1),
	}
}

func fieldValues(re *regexp.Regexp, raw string) []string {
	matches := re.FindAllStringSubmatch(raw, -1)
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		v := strings.TrimSpace(m[1])
		if v == "" {
			continue
		}
		values = append(values, v)
	}
	return values
}
