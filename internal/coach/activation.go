package coach

import (
	"regexp"
	"strings"
)

var activationRe = regexp.MustCompile(`(?i)coach me on (.+?) - (.+)`)

// Activation is a parsed "coach me on <contact> - <goal>" command.
type Activation struct {
	Contact string
	Goal    string
}

// ParseActivation recognizes an activation command anywhere in text.
// The contact runs up to the first " - "; the goal is the rest of the line.
// Both are trimmed and either may end up empty: "coach me on bob -  " still
// activates bob with no goal.
func ParseActivation(text string) (Activation, bool) {
	m := activationRe.FindStringSubmatch(text)
	if m == nil {
		return Activation{}, false
	}
	return Activation{
		Contact: strings.TrimSpace(m[1]),
		Goal:    strings.TrimSpace(m[2]),
	}, true
}
