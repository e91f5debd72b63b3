package paragraph

import (
	"slices"
	"strings"
)

// Named joiners selectable from configuration.
const (
	JoinerNewline = "newline"
	JoinerSpace   = "space"
	JoinerNone    = "none"
)

var joiners = map[string]Joiner{
	JoinerNewline: NewlineJoiner,
	JoinerSpace: func(lines []string) string {
		return strings.Join(lines, " ")
	},
	JoinerNone: func(lines []string) string {
		return strings.Join(lines, "")
	},
}

// JoinerByName returns the joiner registered under name. The empty name
// selects the newline joiner.
func JoinerByName(name string) (Joiner, error) {
	if name == "" {
		return NewlineJoiner, nil
	}
	j, ok := joiners[strings.ToLower(name)]
	if !ok {
		return nil, &ConfigurationError{Setting: "joiner", Value: name, Err: ErrUnknownJoiner}
	}
	return j, nil
}

// JoinerNames returns the registered joiner names in sorted order.
func JoinerNames() []string {
	names := make([]string, 0, len(joiners))
	for name := range joiners {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
