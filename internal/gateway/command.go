package gateway

import "strings"

// SlashCommands recognizes slash-prefixed control commands ("/reset",
// "/status"). A lone "/" or a path-looking token ("/tmp/x") does not count.
type SlashCommands struct{}

// IsCommand reports whether text is a control command.
func (SlashCommands) IsCommand(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || trimmed[0] != '/' {
		return false
	}
	head := trimmed[1:]
	if idx := strings.IndexAny(head, " \t\n"); idx >= 0 {
		head = head[:idx]
	}
	if head == "" || strings.Contains(head, "/") {
		return false
	}
	for _, r := range head {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
