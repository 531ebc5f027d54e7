package narrative

import "strings"

func containsLine(text, prefix string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func containsSubstring(s, sub string) bool {
	return strings.Contains(s, sub)
}
