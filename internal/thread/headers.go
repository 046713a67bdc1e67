package thread

import (
	"regexp"
	"strings"
)

var messageIDPattern = regexp.MustCompile(`<([^>]+)>`)

// CleanMessageID strips the angle brackets and surrounding whitespace from a
// Message-ID header value.
func CleanMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}

// ParseReferences splits a References header into individual message ids,
// oldest first, as they appear in the header.
func ParseReferences(references string) []string {
	matches := messageIDPattern.FindAllStringSubmatch(references, -1)

	var result []string
	for _, match := range matches {
		if len(match) > 1 {
			result = append(result, match[1])
		}
	}
	return result
}

// FormatMessageID wraps a bare message id in angle brackets for use in a
// header. Already-bracketed values pass through unchanged.
func FormatMessageID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "<") {
		return id
	}
	return "<" + id + ">"
}

// FormatReferences renders a references chain as a References header value.
func FormatReferences(ids []string) string {
	formatted := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		formatted = append(formatted, FormatMessageID(id))
	}
	return strings.Join(formatted, " ")
}
