package thread

import "strings"

var subjectPrefixes = []string{"re:", "fwd:", "fw:"}

// NormalizeSubject strips leading reply/forward prefixes (repeatedly and
// case-insensitively, including "Re[2]:" counters) for display grouping.
// Normalized subjects are never used for thread identity.
func NormalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)

	for {
		lower := strings.ToLower(subject)
		trimmed := false

		for _, prefix := range subjectPrefixes {
			if strings.HasPrefix(lower, prefix) {
				subject = strings.TrimSpace(subject[len(prefix):])
				trimmed = true
				break
			}

			// Counted forms like "Re[2]:".
			bare := strings.TrimSuffix(prefix, ":")
			if strings.HasPrefix(lower, bare+"[") {
				if close := strings.Index(subject, "]"); close != -1 {
					rest := subject[close+1:]
					rest = strings.TrimPrefix(rest, ":")
					subject = strings.TrimSpace(rest)
					trimmed = true
					break
				}
			}
		}

		if !trimmed {
			return subject
		}
	}
}

// EnsureReplyPrefix prefixes a subject with "Re: " unless a reply prefix is
// already present.
func EnsureReplyPrefix(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return "Re: " + subject
}

// EnsureForwardPrefix prefixes a subject with "Fwd: " unless a forward prefix
// is already present.
func EnsureForwardPrefix(subject string) string {
	lower := strings.ToLower(strings.TrimSpace(subject))
	if strings.HasPrefix(lower, "fwd:") || strings.HasPrefix(lower, "fw:") {
		return subject
	}
	return "Fwd: " + subject
}
