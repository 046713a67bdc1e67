package newsletter

import (
	"fmt"
	"strings"
)

// Personalize substitutes the template tokens in both bodies for one
// recipient.
func Personalize(text, html string, r Recipient) (string, string) {
	return personalizeString(text, r), personalizeString(html, r)
}

func personalizeString(s string, r Recipient) string {
	name := r.Name
	if name == "" {
		name = r.Email
	}

	firstName := name
	if fields := strings.Fields(name); len(fields) > 0 {
		firstName = fields[0]
	}

	return strings.NewReplacer(
		"{{name}}", name,
		"{{email}}", r.Email,
		"{{firstName}}", firstName,
	).Replace(s)
}

// AppendUnsubscribeLink adds the recipient's unsubscribe link to both
// bodies. The token is scoped to (email, client); the link works without
// authentication.
func AppendUnsubscribeLink(text, html, baseURL, token string) (string, string) {
	url := fmt.Sprintf("%s/unsubscribe?token=%s", strings.TrimSuffix(baseURL, "/"), token)

	text = text + "\n\nUnsubscribe: " + url
	if html != "" {
		html = html + fmt.Sprintf(`<br><br><a href="%s">Unsubscribe</a>`, url)
	}
	return text, html
}

// ValidEmail is a deliberately permissive syntactic check: full RFC
// validation rejects real-world addresses that providers accept.
func ValidEmail(email string) bool {
	return len(email) >= 5 && strings.Contains(email, "@") && strings.Contains(email, ".")
}
