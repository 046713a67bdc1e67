package compose

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/akozma/mailcore/internal/models"
	"github.com/akozma/mailcore/internal/thread"
)

// BuildMIME encodes a message into its wire form: a multipart MIME body with
// the identity and threading headers set.
func BuildMIME(msg *models.Message) ([]byte, error) {
	builder := enmime.Builder().
		Subject(msg.Subject).
		Text([]byte(msg.BodyText)).
		Header("Message-Id", thread.FormatMessageID(msg.RemoteID))

	name, addr := splitAddress(msg.FromAddress)
	builder = builder.From(name, addr)

	for _, to := range msg.ToAddresses {
		name, addr := splitAddress(to)
		builder = builder.To(name, addr)
	}
	for _, cc := range msg.CCAddresses {
		name, addr := splitAddress(cc)
		builder = builder.CC(name, addr)
	}

	if msg.BodyHTML != "" {
		builder = builder.HTML([]byte(msg.BodyHTML))
	}
	if msg.InReplyTo != "" {
		builder = builder.Header("In-Reply-To", thread.FormatMessageID(msg.InReplyTo))
	}
	if len(msg.ReferenceIDs) > 0 {
		builder = builder.Header("References", thread.FormatReferences(msg.ReferenceIDs))
	}

	part, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build MIME message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode MIME message: %w", err)
	}

	return buf.Bytes(), nil
}

// envelopeRecipients returns the bare SMTP envelope addresses: to + cc +
// bcc, deduplicated.
func envelopeRecipients(msg *models.Message) []string {
	seen := make(map[string]bool)
	var result []string

	for _, list := range [][]string{msg.ToAddresses, msg.CCAddresses, msg.BCCAddresses} {
		for _, address := range list {
			bare := bareAddress(address)
			if bare == "" || seen[strings.ToLower(bare)] {
				continue
			}
			seen[strings.ToLower(bare)] = true
			result = append(result, bare)
		}
	}
	return result
}

// bareAddress extracts "user@host" from a possibly display-named address.
func bareAddress(address string) string {
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return strings.TrimSpace(address)
	}
	return parsed.Address
}

// splitAddress separates a display name from the address itself.
func splitAddress(address string) (name, addr string) {
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return "", strings.TrimSpace(address)
	}
	return parsed.Name, parsed.Address
}
