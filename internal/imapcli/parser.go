package imapcli

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"

	"github.com/akozma/mailcore/internal/models"
	"github.com/akozma/mailcore/internal/thread"
)

// ParseMessage converts a fetched IMAP message into the canonical model. The
// thread id is left empty; the caller resolves it against the local index.
func ParseMessage(imapMsg *imap.Message, clientID string) (*models.Message, error) {
	if imapMsg == nil {
		return nil, fmt.Errorf("imap message is nil")
	}

	uid := int64(imapMsg.Uid)
	msg := &models.Message{
		ClientID:  clientID,
		UID:       &uid,
		Direction: models.DirectionInbound,
		Flags:     flagsFromIMAP(imapMsg.Flags),
	}

	if imapMsg.Envelope != nil {
		envelope := imapMsg.Envelope
		msg.RemoteID = thread.CleanMessageID(envelope.MessageId)
		msg.InReplyTo = thread.CleanMessageID(envelope.InReplyTo)
		msg.Subject = envelope.Subject
		if len(envelope.From) > 0 {
			msg.FromAddress = formatAddress(envelope.From[0])
		}
		msg.ToAddresses = formatAddressList(envelope.To)
		msg.CCAddresses = formatAddressList(envelope.Cc)
		if !envelope.Date.IsZero() {
			date := envelope.Date
			msg.SentAt = &date
		}
	}

	// Some senders omit Message-ID; synthesize a stable surrogate so the
	// (client_id, remote_id) upsert stays idempotent across refreshes.
	if msg.RemoteID == "" {
		msg.RemoteID = fmt.Sprintf("uid-%d@local", imapMsg.Uid)
	}

	section := &imap.BodySectionName{}
	if bodyReader := imapMsg.GetBody(section); bodyReader != nil {
		if err := parseBody(bodyReader, msg); err != nil {
			// Headers alone are still worth indexing.
			log.Printf("Warning: failed to parse body of %s: %v", msg.RemoteID, err)
		}
	}

	return msg, nil
}

// parseBody extracts the text and HTML parts plus the References chain,
// which the envelope fetch does not carry.
func parseBody(bodyReader io.Reader, msg *models.Message) error {
	envelope, err := enmime.ReadEnvelope(bodyReader)
	if err != nil {
		return fmt.Errorf("failed to parse message body: %w", err)
	}

	msg.BodyText = envelope.Text
	msg.BodyHTML = envelope.HTML
	if msg.BodyHTML == "" && envelope.Text != "" {
		msg.BodyHTML = strings.ReplaceAll(envelope.Text, "\n", "<br>")
	}

	msg.ReferenceIDs = thread.ParseReferences(envelope.GetHeader("References"))
	if msg.InReplyTo == "" {
		msg.InReplyTo = thread.CleanMessageID(envelope.GetHeader("In-Reply-To"))
	}

	return nil
}

// formatAddress renders an IMAP address as "Name <user@host>" or
// "user@host".
func formatAddress(address *imap.Address) string {
	if address == nil || (address.MailboxName == "" && address.HostName == "") {
		return ""
	}

	if address.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", address.PersonalName, address.MailboxName, address.HostName)
	}

	return fmt.Sprintf("%s@%s", address.MailboxName, address.HostName)
}

func formatAddressList(addresses []*imap.Address) []string {
	result := make([]string, 0, len(addresses))
	for _, address := range addresses {
		if formatted := formatAddress(address); formatted != "" {
			result = append(result, formatted)
		}
	}
	return result
}
