package compose

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akozma/mailcore/internal/crypto"
	"github.com/akozma/mailcore/internal/db"
	"github.com/akozma/mailcore/internal/models"
	"github.com/akozma/mailcore/internal/thread"
	"github.com/akozma/mailcore/internal/transport"
)

// Dispatcher delivers a composed message with retry policy applied.
type Dispatcher interface {
	SendWithRetry(ctx context.Context, creds transport.Credentials, msg *transport.Message) (*transport.DeliveryResult, error)
}

// Mirror copies a delivered message into the mailbox's Sent folder.
type Mirror interface {
	AppendToSent(ctx context.Context, mailbox *models.Client, raw []byte, sentAt time.Time) error
}

// Request carries the caller-supplied content of an outbound message. For
// replies and forwards, empty fields default from the original message.
type Request struct {
	To       []string `json:"to"`
	CC       []string `json:"cc,omitempty"`
	BCC      []string `json:"bcc,omitempty"`
	Subject  string   `json:"subject"`
	BodyText string   `json:"body_text"`
	BodyHTML string   `json:"body_html,omitempty"`
}

// Composer builds outbound messages for the send, reply, and forward
// operations, dispatches them, and persists the result.
type Composer struct {
	store      db.MessageStore
	dispatcher Dispatcher
	mirror     Mirror
	encryptor  *crypto.Encryptor
}

// NewComposer creates a Composer. mirror may be nil to disable the Sent
// folder copy.
func NewComposer(store db.MessageStore, dispatcher Dispatcher, mirror Mirror, encryptor *crypto.Encryptor) *Composer {
	return &Composer{
		store:      store,
		dispatcher: dispatcher,
		mirror:     mirror,
		encryptor:  encryptor,
	}
}

// Send composes and delivers a fresh message, starting a new thread under
// the generated remote id.
func (c *Composer) Send(ctx context.Context, client *models.Client, req *Request) (*models.SendResponse, error) {
	if len(req.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	msg := c.newOutbound(client, req)
	msg.ThreadID = msg.RemoteID
	msg.IsThreadStarter = true

	return c.deliver(ctx, client, msg)
}

// Reply composes a reply to an existing message: recipients default to the
// original sender, the subject gets a "Re:" prefix, and the reply joins the
// original's thread through In-Reply-To and References.
func (c *Composer) Reply(ctx context.Context, client *models.Client, originalRemoteID string, req *Request) (*models.SendResponse, error) {
	original, err := c.store.FindByRemoteID(ctx, client.ID, originalRemoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load original message: %w", err)
	}

	msg := c.newOutbound(client, req)
	if len(msg.ToAddresses) == 0 {
		msg.ToAddresses = []string{original.FromAddress}
	}
	if msg.Subject == "" {
		msg.Subject = thread.EnsureReplyPrefix(original.Subject)
	}
	msg.InReplyTo = original.RemoteID
	msg.ReferenceIDs = append(append([]string{}, original.ReferenceIDs...), original.RemoteID)
	msg.ThreadID = original.ThreadID

	return c.deliver(ctx, client, msg)
}

// ReplyAll composes a reply addressed to everyone on the original message —
// the union of its from, to, and cc — minus the client's own address.
// Caller-supplied To/CC override the computed partition.
func (c *Composer) ReplyAll(ctx context.Context, client *models.Client, originalRemoteID string, req *Request) (*models.SendResponse, error) {
	original, err := c.store.FindByRemoteID(ctx, client.ID, originalRemoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load original message: %w", err)
	}

	msg := c.newOutbound(client, req)
	if len(msg.ToAddresses) == 0 {
		msg.ToAddresses = []string{original.FromAddress}
		if len(msg.CCAddresses) == 0 {
			msg.CCAddresses = excludeAddress(append(append([]string{}, original.ToAddresses...), original.CCAddresses...), client.FromAddress)
		}
	}
	if msg.Subject == "" {
		msg.Subject = thread.EnsureReplyPrefix(original.Subject)
	}
	msg.InReplyTo = original.RemoteID
	msg.ReferenceIDs = append(append([]string{}, original.ReferenceIDs...), original.RemoteID)
	msg.ThreadID = original.ThreadID

	return c.deliver(ctx, client, msg)
}

// Forward composes a forward of an existing message. Forwarding starts a new
// conversation: the original body is quoted, but no threading headers link
// the forward back to the source thread.
func (c *Composer) Forward(ctx context.Context, client *models.Client, originalRemoteID string, req *Request) (*models.SendResponse, error) {
	if len(req.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	original, err := c.store.FindByRemoteID(ctx, client.ID, originalRemoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load original message: %w", err)
	}

	msg := c.newOutbound(client, req)
	if msg.Subject == "" {
		msg.Subject = thread.EnsureForwardPrefix(original.Subject)
	}
	msg.BodyText = quoteForward(msg.BodyText, original)
	if msg.BodyHTML != "" || original.BodyHTML != "" {
		msg.BodyHTML = quoteForwardHTML(msg.BodyHTML, original)
	}
	msg.ThreadID = msg.RemoteID
	msg.IsThreadStarter = true

	return c.deliver(ctx, client, msg)
}

// newOutbound seeds an outbound Message from the request, generating the
// remote id under the client's sending domain.
func (c *Composer) newOutbound(client *models.Client, req *Request) *models.Message {
	bodyText := req.BodyText
	bodyHTML := req.BodyHTML
	if client.Signature != "" {
		bodyText = bodyText + "\n\n" + client.Signature
		if bodyHTML != "" {
			bodyHTML = bodyHTML + "<br><br>" + strings.ReplaceAll(client.Signature, "\n", "<br>")
		}
	}

	return &models.Message{
		ClientID:     client.ID,
		RemoteID:     fmt.Sprintf("%s@%s", uuid.NewString(), domainOf(client.FromAddress)),
		FromAddress:  client.FromAddress,
		ToAddresses:  append([]string{}, req.To...),
		CCAddresses:  append([]string{}, req.CC...),
		BCCAddresses: append([]string{}, req.BCC...),
		Subject:      req.Subject,
		BodyText:     bodyText,
		BodyHTML:     bodyHTML,
		Direction:    models.DirectionOutbound,
		Flags:        []string{models.FlagSeen},
	}
}

// deliver encodes, dispatches, persists, and mirrors a composed message.
// Persistence and the Sent mirror run only after SMTP accepted the message;
// the mirror is best-effort.
func (c *Composer) deliver(ctx context.Context, client *models.Client, msg *models.Message) (*models.SendResponse, error) {
	raw, err := BuildMIME(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	password, err := c.encryptor.Decrypt(client.EncryptedSMTPPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt SMTP password: %w", err)
	}

	creds := transport.Credentials{
		Host:     client.SMTPHost,
		Port:     client.SMTPPort,
		Username: client.SMTPUsername,
		Password: password,
	}

	recipients := envelopeRecipients(msg)
	result, err := c.dispatcher.SendWithRetry(ctx, creds, &transport.Message{
		From:       bareAddress(msg.FromAddress),
		Recipients: recipients,
		Raw:        raw,
	})
	if err != nil {
		return nil, err
	}

	sentAt := result.DeliveredAt
	msg.SentAt = &sentAt

	if err := c.store.SaveMessage(ctx, msg); err != nil {
		// The message is out the door; surface the persistence failure but
		// keep the response contract intact for the caller.
		return nil, fmt.Errorf("message sent but failed to save: %w", err)
	}

	if c.mirror != nil {
		if err := c.mirror.AppendToSent(ctx, client, raw, sentAt); err != nil {
			log.Printf("Composer: failed to mirror %s to Sent: %v", msg.RemoteID, err)
		}
	}

	if err := c.store.RefreshThreadMetadata(ctx, client.ID, msg.ThreadID); err != nil {
		log.Printf("Composer: failed to refresh thread %s: %v", msg.ThreadID, err)
	}

	return &models.SendResponse{
		RemoteID:   msg.RemoteID,
		ThreadID:   msg.ThreadID,
		Recipients: recipients,
		Timestamp:  sentAt,
	}, nil
}

func quoteForward(body string, original *models.Message) string {
	var b strings.Builder
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	b.WriteString("---------- Forwarded message ----------\n")
	b.WriteString("From: " + original.FromAddress + "\n")
	if original.SentAt != nil {
		b.WriteString("Date: " + original.SentAt.Format(time.RFC1123Z) + "\n")
	}
	b.WriteString("Subject: " + original.Subject + "\n")
	b.WriteString("To: " + strings.Join(original.ToAddresses, ", ") + "\n\n")
	b.WriteString(original.BodyText)
	return b.String()
}

func quoteForwardHTML(body string, original *models.Message) string {
	quoted := original.BodyHTML
	if quoted == "" {
		quoted = strings.ReplaceAll(original.BodyText, "\n", "<br>")
	}

	var b strings.Builder
	if body != "" {
		b.WriteString(body)
		b.WriteString("<br><br>")
	}
	b.WriteString("<blockquote>")
	b.WriteString(quoted)
	b.WriteString("</blockquote>")
	return b.String()
}

// excludeAddress filters one address (compared bare, case-insensitively) out
// of a list, deduplicating as it goes.
func excludeAddress(addresses []string, exclude string) []string {
	excludeBare := strings.ToLower(bareAddress(exclude))
	seen := make(map[string]bool)

	var result []string
	for _, address := range addresses {
		bare := strings.ToLower(bareAddress(address))
		if bare == "" || bare == excludeBare || seen[bare] {
			continue
		}
		seen[bare] = true
		result = append(result, address)
	}
	return result
}

func domainOf(address string) string {
	bare := bareAddress(address)
	if at := strings.LastIndex(bare, "@"); at != -1 {
		return bare[at+1:]
	}
	return "localhost"
}
