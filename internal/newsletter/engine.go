package newsletter

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akozma/mailcore/internal/compose"
	"github.com/akozma/mailcore/internal/crypto"
	"github.com/akozma/mailcore/internal/db"
	"github.com/akozma/mailcore/internal/models"
	"github.com/akozma/mailcore/internal/ratelimit"
	"github.com/akozma/mailcore/internal/transport"
)

const (
	defaultBatchSize    = 50
	defaultBatchDelay   = 1 * time.Second
	defaultMessageDelay = 100 * time.Millisecond
)

// Dispatcher delivers one newsletter message with retry policy applied.
type Dispatcher interface {
	SendWithRetry(ctx context.Context, creds transport.Credentials, msg *transport.Message) (*transport.DeliveryResult, error)
}

// Notifier broadcasts progress events to a client's connected sessions.
type Notifier interface {
	Broadcast(clientID string, event interface{})
}

// Content is the newsletter template. Bodies may carry {{name}}, {{email}},
// and {{firstName}} tokens.
type Content struct {
	Subject  string `json:"subject"`
	BodyText string `json:"body_text"`
	BodyHTML string `json:"body_html,omitempty"`
}

// Recipient is one resolved newsletter target.
type Recipient struct {
	Email            string
	Name             string
	UnsubscribeToken string
}

// Report aggregates a finished newsletter run.
type Report struct {
	NewsletterID string   `json:"newsletter_id"`
	Sent         int      `json:"sent"`
	Failed       int      `json:"failed"`
	Errors       []string `json:"errors,omitempty"`
}

// Engine sends a newsletter in paced batches. The transport below is already
// serialized per credential, so batching bounds wall-clock exposure and
// isolates partial failure rather than parallelizing.
type Engine struct {
	store        db.NewsletterStore
	dispatcher   Dispatcher
	limiter      *ratelimit.Limiter
	notifier     Notifier
	encryptor    *crypto.Encryptor
	batchSize    int
	batchDelay   time.Duration
	messageDelay time.Duration
}

// NewEngine creates an Engine with the default pacing (50 per batch, 1s
// between batches, 100ms between messages). notifier may be nil.
func NewEngine(store db.NewsletterStore, dispatcher Dispatcher, limiter *ratelimit.Limiter, notifier Notifier, encryptor *crypto.Encryptor) *Engine {
	return &Engine{
		store:        store,
		dispatcher:   dispatcher,
		limiter:      limiter,
		notifier:     notifier,
		encryptor:    encryptor,
		batchSize:    defaultBatchSize,
		batchDelay:   defaultBatchDelay,
		messageDelay: defaultMessageDelay,
	}
}

// SetPacing overrides the batch size and delays. Used by tests and by
// deployments with provider-specific pacing needs.
func (e *Engine) SetPacing(batchSize int, batchDelay, messageDelay time.Duration) {
	if batchSize > 0 {
		e.batchSize = batchSize
	}
	if batchDelay >= 0 {
		e.batchDelay = batchDelay
	}
	if messageDelay >= 0 {
		e.messageDelay = messageDelay
	}
}

// Resolve produces the recipient list for a run. With no custom list the
// client's active subscribers are used; a custom list is deduplicated,
// syntactically validated, and upserted so every recipient has a stable
// unsubscribe token.
func (e *Engine) Resolve(ctx context.Context, client *models.Client, custom []Recipient) ([]Recipient, error) {
	if len(custom) == 0 {
		subscribers, err := e.store.ActiveSubscribers(ctx, client.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load subscribers: %w", err)
		}

		recipients := make([]Recipient, 0, len(subscribers))
		for _, sub := range subscribers {
			recipients = append(recipients, Recipient{
				Email:            sub.Email,
				Name:             sub.Name,
				UnsubscribeToken: sub.UnsubscribeToken,
			})
		}
		return recipients, nil
	}

	seen := make(map[string]bool)
	recipients := make([]Recipient, 0, len(custom))
	for _, r := range custom {
		email := strings.ToLower(strings.TrimSpace(r.Email))
		if !ValidEmail(email) {
			return nil, fmt.Errorf("invalid recipient address %q", r.Email)
		}
		if seen[email] {
			continue
		}
		seen[email] = true

		sub, err := e.store.EnsureSubscriber(ctx, client.ID, email, r.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to register recipient %s: %w", email, err)
		}
		recipients = append(recipients, Recipient{
			Email:            sub.Email,
			Name:             sub.Name,
			UnsubscribeToken: sub.UnsubscribeToken,
		})
	}
	return recipients, nil
}

// Ack builds the immediate acknowledgement for a run of the given size.
func (e *Engine) Ack(client *models.Client, newsletterID string, recipientCount int) *models.NewsletterAck {
	batches := e.BatchCount(recipientCount)
	return &models.NewsletterAck{
		NewsletterID:    newsletterID,
		TotalRecipients: recipientCount,
		TotalBatches:    batches,
		EstimatedTime:   e.EstimateDuration(recipientCount).Round(time.Second).String(),
		RateLimit:       e.limiter.Check(client.ID),
	}
}

// BatchCount returns how many batches a recipient count splits into.
func (e *Engine) BatchCount(recipientCount int) int {
	if recipientCount == 0 {
		return 0
	}
	return (recipientCount + e.batchSize - 1) / e.batchSize
}

// EstimateDuration projects the wall-clock time of a run from its pacing.
func (e *Engine) EstimateDuration(recipientCount int) time.Duration {
	batches := e.BatchCount(recipientCount)
	if batches == 0 {
		return 0
	}
	return time.Duration(batches-1)*e.batchDelay + time.Duration(recipientCount)*e.messageDelay
}

// Run sends the newsletter to every recipient. The whole run is rejected up
// front if the projected volume exceeds the remaining rate budget; after
// that, per-recipient failures are recorded and never abort the run. The
// rate ledger is charged with the actual sent count at the end.
// newsletterID ties the persisted messages to the acknowledgement already
// returned to the caller; pass "" to generate one.
func (e *Engine) Run(ctx context.Context, client *models.Client, content *Content, recipients []Recipient, newsletterID string) (*Report, error) {
	status := e.limiter.Check(client.ID)
	if !status.CanSend || len(recipients) > status.RemainingHourly || len(recipients) > status.RemainingDaily {
		return nil, fmt.Errorf("rate limit exceeded: %d recipients, %d/%d hourly and %d/%d daily used",
			len(recipients), status.Hourly, status.HourlyLimit, status.Daily, status.DailyLimit)
	}

	password, err := e.encryptor.Decrypt(client.EncryptedSMTPPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt SMTP password: %w", err)
	}
	creds := transport.Credentials{
		Host:     client.SMTPHost,
		Port:     client.SMTPPort,
		Username: client.SMTPUsername,
		Password: password,
	}

	if newsletterID == "" {
		newsletterID = uuid.NewString()
	}
	report := &Report{NewsletterID: newsletterID}
	totalBatches := e.BatchCount(len(recipients))

	for batch := 0; batch*e.batchSize < len(recipients); batch++ {
		if batch > 0 {
			if err := sleep(ctx, e.batchDelay); err != nil {
				return report, err
			}
		}

		start := batch * e.batchSize
		end := min(start+e.batchSize, len(recipients))

		for i, recipient := range recipients[start:end] {
			if i > 0 {
				if err := sleep(ctx, e.messageDelay); err != nil {
					return report, err
				}
			}

			if err := e.sendOne(ctx, client, creds, content, recipient, report.NewsletterID); err != nil {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", recipient.Email, err))
				log.Printf("Newsletter: failed to send to %s: %v", recipient.Email, err)
				continue
			}
			report.Sent++
		}

		e.notify(client.ID, "newsletter_batch", map[string]interface{}{
			"newsletter_id": report.NewsletterID,
			"batch":         batch + 1,
			"total_batches": totalBatches,
			"sent":          report.Sent,
			"failed":        report.Failed,
		})
	}

	e.limiter.Record(client.ID, report.Sent)

	e.notify(client.ID, "newsletter_done", map[string]interface{}{
		"newsletter_id": report.NewsletterID,
		"sent":          report.Sent,
		"failed":        report.Failed,
	})

	return report, nil
}

// sendOne personalizes, dispatches, and persists a single recipient's copy.
func (e *Engine) sendOne(ctx context.Context, client *models.Client, creds transport.Credentials, content *Content, recipient Recipient, newsletterID string) error {
	bodyText, bodyHTML := Personalize(content.BodyText, content.BodyHTML, recipient)
	bodyText, bodyHTML = AppendUnsubscribeLink(bodyText, bodyHTML, client.BaseURL, recipient.UnsubscribeToken)

	msg := &models.Message{
		ClientID:     client.ID,
		RemoteID:     fmt.Sprintf("%s@%s", uuid.NewString(), domainOf(client.FromAddress)),
		FromAddress:  client.FromAddress,
		ToAddresses:  []string{recipient.Email},
		Subject:      personalizeString(content.Subject, recipient),
		BodyText:     bodyText,
		BodyHTML:     bodyHTML,
		Direction:    models.DirectionOutbound,
		Flags:        []string{models.FlagSeen},
		IsNewsletter: true,
		NewsletterID: newsletterID,
	}
	msg.ThreadID = msg.RemoteID
	msg.IsThreadStarter = true

	raw, err := compose.BuildMIME(msg)
	if err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}

	result, err := e.dispatcher.SendWithRetry(ctx, creds, &transport.Message{
		From:       client.FromAddress,
		Recipients: []string{recipient.Email},
		Raw:        raw,
	})
	if err != nil {
		return err
	}

	sentAt := result.DeliveredAt
	msg.SentAt = &sentAt

	if err := e.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("sent but failed to save: %w", err)
	}
	if err := e.store.RefreshThreadMetadata(ctx, client.ID, msg.ThreadID); err != nil {
		log.Printf("Newsletter: failed to refresh thread %s: %v", msg.ThreadID, err)
	}

	return nil
}

func (e *Engine) notify(clientID, eventType string, payload map[string]interface{}) {
	if e.notifier == nil {
		return
	}
	payload["type"] = eventType
	e.notifier.Broadcast(clientID, payload)
}

// sleep waits for the given duration, aborting early on context
// cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func domainOf(address string) string {
	if at := strings.LastIndex(address, "@"); at != -1 {
		return address[at+1:]
	}
	return "localhost"
}
