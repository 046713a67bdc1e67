package models

import "time"

// Message direction relative to the tenant's mailbox.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Provider flags stored on a message. These mirror the IMAP system flags
// but are kept provider-agnostic in the database.
const (
	FlagSeen     = "Seen"
	FlagAnswered = "Answered"
	FlagTrash    = "Trash"
	FlagSpam     = "Spam"
)

// Message is the canonical representation of one sent or received email.
type Message struct {
	ID              string     `json:"id"`
	ClientID        string     `json:"client_id"`
	RemoteID        string     `json:"remote_id"`
	UID             *int64     `json:"uid,omitempty"`
	FromAddress     string     `json:"from_address"`
	ToAddresses     []string   `json:"to_addresses"`
	CCAddresses     []string   `json:"cc_addresses,omitempty"`
	BCCAddresses    []string   `json:"bcc_addresses,omitempty"`
	Subject         string     `json:"subject"`
	BodyText        string     `json:"body_text"`
	BodyHTML        string     `json:"body_html"`
	ThreadID        string     `json:"thread_id"`
	InReplyTo       string     `json:"in_reply_to,omitempty"`
	ReferenceIDs    []string   `json:"reference_ids,omitempty"`
	IsThreadStarter bool       `json:"is_thread_starter"`
	ThreadCount     int        `json:"thread_count"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	Direction       string     `json:"direction"`
	Flags           []string   `json:"flags,omitempty"`
	IsNewsletter    bool       `json:"is_newsletter"`
	NewsletterID    string     `json:"newsletter_id,omitempty"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
}

// HasFlag reports whether the message carries the given provider flag.
func (m *Message) HasFlag(name string) bool {
	for _, f := range m.Flags {
		if f == name {
			return true
		}
	}
	return false
}

// ThreadSummary is the denormalized per-conversation view returned by the
// thread-list query. It is derived from message rows, never stored.
type ThreadSummary struct {
	ThreadID      string     `json:"thread_id"`
	Subject       string     `json:"subject"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	MessageCount  int        `json:"message_count"`
	Participants  []string   `json:"participants"`
}
