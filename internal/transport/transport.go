package transport

import (
	"context"
	"fmt"
)

// Credentials identify one SMTP mailbox. The pool keys its connections on
// (host, port, username), so all sends for one mailbox share one session.
type Credentials struct {
	Host     string
	Port     int
	Username string
	Password string
	// DisableTLS skips STARTTLS negotiation. Only used against the in-memory
	// test server.
	DisableTLS bool
}

// Addr returns the host:port dial address.
func (c Credentials) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Credentials) poolKey() string {
	return fmt.Sprintf("%s:%d|%s", c.Host, c.Port, c.Username)
}

// Message is one fully composed wire message: the SMTP envelope plus the
// encoded MIME bytes.
type Message struct {
	From       string
	Recipients []string
	Raw        []byte
}

// Sender delivers a message through a mailbox credential. Implemented by
// Pool; the Dispatcher wraps any Sender with retry policy.
type Sender interface {
	Send(ctx context.Context, creds Credentials, msg *Message) error
}
