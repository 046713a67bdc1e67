package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

const (
	// defaultMaxMessages bounds how many sends go through one connection
	// before it is cycled with a fresh session.
	defaultMaxMessages = 100
	// defaultDialTimeout bounds the connect and greeting phase. A send that
	// cannot establish a session within this window fails fast instead of
	// hanging the calling request.
	defaultDialTimeout = 30 * time.Second
)

// Pool owns one SMTP connection per (host, port, username) key for the
// process lifetime. Many shared-hosting providers hard-cap concurrent
// authenticated sessions per mailbox, so all sends for one mailbox are
// serialized through a single connection; two concurrent callers on the same
// credential observe FIFO delivery order relative to each other.
//
// The pool never retries. Retry policy lives solely in the Dispatcher.
type Pool struct {
	mu          sync.Mutex
	conns       map[string]*pooledConn
	maxMessages int
	dialTimeout time.Duration
}

type pooledConn struct {
	mu     sync.Mutex
	client *smtp.Client
	sent   int
}

// NewPool creates a connection pool with default limits.
func NewPool() *Pool {
	return &Pool{
		conns:       make(map[string]*pooledConn),
		maxMessages: defaultMaxMessages,
		dialTimeout: defaultDialTimeout,
	}
}

// NewPoolWithLimits creates a pool with a custom per-connection message cap
// and dial timeout.
func NewPoolWithLimits(maxMessages int, dialTimeout time.Duration) *Pool {
	p := NewPool()
	if maxMessages > 0 {
		p.maxMessages = maxMessages
	}
	if dialTimeout > 0 {
		p.dialTimeout = dialTimeout
	}
	return p
}

// Send delivers one message through the pooled connection for the given
// credentials, opening a session if none exists. A failure attributable to
// the connection itself evicts the entry so the next send dials fresh
// instead of reusing a poisoned session.
func (p *Pool) Send(ctx context.Context, creds Credentials, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entry := p.entry(creds.poolKey())

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// Cycle the connection once it has carried its share of messages.
	if entry.client != nil && entry.sent >= p.maxMessages {
		if err := entry.client.Quit(); err != nil {
			log.Printf("Transport: failed to quit connection for %s: %v", creds.poolKey(), err)
		}
		entry.client = nil
		entry.sent = 0
	}

	if entry.client == nil {
		client, err := p.dial(creds)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", creds.Addr(), err)
		}
		entry.client = client
		entry.sent = 0
	}

	if err := entry.client.SendMail(msg.From, msg.Recipients, bytes.NewReader(msg.Raw)); err != nil {
		if isConnectionError(err) {
			_ = entry.client.Close()
			entry.client = nil
			entry.sent = 0
		}
		return fmt.Errorf("failed to send message: %w", err)
	}

	entry.sent++
	return nil
}

// entry returns the pooled connection slot for a key, creating it if needed.
func (p *Pool) entry(key string) *pooledConn {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.conns[key]
	if !ok {
		entry = &pooledConn{}
		p.conns[key] = entry
	}
	return entry
}

// dial opens, greets, secures, and authenticates a new SMTP session.
func (p *Pool) dial(creds Credentials) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: p.dialTimeout}

	conn, err := dialer.Dial("tcp", creds.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	var client *smtp.Client
	if creds.Port == 465 && !creds.DisableTLS {
		client = smtp.NewClient(tls.Client(conn, &tls.Config{ServerName: creds.Host}))
	} else {
		client = smtp.NewClient(conn)
	}

	client.CommandTimeout = p.dialTimeout
	client.SubmissionTimeout = 2 * p.dialTimeout

	if err := client.Hello("localhost"); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("greeting failed: %w", err)
	}

	if !creds.DisableTLS && creds.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			// go-smtp no longer exports Client.StartTLS; the upgrade is only
			// available while a session is being established, so reconnect
			// with NewClientStartTLS (it greets as "localhost" and performs
			// the upgrade before returning).
			_ = client.Close()
			conn, err = dialer.Dial("tcp", creds.Addr())
			if err != nil {
				return nil, fmt.Errorf("failed to dial: %w", err)
			}
			client, err = smtp.NewClientStartTLS(conn, &tls.Config{ServerName: creds.Host})
			if err != nil {
				return nil, fmt.Errorf("starttls failed: %w", err)
			}
			client.CommandTimeout = p.dialTimeout
			client.SubmissionTimeout = 2 * p.dialTimeout
		}
	}

	if creds.Username != "" {
		if err := client.Auth(sasl.NewPlainClient("", creds.Username, creds.Password)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	return client, nil
}

// Close quits every pooled connection. Called on shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, entry := range p.conns {
		entry.mu.Lock()
		if entry.client != nil {
			if err := entry.client.Quit(); err != nil {
				log.Printf("Transport: failed to quit connection for %s: %v", key, err)
			}
			entry.client = nil
		}
		entry.mu.Unlock()
		delete(p.conns, key)
	}
}
