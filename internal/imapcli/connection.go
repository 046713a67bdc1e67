package imapcli

import (
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"

	"github.com/akozma/mailcore/internal/models"
)

// Connect opens and authenticates an IMAP session for a client's mailbox.
// Port 993 uses implicit TLS; any other port dials in the clear (the
// in-memory test server has no TLS support).
func Connect(mailbox *models.Client, password string, timeout time.Duration) (*client.Client, error) {
	dialer := &net.Dialer{Timeout: timeout}
	addr := fmt.Sprintf("%s:%d", mailbox.IMAPHost, mailbox.IMAPPort)

	var c *client.Client
	var err error
	if mailbox.IMAPPort == 993 {
		c, err = client.DialWithDialerTLS(dialer, addr, nil)
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	c.Timeout = timeout

	if err := c.Login(mailbox.IMAPUsername, password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	return c, nil
}
