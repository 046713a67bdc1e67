package imapcli

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/emersion/go-imap"

	"github.com/akozma/mailcore/internal/models"
)

// AppendToSent copies an outbound message into the mailbox's Sent folder so
// other mail clients see it. Callers treat failures as non-fatal: the send
// already happened.
func (s *Synchronizer) AppendToSent(ctx context.Context, mailbox *models.Client, raw []byte, sentAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	password, err := s.encryptor.Decrypt(mailbox.EncryptedIMAPPassword)
	if err != nil {
		return fmt.Errorf("failed to decrypt IMAP password: %w", err)
	}

	c, err := Connect(mailbox, password, s.dialTimeout)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Logout(); err != nil {
			log.Printf("Warning: failed to log out of %s: %v", mailbox.IMAPHost, err)
		}
	}()

	flags := []string{imap.SeenFlag}
	if err := c.Append("Sent", flags, sentAt, bytes.NewBuffer(raw)); err != nil {
		return fmt.Errorf("failed to append to Sent: %w", err)
	}

	return nil
}
