package imapcli

import (
	"context"
	"fmt"
	"log"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/akozma/mailcore/internal/models"
)

// imapFlagNames maps provider-agnostic flag names to IMAP system flags.
// Trash and Spam map to keyword-style handling on providers without
// dedicated folders; Deleted covers the common case.
var imapFlagNames = map[string]string{
	models.FlagSeen:     imap.SeenFlag,
	models.FlagAnswered: imap.AnsweredFlag,
	models.FlagTrash:    imap.DeletedFlag,
	models.FlagSpam:     "$Junk",
}

// flagsFromIMAP maps IMAP system flags to the stored flag names, dropping
// internal flags like \Recent.
func flagsFromIMAP(flags []string) []string {
	var result []string
	for _, flag := range flags {
		switch flag {
		case imap.SeenFlag:
			result = append(result, models.FlagSeen)
		case imap.AnsweredFlag:
			result = append(result, models.FlagAnswered)
		case imap.DeletedFlag:
			result = append(result, models.FlagTrash)
		case "$Junk":
			result = append(result, models.FlagSpam)
		}
	}
	return result
}

// AddFlags sets the given flags on a message by UID in the client's INBOX.
func (s *Synchronizer) AddFlags(ctx context.Context, mailbox *models.Client, uid int64, flags []string) error {
	return s.storeFlags(ctx, mailbox, uid, flags, imap.AddFlags)
}

// RemoveFlags clears the given flags on a message by UID in the client's
// INBOX.
func (s *Synchronizer) RemoveFlags(ctx context.Context, mailbox *models.Client, uid int64, flags []string) error {
	return s.storeFlags(ctx, mailbox, uid, flags, imap.RemoveFlags)
}

func (s *Synchronizer) storeFlags(ctx context.Context, mailbox *models.Client, uid int64, flags []string, op imap.FlagsOp) error {
	items := make([]interface{}, 0, len(flags))
	for _, flag := range flags {
		name, ok := imapFlagNames[flag]
		if !ok {
			return fmt.Errorf("unknown flag %q", flag)
		}
		items = append(items, name)
	}
	if len(items) == 0 {
		return nil
	}

	return s.withInbox(ctx, mailbox, false, func(c *client.Client) error {
		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uint32(uid))

		item := imap.FormatFlagsOp(op, true)
		if err := c.UidStore(seqSet, item, items, nil); err != nil {
			return fmt.Errorf("failed to store flags: %w", err)
		}
		return nil
	})
}

// withInbox runs fn inside a fresh authenticated session with INBOX
// selected.
func (s *Synchronizer) withInbox(ctx context.Context, mailbox *models.Client, readOnly bool, fn func(c *client.Client) error) error {
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

	if _, err := c.Select("INBOX", readOnly); err != nil {
		return fmt.Errorf("failed to select INBOX: %w", err)
	}

	return fn(c)
}
