package imapcli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akozma/mailcore/internal/crypto"
	"github.com/akozma/mailcore/internal/db"
	"github.com/akozma/mailcore/internal/models"
	"github.com/akozma/mailcore/internal/thread"
)

const defaultDialTimeout = 30 * time.Second

// SyncResult summarizes one inbound refresh. A failed refresh is reported
// here, not as an error: callers keep serving cached rows.
type SyncResult struct {
	Fetched        int    `json:"fetched"`
	Saved          int    `json:"saved"`
	ThreadsTouched int    `json:"threads_touched"`
	Err            string `json:"error,omitempty"`
}

// Synchronizer pulls new INBOX messages into the local store. Each refresh
// is one bounded session: dial, login, select, search, fetch, logout.
type Synchronizer struct {
	pool        *pgxpool.Pool
	resolver    *thread.Resolver
	encryptor   *crypto.Encryptor
	dialTimeout time.Duration
}

// NewSynchronizer creates a Synchronizer with the default dial timeout.
func NewSynchronizer(pool *pgxpool.Pool, resolver *thread.Resolver, encryptor *crypto.Encryptor) *Synchronizer {
	return &Synchronizer{
		pool:        pool,
		resolver:    resolver,
		encryptor:   encryptor,
		dialTimeout: defaultDialTimeout,
	}
}

// NewSynchronizerWithTimeout creates a Synchronizer with a custom dial
// timeout.
func NewSynchronizerWithTimeout(pool *pgxpool.Pool, resolver *thread.Resolver, encryptor *crypto.Encryptor, dialTimeout time.Duration) *Synchronizer {
	s := NewSynchronizer(pool, resolver, encryptor)
	if dialTimeout > 0 {
		s.dialTimeout = dialTimeout
	}
	return s
}

// Sync refreshes the client's inbox. Transport and provider failures are
// swallowed into the result so a flaky mailbox never breaks reads of
// already-synced data.
func (s *Synchronizer) Sync(ctx context.Context, client *models.Client) *SyncResult {
	result := &SyncResult{}
	if err := s.sync(ctx, client, result); err != nil {
		log.Printf("Sync: client %s: %v", client.ID, err)
		result.Err = err.Error()
	}
	return result
}

func (s *Synchronizer) sync(ctx context.Context, client *models.Client, result *SyncResult) error {
	var messages []*imap.Message

	err := s.withInbox(ctx, client, true, func(c *imapclient.Client) error {
		maxUID, err := db.GetMaxUID(ctx, s.pool, client.ID)
		if err != nil {
			return fmt.Errorf("failed to read sync position: %w", err)
		}

		uids, err := SearchNewUIDs(c, uint32(maxUID)+1)
		if err != nil {
			return err
		}
		if len(uids) == 0 {
			return nil
		}

		messages, err = FetchMessages(c, uids)
		return err
	})
	if err != nil {
		return err
	}
	result.Fetched = len(messages)

	// A bad message is skipped, never fatal: the rest of the batch still
	// lands.
	touched := make(map[string]bool)
	for _, imapMsg := range messages {
		msg, err := ParseMessage(imapMsg, client.ID)
		if err != nil {
			log.Printf("Sync: skipping unparseable message uid %d: %v", imapMsg.Uid, err)
			continue
		}

		threadID, err := s.resolver.ComputeThreadID(ctx, client.ID, msg.RemoteID, msg.InReplyTo, msg.ReferenceIDs)
		if err != nil {
			log.Printf("Sync: skipping message %s: %v", msg.RemoteID, err)
			continue
		}
		msg.ThreadID = threadID
		msg.IsThreadStarter = threadID == msg.RemoteID

		if err := db.UpsertMessage(ctx, s.pool, msg); err != nil {
			log.Printf("Sync: failed to save message %s: %v", msg.RemoteID, err)
			continue
		}

		result.Saved++
		touched[threadID] = true
	}

	for threadID := range touched {
		if err := s.resolver.UpdateThreadMetadata(ctx, client.ID, threadID); err != nil {
			log.Printf("Sync: failed to refresh thread %s: %v", threadID, err)
		}
	}
	result.ThreadsTouched = len(touched)

	return nil
}
