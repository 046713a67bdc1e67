package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/akozma/mailcore/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMessageNotFound is returned when a requested message cannot be found.
var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `
	id, client_id, remote_id, uid, from_address, to_addresses, cc_addresses,
	bcc_addresses, subject, body_text, body_html, thread_id, in_reply_to,
	reference_ids, is_thread_starter, thread_count, last_message_at,
	direction, flags, is_newsletter, newsletter_id, sent_at
`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID,
		&msg.ClientID,
		&msg.RemoteID,
		&msg.UID,
		&msg.FromAddress,
		&msg.ToAddresses,
		&msg.CCAddresses,
		&msg.BCCAddresses,
		&msg.Subject,
		&msg.BodyText,
		&msg.BodyHTML,
		&msg.ThreadID,
		&msg.InReplyTo,
		&msg.ReferenceIDs,
		&msg.IsThreadStarter,
		&msg.ThreadCount,
		&msg.LastMessageAt,
		&msg.Direction,
		&msg.Flags,
		&msg.IsNewsletter,
		&msg.NewsletterID,
		&msg.SentAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpsertMessage saves a message, keyed on (client_id, remote_id). A second
// write for the same key updates the existing row in place, so duplicate
// inbound fetches and redelivered sends never create duplicate rows.
func UpsertMessage(ctx context.Context, pool *pgxpool.Pool, message *models.Message) error {
	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO messages (
			client_id, remote_id, uid, from_address, to_addresses, cc_addresses,
			bcc_addresses, subject, body_text, body_html, thread_id, in_reply_to,
			reference_ids, is_thread_starter, direction, flags, is_newsletter,
			newsletter_id, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (client_id, remote_id) DO UPDATE SET
			uid = COALESCE(EXCLUDED.uid, messages.uid),
			from_address = EXCLUDED.from_address,
			to_addresses = EXCLUDED.to_addresses,
			cc_addresses = EXCLUDED.cc_addresses,
			bcc_addresses = EXCLUDED.bcc_addresses,
			subject = EXCLUDED.subject,
			body_text = EXCLUDED.body_text,
			body_html = EXCLUDED.body_html,
			thread_id = EXCLUDED.thread_id,
			in_reply_to = EXCLUDED.in_reply_to,
			reference_ids = EXCLUDED.reference_ids,
			is_thread_starter = EXCLUDED.is_thread_starter,
			direction = EXCLUDED.direction,
			flags = EXCLUDED.flags,
			is_newsletter = EXCLUDED.is_newsletter,
			newsletter_id = EXCLUDED.newsletter_id,
			sent_at = EXCLUDED.sent_at,
			updated_at = now()
		RETURNING id
	`,
		message.ClientID,
		message.RemoteID,
		message.UID,
		message.FromAddress,
		message.ToAddresses,
		message.CCAddresses,
		message.BCCAddresses,
		message.Subject,
		message.BodyText,
		message.BodyHTML,
		message.ThreadID,
		message.InReplyTo,
		message.ReferenceIDs,
		message.IsThreadStarter,
		message.Direction,
		message.Flags,
		message.IsNewsletter,
		message.NewsletterID,
		message.SentAt,
	).Scan(&id)

	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	message.ID = id
	return nil
}

// GetMessageByRemoteID returns the message with the given provider Message-ID
// within the client scope.
func GetMessageByRemoteID(ctx context.Context, pool *pgxpool.Pool, clientID, remoteID string) (*models.Message, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE client_id = $1 AND remote_id = $2
	`, clientID, remoteID)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// FindMessageByReference returns the earliest message whose references chain
// contains the given Message-ID within the client scope. excludeRemoteID
// keeps a message from matching through its own references chain when its
// thread assignment is being recomputed; pass "" to search all rows.
func FindMessageByReference(ctx context.Context, pool *pgxpool.Pool, clientID, remoteID, excludeRemoteID string) (*models.Message, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE client_id = $1 AND $2 = ANY(reference_ids) AND remote_id <> $3
		ORDER BY sent_at NULLS LAST, created_at
		LIMIT 1
	`, clientID, remoteID, excludeRemoteID)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message by reference: %w", err)
	}

	return msg, nil
}

// GetMessagesForThread returns all messages of one thread, oldest first.
func GetMessagesForThread(ctx context.Context, pool *pgxpool.Pool, clientID, threadID string) ([]*models.Message, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE client_id = $1 AND thread_id = $2
		ORDER BY sent_at NULLS LAST, created_at
	`, clientID, threadID)

	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// GetAllMessages returns every message for a client, oldest first. Used by
// the re-threading maintenance operation.
func GetAllMessages(ctx context.Context, pool *pgxpool.Pool, clientID string) ([]*models.Message, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE client_id = $1
		ORDER BY sent_at NULLS LAST, created_at
	`, clientID)

	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]*models.Message, error) {
	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// SetMessageThreadID moves a message to another thread by row id.
func SetMessageThreadID(ctx context.Context, pool *pgxpool.Pool, messageID, threadID string) error {
	_, err := pool.Exec(ctx, `
		UPDATE messages SET thread_id = $2, updated_at = now() WHERE id = $1
	`, messageID, threadID)

	if err != nil {
		return fmt.Errorf("failed to set thread id: %w", err)
	}

	return nil
}

// SetMessageFlags replaces the flag set of a message.
func SetMessageFlags(ctx context.Context, pool *pgxpool.Pool, clientID, remoteID string, flags []string) error {
	tag, err := pool.Exec(ctx, `
		UPDATE messages SET flags = $3, updated_at = now()
		WHERE client_id = $1 AND remote_id = $2
	`, clientID, remoteID, flags)

	if err != nil {
		return fmt.Errorf("failed to set flags: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// DeleteMessagePermanently removes a message row. Soft-delete via the Trash
// flag is the default elsewhere; this is the explicit permanent delete.
func DeleteMessagePermanently(ctx context.Context, pool *pgxpool.Pool, clientID, remoteID string) error {
	tag, err := pool.Exec(ctx, `
		DELETE FROM messages WHERE client_id = $1 AND remote_id = $2
	`, clientID, remoteID)

	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// GetMaxUID returns the highest IMAP UID stored for a client, or 0 when no
// inbound message has been synced yet.
func GetMaxUID(ctx context.Context, pool *pgxpool.Pool, clientID string) (int64, error) {
	var maxUID int64
	err := pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(uid), 0) FROM messages WHERE client_id = $1
	`, clientID).Scan(&maxUID)

	if err != nil {
		return 0, fmt.Errorf("failed to get max uid: %w", err)
	}

	return maxUID, nil
}

// RefreshThreadMetadata recomputes thread_count, last_message_at and the
// starter flag for every member of a thread from the source rows. It is
// idempotent and safe to call concurrently for the same thread; the last
// writer wins on the aggregate columns. Trashed messages do not count.
func RefreshThreadMetadata(ctx context.Context, pool *pgxpool.Pool, clientID, threadID string) error {
	_, err := pool.Exec(ctx, `
		UPDATE messages m SET
			thread_count = agg.cnt,
			last_message_at = agg.last_at,
			is_thread_starter = (m.id = agg.first_id),
			updated_at = now()
		FROM (
			SELECT
				COUNT(*) AS cnt,
				MAX(sent_at) AS last_at,
				(
					SELECT id FROM messages
					WHERE client_id = $1 AND thread_id = $2 AND NOT ('Trash' = ANY(flags))
					ORDER BY sent_at NULLS LAST, created_at
					LIMIT 1
				) AS first_id
			FROM messages
			WHERE client_id = $1 AND thread_id = $2 AND NOT ('Trash' = ANY(flags))
		) agg
		WHERE m.client_id = $1 AND m.thread_id = $2
	`, clientID, threadID)

	if err != nil {
		return fmt.Errorf("failed to refresh thread metadata: %w", err)
	}

	return nil
}

// GetThreadSummaries returns one row per conversation for the client,
// newest activity first.
func GetThreadSummaries(ctx context.Context, pool *pgxpool.Pool, clientID string, limit, offset int) ([]*models.ThreadSummary, error) {
	rows, err := pool.Query(ctx, `
		SELECT
			m.thread_id,
			(
				SELECT subject FROM messages
				WHERE client_id = $1 AND thread_id = m.thread_id
				ORDER BY sent_at NULLS LAST, created_at
				LIMIT 1
			) AS subject,
			MAX(m.sent_at) AS last_message_at,
			COUNT(*) AS message_count,
			ARRAY_AGG(DISTINCT m.from_address) AS participants
		FROM messages m
		WHERE m.client_id = $1 AND NOT ('Trash' = ANY(m.flags))
		GROUP BY m.thread_id
		ORDER BY last_message_at DESC NULLS LAST
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)

	if err != nil {
		return nil, fmt.Errorf("failed to get thread summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*models.ThreadSummary
	for rows.Next() {
		var s models.ThreadSummary
		if err := rows.Scan(
			&s.ThreadID,
			&s.Subject,
			&s.LastMessageAt,
			&s.MessageCount,
			&s.Participants,
		); err != nil {
			return nil, fmt.Errorf("failed to scan thread summary: %w", err)
		}
		summaries = append(summaries, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread summaries: %w", err)
	}

	return summaries, nil
}

// GetThreadCount returns the number of distinct non-trashed threads for a client.
func GetThreadCount(ctx context.Context, pool *pgxpool.Pool, clientID string) (int, error) {
	var count int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT thread_id)
		FROM messages
		WHERE client_id = $1 AND NOT ('Trash' = ANY(flags))
	`, clientID).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to get thread count: %w", err)
	}

	return count, nil
}
