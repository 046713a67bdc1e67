package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/akozma/mailcore/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSubscriberNotFound is returned when a requested subscriber cannot be found.
var ErrSubscriberNotFound = errors.New("subscriber not found")

const subscriberColumns = `
	id, client_id, email, name, date_subscribed, is_active, unsubscribe_token
`

func scanSubscriber(row pgx.Row) (*models.Subscriber, error) {
	var s models.Subscriber
	err := row.Scan(
		&s.ID,
		&s.ClientID,
		&s.Email,
		&s.Name,
		&s.DateSubscribed,
		&s.IsActive,
		&s.UnsubscribeToken,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSubscriber subscribes an address, keyed on (client_id, email).
// Re-subscribing an address reactivates the existing row and keeps its
// unsubscribe token stable.
func UpsertSubscriber(ctx context.Context, pool *pgxpool.Pool, clientID, email, name string) (*models.Subscriber, error) {
	row := pool.QueryRow(ctx, `
		INSERT INTO subscribers (client_id, email, name, unsubscribe_token)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id, email) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE subscribers.name END,
			is_active = TRUE,
			updated_at = now()
		RETURNING `+subscriberColumns+`
	`, clientID, email, name, uuid.NewString())

	sub, err := scanSubscriber(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscriber: %w", err)
	}

	return sub, nil
}

// GetActiveSubscribers returns every active subscriber for a client.
func GetActiveSubscribers(ctx context.Context, pool *pgxpool.Pool, clientID string) ([]*models.Subscriber, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+subscriberColumns+`
		FROM subscribers
		WHERE client_id = $1 AND is_active
		ORDER BY date_subscribed
	`, clientID)

	if err != nil {
		return nil, fmt.Errorf("failed to get subscribers: %w", err)
	}
	defer rows.Close()

	var subscribers []*models.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		subscribers = append(subscribers, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscribers: %w", err)
	}

	return subscribers, nil
}

// DeactivateSubscriberByToken soft-deactivates the subscriber owning the
// given unsubscribe token. The row is kept as the consent audit trail.
func DeactivateSubscriberByToken(ctx context.Context, pool *pgxpool.Pool, token string) (*models.Subscriber, error) {
	row := pool.QueryRow(ctx, `
		UPDATE subscribers SET is_active = FALSE, updated_at = now()
		WHERE unsubscribe_token = $1
		RETURNING `+subscriberColumns+`
	`, token)

	sub, err := scanSubscriber(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate subscriber: %w", err)
	}

	return sub, nil
}
