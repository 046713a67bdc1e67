package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/akozma/mailcore/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrClientNotFound is returned when a requested client cannot be found.
var ErrClientNotFound = errors.New("client not found")

const clientColumns = `
	id, name, from_address, signature, base_url, api_token,
	smtp_host, smtp_port, smtp_username, encrypted_smtp_password,
	imap_host, imap_port, imap_username, encrypted_imap_password
`

func scanClient(row pgx.Row) (*models.Client, error) {
	var c models.Client
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.FromAddress,
		&c.Signature,
		&c.BaseURL,
		&c.APIToken,
		&c.SMTPHost,
		&c.SMTPPort,
		&c.SMTPUsername,
		&c.EncryptedSMTPPassword,
		&c.IMAPHost,
		&c.IMAPPort,
		&c.IMAPUsername,
		&c.EncryptedIMAPPassword,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClientNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	return &c, nil
}

// GetClientByID returns the client with the given id.
func GetClientByID(ctx context.Context, pool *pgxpool.Pool, clientID string) (*models.Client, error) {
	row := pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, clientID)
	return scanClient(row)
}

// GetClientByToken returns the client owning the given API token.
func GetClientByToken(ctx context.Context, pool *pgxpool.Pool, token string) (*models.Client, error) {
	row := pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE api_token = $1`, token)
	return scanClient(row)
}

// SaveClient inserts or updates a client, keyed on its from address.
func SaveClient(ctx context.Context, pool *pgxpool.Pool, client *models.Client) error {
	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO clients (
			name, from_address, signature, base_url, api_token,
			smtp_host, smtp_port, smtp_username, encrypted_smtp_password,
			imap_host, imap_port, imap_username, encrypted_imap_password
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (from_address) DO UPDATE SET
			name = EXCLUDED.name,
			signature = EXCLUDED.signature,
			base_url = EXCLUDED.base_url,
			api_token = EXCLUDED.api_token,
			smtp_host = EXCLUDED.smtp_host,
			smtp_port = EXCLUDED.smtp_port,
			smtp_username = EXCLUDED.smtp_username,
			encrypted_smtp_password = EXCLUDED.encrypted_smtp_password,
			imap_host = EXCLUDED.imap_host,
			imap_port = EXCLUDED.imap_port,
			imap_username = EXCLUDED.imap_username,
			encrypted_imap_password = EXCLUDED.encrypted_imap_password,
			updated_at = now()
		RETURNING id
	`,
		client.Name,
		client.FromAddress,
		client.Signature,
		client.BaseURL,
		client.APIToken,
		client.SMTPHost,
		client.SMTPPort,
		client.SMTPUsername,
		client.EncryptedSMTPPassword,
		client.IMAPHost,
		client.IMAPPort,
		client.IMAPUsername,
		client.EncryptedIMAPPassword,
	).Scan(&id)

	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	client.ID = id
	return nil
}
