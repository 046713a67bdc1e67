package db

import (
	"context"

	"github.com/akozma/mailcore/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageIndex is the lookup surface the thread resolver consults when
// mapping identity headers to an existing conversation.
type MessageIndex interface {
	FindByRemoteID(ctx context.Context, clientID, remoteID string) (*models.Message, error)
	FindByReference(ctx context.Context, clientID, remoteID, excludeRemoteID string) (*models.Message, error)
}

// MessageStore extends MessageIndex with the mutations used by the send
// paths, the inbound synchronizer, and re-threading maintenance.
type MessageStore interface {
	MessageIndex
	AllMessages(ctx context.Context, clientID string) ([]*models.Message, error)
	SaveMessage(ctx context.Context, message *models.Message) error
	SetThreadID(ctx context.Context, messageID, threadID string) error
	RefreshThreadMetadata(ctx context.Context, clientID, threadID string) error
}

// NewsletterStore is the persistence surface of the newsletter batch engine.
type NewsletterStore interface {
	ActiveSubscribers(ctx context.Context, clientID string) ([]*models.Subscriber, error)
	EnsureSubscriber(ctx context.Context, clientID, email, name string) (*models.Subscriber, error)
	SaveMessage(ctx context.Context, message *models.Message) error
	RefreshThreadMetadata(ctx context.Context, clientID, threadID string) error
}

// Store implements the interfaces above against a pgx pool. Components take
// the narrow interface they need so tests can substitute fakes.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given database pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) FindByRemoteID(ctx context.Context, clientID, remoteID string) (*models.Message, error) {
	return GetMessageByRemoteID(ctx, s.pool, clientID, remoteID)
}

func (s *Store) FindByReference(ctx context.Context, clientID, remoteID, excludeRemoteID string) (*models.Message, error) {
	return FindMessageByReference(ctx, s.pool, clientID, remoteID, excludeRemoteID)
}

func (s *Store) AllMessages(ctx context.Context, clientID string) ([]*models.Message, error) {
	return GetAllMessages(ctx, s.pool, clientID)
}

func (s *Store) SaveMessage(ctx context.Context, message *models.Message) error {
	return UpsertMessage(ctx, s.pool, message)
}

func (s *Store) SetThreadID(ctx context.Context, messageID, threadID string) error {
	return SetMessageThreadID(ctx, s.pool, messageID, threadID)
}

func (s *Store) RefreshThreadMetadata(ctx context.Context, clientID, threadID string) error {
	return RefreshThreadMetadata(ctx, s.pool, clientID, threadID)
}

func (s *Store) ActiveSubscribers(ctx context.Context, clientID string) ([]*models.Subscriber, error) {
	return GetActiveSubscribers(ctx, s.pool, clientID)
}

func (s *Store) EnsureSubscriber(ctx context.Context, clientID, email, name string) (*models.Subscriber, error) {
	return UpsertSubscriber(ctx, s.pool, clientID, email, name)
}

// ResolveToken maps an API bearer token to its tenant client.
func (s *Store) ResolveToken(ctx context.Context, token string) (*models.Client, error) {
	return GetClientByToken(ctx, s.pool, token)
}
