package thread

import (
	"context"
	"errors"
	"fmt"

	"github.com/akozma/mailcore/internal/db"
	"github.com/akozma/mailcore/internal/models"
)

// Resolver maps a message's identity headers to a stable thread id within a
// client scope, and maintains the denormalized per-thread metadata.
//
// Thread identity is computed purely from the Message-ID / In-Reply-To /
// References chain. Subject never participates: localized "Re:"/"Fwd:"
// prefixes would cause false merges and splits.
type Resolver struct {
	store db.MessageStore
}

// NewResolver creates a Resolver over the given message store.
func NewResolver(store db.MessageStore) *Resolver {
	return &Resolver{store: store}
}

// ComputeThreadID resolves the thread a message belongs to.
//
// Resolution order: the In-Reply-To parent (by remote id, then by references
// containment), then the oldest References entry (the conversation root) the
// same way. When the parent is not known locally its id is used verbatim as
// the thread id, so the thread self-heals if the parent arrives later and a
// re-thread run is performed. A message with no parent headers starts a new
// thread under its own id.
func (r *Resolver) ComputeThreadID(ctx context.Context, clientID, messageID, inReplyTo string, references []string) (string, error) {
	if inReplyTo != "" {
		parent, err := r.lookup(ctx, clientID, inReplyTo, messageID)
		if err != nil {
			return "", err
		}
		if parent != nil {
			return parent.ThreadID, nil
		}

		if threadID, err := r.resolveRoot(ctx, clientID, messageID, references); err != nil || threadID != "" {
			return threadID, err
		}

		// Parent arrived out of order or was never synced: seed the thread
		// with the missing parent's id.
		return inReplyTo, nil
	}

	if threadID, err := r.resolveRoot(ctx, clientID, messageID, references); err != nil || threadID != "" {
		return threadID, err
	}

	return messageID, nil
}

// resolveRoot tries the oldest references entry; returns "" when references
// are empty.
func (r *Resolver) resolveRoot(ctx context.Context, clientID, messageID string, references []string) (string, error) {
	if len(references) == 0 {
		return "", nil
	}

	root := references[0]
	parent, err := r.lookup(ctx, clientID, root, messageID)
	if err != nil {
		return "", err
	}
	if parent != nil {
		return parent.ThreadID, nil
	}

	return root, nil
}

// lookup finds the message with the given remote id, or any message whose
// references chain contains it. Returns (nil, nil) when neither exists.
// selfID is excluded from the containment search: a message already stored
// (during a re-thread) must not resolve to its own current assignment, which
// would freeze drift instead of correcting it.
func (r *Resolver) lookup(ctx context.Context, clientID, remoteID, selfID string) (*models.Message, error) {
	msg, err := r.store.FindByRemoteID(ctx, clientID, remoteID)
	if err == nil {
		return msg, nil
	}
	if !errors.Is(err, db.ErrMessageNotFound) {
		return nil, fmt.Errorf("failed to look up message %q: %w", remoteID, err)
	}

	msg, err = r.store.FindByReference(ctx, clientID, remoteID, selfID)
	if err == nil {
		return msg, nil
	}
	if !errors.Is(err, db.ErrMessageNotFound) {
		return nil, fmt.Errorf("failed to look up reference %q: %w", remoteID, err)
	}

	return nil, nil
}

// UpdateThreadMetadata recomputes the cached thread aggregates from source
// rows. Idempotent; concurrent calls for the same thread settle on the same
// values because nothing is incremented in place.
func (r *Resolver) UpdateThreadMetadata(ctx context.Context, clientID, threadID string) error {
	return r.store.RefreshThreadMetadata(ctx, clientID, threadID)
}
