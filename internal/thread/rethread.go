package thread

import (
	"context"
	"fmt"

	"github.com/akozma/mailcore/internal/models"
)

// RethreadAll recomputes every thread id for a client from scratch using the
// same resolver, persisting only the assignments that changed, then refreshes
// metadata once per affected thread. This corrects drift introduced by
// out-of-order synchronization (e.g. a reply that arrived before its parent).
//
// Messages are processed oldest first so parents are re-homed before their
// children resolve against them. Running it twice in a row is a no-op on the
// second pass.
func (r *Resolver) RethreadAll(ctx context.Context, clientID string) (*models.RethreadResponse, error) {
	messages, err := r.store.AllMessages(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages for re-threading: %w", err)
	}

	result := &models.RethreadResponse{TotalEmails: len(messages)}
	touched := make(map[string]struct{})

	for _, msg := range messages {
		threadID, err := r.ComputeThreadID(ctx, clientID, msg.RemoteID, msg.InReplyTo, msg.ReferenceIDs)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", msg.RemoteID, err))
			continue
		}

		if threadID == msg.ThreadID {
			continue
		}

		if err := r.store.SetThreadID(ctx, msg.ID, threadID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", msg.RemoteID, err))
			continue
		}

		touched[msg.ThreadID] = struct{}{}
		touched[threadID] = struct{}{}
		result.Updated++
	}

	for threadID := range touched {
		if err := r.store.RefreshThreadMetadata(ctx, clientID, threadID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("thread %s: %v", threadID, err))
		}
	}

	return result, nil
}
