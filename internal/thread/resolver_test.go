package thread

import (
	"context"
	"fmt"
	"testing"

	"github.com/akozma/mailcore/internal/db"
	"github.com/akozma/mailcore/internal/models"
)

// fakeStore is an in-memory MessageStore for resolver tests.
type fakeStore struct {
	messages       []*models.Message
	refreshed      map[string]int
	failingRemotes map[string]error
}

func newFakeStore(messages ...*models.Message) *fakeStore {
	return &fakeStore{
		messages:  messages,
		refreshed: make(map[string]int),
	}
}

func (f *fakeStore) FindByRemoteID(_ context.Context, clientID, remoteID string) (*models.Message, error) {
	if err, ok := f.failingRemotes[remoteID]; ok {
		return nil, err
	}
	for _, msg := range f.messages {
		if msg.ClientID == clientID && msg.RemoteID == remoteID {
			return msg, nil
		}
	}
	return nil, db.ErrMessageNotFound
}

func (f *fakeStore) FindByReference(_ context.Context, clientID, remoteID, excludeRemoteID string) (*models.Message, error) {
	for _, msg := range f.messages {
		if msg.ClientID != clientID || msg.RemoteID == excludeRemoteID {
			continue
		}
		for _, ref := range msg.ReferenceIDs {
			if ref == remoteID {
				return msg, nil
			}
		}
	}
	return nil, db.ErrMessageNotFound
}

func (f *fakeStore) AllMessages(_ context.Context, clientID string) ([]*models.Message, error) {
	var result []*models.Message
	for _, msg := range f.messages {
		if msg.ClientID == clientID {
			result = append(result, msg)
		}
	}
	return result, nil
}

func (f *fakeStore) SaveMessage(_ context.Context, message *models.Message) error {
	for i, msg := range f.messages {
		if msg.ClientID == message.ClientID && msg.RemoteID == message.RemoteID {
			f.messages[i] = message
			return nil
		}
	}
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeStore) SetThreadID(_ context.Context, messageID, threadID string) error {
	for _, msg := range f.messages {
		if msg.ID == messageID {
			msg.ThreadID = threadID
			return nil
		}
	}
	return db.ErrMessageNotFound
}

func (f *fakeStore) RefreshThreadMetadata(_ context.Context, _, threadID string) error {
	f.refreshed[threadID]++
	return nil
}

func TestComputeThreadID(t *testing.T) {
	ctx := context.Background()
	const clientID = "client-1"

	parent := &models.Message{
		ID:       "id-1",
		ClientID: clientID,
		RemoteID: "parent@example.com",
		ThreadID: "thread-root",
	}

	t.Run("resolves via in-reply-to parent", func(t *testing.T) {
		resolver := NewResolver(newFakeStore(parent))

		threadID, err := resolver.ComputeThreadID(ctx, clientID, "child@example.com", "parent@example.com", nil)
		if err != nil {
			t.Fatalf("ComputeThreadID failed: %v", err)
		}
		if threadID != "thread-root" {
			t.Errorf("Expected thread-root, got %s", threadID)
		}
	})

	t.Run("resolves via references containment", func(t *testing.T) {
		holder := &models.Message{
			ID:           "id-2",
			ClientID:     clientID,
			RemoteID:     "reply@example.com",
			ThreadID:     "thread-root",
			ReferenceIDs: []string{"root@example.com", "mid@example.com"},
		}
		resolver := NewResolver(newFakeStore(holder))

		// The parent id only appears inside another message's references.
		threadID, err := resolver.ComputeThreadID(ctx, clientID, "child@example.com", "mid@example.com", nil)
		if err != nil {
			t.Fatalf("ComputeThreadID failed: %v", err)
		}
		if threadID != "thread-root" {
			t.Errorf("Expected thread-root, got %s", threadID)
		}
	})

	t.Run("falls back to references root", func(t *testing.T) {
		resolver := NewResolver(newFakeStore(parent))

		threadID, err := resolver.ComputeThreadID(ctx, clientID, "child@example.com", "missing@example.com",
			[]string{"parent@example.com", "missing@example.com"})
		if err != nil {
			t.Fatalf("ComputeThreadID failed: %v", err)
		}
		if threadID != "thread-root" {
			t.Errorf("Expected thread-root, got %s", threadID)
		}
	})

	t.Run("unknown parent seeds thread with its id", func(t *testing.T) {
		resolver := NewResolver(newFakeStore())

		threadID, err := resolver.ComputeThreadID(ctx, clientID, "child@example.com", "missing@example.com", nil)
		if err != nil {
			t.Fatalf("ComputeThreadID failed: %v", err)
		}
		if threadID != "missing@example.com" {
			t.Errorf("Expected missing@example.com, got %s", threadID)
		}
	})

	t.Run("unknown references root used verbatim", func(t *testing.T) {
		resolver := NewResolver(newFakeStore())

		threadID, err := resolver.ComputeThreadID(ctx, clientID, "child@example.com", "",
			[]string{"root@example.com", "mid@example.com"})
		if err != nil {
			t.Fatalf("ComputeThreadID failed: %v", err)
		}
		if threadID != "root@example.com" {
			t.Errorf("Expected root@example.com, got %s", threadID)
		}
	})

	t.Run("no parent headers starts new thread", func(t *testing.T) {
		resolver := NewResolver(newFakeStore(parent))

		threadID, err := resolver.ComputeThreadID(ctx, clientID, "standalone@example.com", "", nil)
		if err != nil {
			t.Fatalf("ComputeThreadID failed: %v", err)
		}
		if threadID != "standalone@example.com" {
			t.Errorf("Expected standalone@example.com, got %s", threadID)
		}
	})

	t.Run("scoped by client", func(t *testing.T) {
		resolver := NewResolver(newFakeStore(parent))

		threadID, err := resolver.ComputeThreadID(ctx, "client-2", "child@example.com", "parent@example.com", nil)
		if err != nil {
			t.Fatalf("ComputeThreadID failed: %v", err)
		}
		if threadID != "parent@example.com" {
			t.Errorf("Expected parent@example.com (no cross-client resolution), got %s", threadID)
		}
	})

	t.Run("propagates store errors", func(t *testing.T) {
		store := newFakeStore()
		store.failingRemotes = map[string]error{"parent@example.com": fmt.Errorf("connection refused")}
		resolver := NewResolver(store)

		if _, err := resolver.ComputeThreadID(ctx, clientID, "child@example.com", "parent@example.com", nil); err == nil {
			t.Fatal("Expected error, got nil")
		}
	})
}

func TestRethreadAll(t *testing.T) {
	ctx := context.Background()
	const clientID = "client-1"

	// A reply synced before its parent: it seeded its own thread with the
	// parent's id, and a second reply drifted to a third id.
	parent := &models.Message{
		ID:       "id-parent",
		ClientID: clientID,
		RemoteID: "root@example.com",
		ThreadID: "root@example.com",
	}
	reply := &models.Message{
		ID:        "id-reply",
		ClientID:  clientID,
		RemoteID:  "reply@example.com",
		ThreadID:  "drifted-thread",
		InReplyTo: "root@example.com",
	}

	store := newFakeStore(parent, reply)
	resolver := NewResolver(store)

	result, err := resolver.RethreadAll(ctx, clientID)
	if err != nil {
		t.Fatalf("RethreadAll failed: %v", err)
	}

	if result.TotalEmails != 2 {
		t.Errorf("Expected 2 total emails, got %d", result.TotalEmails)
	}
	if result.Updated != 1 {
		t.Errorf("Expected 1 updated, got %d", result.Updated)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Expected no errors, got %v", result.Errors)
	}
	if reply.ThreadID != "root@example.com" {
		t.Errorf("Expected reply re-homed to root@example.com, got %s", reply.ThreadID)
	}
	if store.refreshed["root@example.com"] != 1 {
		t.Errorf("Expected one metadata refresh for the new thread, got %d", store.refreshed["root@example.com"])
	}
	if store.refreshed["drifted-thread"] != 1 {
		t.Errorf("Expected one metadata refresh for the old thread, got %d", store.refreshed["drifted-thread"])
	}

	t.Run("second run is a no-op", func(t *testing.T) {
		result, err := resolver.RethreadAll(ctx, clientID)
		if err != nil {
			t.Fatalf("RethreadAll failed: %v", err)
		}
		if result.Updated != 0 {
			t.Errorf("Expected 0 updated on second run, got %d", result.Updated)
		}
	})
}

func TestRethreadAllIgnoresSelfReference(t *testing.T) {
	ctx := context.Background()
	const clientID = "client-1"

	// The only message referencing the missing parent is the drifted message
	// itself. Resolution must not match it through its own references chain,
	// or the wrong assignment would be confirmed instead of corrected.
	drifted := &models.Message{
		ID:           "id-1",
		ClientID:     clientID,
		RemoteID:     "reply@example.com",
		ThreadID:     "drifted-thread",
		InReplyTo:    "root@example.com",
		ReferenceIDs: []string{"root@example.com"},
	}

	store := newFakeStore(drifted)
	resolver := NewResolver(store)

	result, err := resolver.RethreadAll(ctx, clientID)
	if err != nil {
		t.Fatalf("RethreadAll failed: %v", err)
	}

	if result.Updated != 1 {
		t.Errorf("Expected 1 updated, got %d", result.Updated)
	}
	if drifted.ThreadID != "root@example.com" {
		t.Errorf("Expected thread reseeded under the parent id, got %s", drifted.ThreadID)
	}
}
