package api

import (
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akozma/mailcore/internal/db"
	"github.com/akozma/mailcore/internal/imapcli"
	"github.com/akozma/mailcore/internal/models"
	"github.com/akozma/mailcore/internal/thread"
	ws "github.com/akozma/mailcore/internal/websocket"
)

// ThreadsHandler serves the paginated thread list, optionally refreshing
// from the client's mailbox first.
type ThreadsHandler struct {
	pool *pgxpool.Pool
	sync *imapcli.Synchronizer
	hub  *ws.Hub
}

// NewThreadsHandler creates a new ThreadsHandler instance.
func NewThreadsHandler(pool *pgxpool.Pool, sync *imapcli.Synchronizer, hub *ws.Hub) *ThreadsHandler {
	return &ThreadsHandler{
		pool: pool,
		sync: sync,
		hub:  hub,
	}
}

// GetThreads handles GET /api/v1/threads. With ?refresh=1 the inbound sync
// runs first; a failed sync is reported in the response metadata while the
// cached threads are still served.
func (h *ThreadsHandler) GetThreads(w http.ResponseWriter, r *http.Request) {
	client, ok := ClientFromRequest(w, r)
	if !ok {
		return
	}

	page, limit := ParsePaginationParams(r, 50)
	offset := (page - 1) * limit

	var syncStatus *models.SyncStatus
	if r.URL.Query().Get("refresh") == "1" {
		result := h.sync.Sync(r.Context(), client)
		syncStatus = &models.SyncStatus{
			Fetched:        result.Fetched,
			Saved:          result.Saved,
			ThreadsTouched: result.ThreadsTouched,
			Error:          result.Err,
		}
		if h.hub != nil {
			h.hub.Broadcast(client.ID, map[string]interface{}{
				"type":            "sync_done",
				"fetched":         result.Fetched,
				"saved":           result.Saved,
				"threads_touched": result.ThreadsTouched,
				"error":           result.Err,
			})
		}
	}

	threads, err := db.GetThreadSummaries(r.Context(), h.pool, client.ID, limit, offset)
	if err != nil {
		log.Printf("ThreadsHandler: Failed to get threads: %v", err)
		WriteError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	// Display subjects drop the accumulated Re:/Fwd: prefixes; the stored
	// per-message subjects keep them.
	for _, summary := range threads {
		summary.Subject = thread.NormalizeSubject(summary.Subject)
	}

	totalCount, err := db.GetThreadCount(r.Context(), h.pool, client.ID)
	if err != nil {
		log.Printf("ThreadsHandler: Failed to get thread count: %v", err)
		WriteError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	WriteJSON(w, http.StatusOK, &models.ThreadsResponse{
		Threads: threads,
		Pagination: models.PaginationInfo{
			TotalCount: totalCount,
			Page:       page,
			PerPage:    limit,
		},
		Sync: syncStatus,
	})
}

// GetThread handles GET /api/v1/threads/{threadId}: the full conversation,
// oldest first.
func (h *ThreadsHandler) GetThread(w http.ResponseWriter, r *http.Request, threadID string) {
	client, ok := ClientFromRequest(w, r)
	if !ok {
		return
	}

	messages, err := db.GetMessagesForThread(r.Context(), h.pool, client.ID, threadID)
	if err != nil {
		log.Printf("ThreadsHandler: Failed to get thread %s: %v", threadID, err)
		WriteError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	if len(messages) == 0 {
		WriteError(w, http.StatusNotFound, "Thread not found", nil)
		return
	}

	unread := 0
	for _, msg := range messages {
		if !msg.HasFlag(models.FlagSeen) {
			unread++
		}
	}

	WriteJSON(w, http.StatusOK, &models.ThreadDetailResponse{
		ThreadID:     threadID,
		Subject:      thread.NormalizeSubject(messages[0].Subject),
		Messages:     messages,
		MessageCount: len(messages),
		UnreadCount:  unread,
	})
}
