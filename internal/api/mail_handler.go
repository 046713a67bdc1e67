package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akozma/mailcore/internal/compose"
	"github.com/akozma/mailcore/internal/db"
	"github.com/akozma/mailcore/internal/imapcli"
	"github.com/akozma/mailcore/internal/models"
)

// MailHandler handles the send, reply, forward, and flag operations.
type MailHandler struct {
	pool     *pgxpool.Pool
	composer *compose.Composer
	sync     *imapcli.Synchronizer
}

// NewMailHandler creates a new MailHandler instance.
func NewMailHandler(pool *pgxpool.Pool, composer *compose.Composer, sync *imapcli.Synchronizer) *MailHandler {
	return &MailHandler{
		pool:     pool,
		composer: composer,
		sync:     sync,
	}
}

type mailRequest struct {
	compose.Request
	OriginalRemoteID string `json:"original_remote_id,omitempty"`
	ReplyAll         bool   `json:"reply_all,omitempty"`
}

// Send handles POST /api/v1/mail/send.
func (h *MailHandler) Send(w http.ResponseWriter, r *http.Request) {
	client, ok := ClientFromRequest(w, r)
	if !ok {
		return
	}

	var req mailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	resp, err := h.composer.Send(r.Context(), client, &req.Request)
	if err != nil {
		log.Printf("MailHandler: Failed to send: %v", err)
		WriteError(w, http.StatusBadGateway, "Failed to send message", err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// Reply handles POST /api/v1/mail/reply.
func (h *MailHandler) Reply(w http.ResponseWriter, r *http.Request) {
	client, ok := ClientFromRequest(w, r)
	if !ok {
		return
	}

	var req mailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.OriginalRemoteID == "" {
		WriteError(w, http.StatusBadRequest, "original_remote_id is required", nil)
		return
	}

	var resp *models.SendResponse
	var err error
	if req.ReplyAll {
		resp, err = h.composer.ReplyAll(r.Context(), client, req.OriginalRemoteID, &req.Request)
	} else {
		resp, err = h.composer.Reply(r.Context(), client, req.OriginalRemoteID, &req.Request)
	}
	if err != nil {
		if errors.Is(err, db.ErrMessageNotFound) {
			WriteError(w, http.StatusNotFound, "Original message not found", nil)
			return
		}
		log.Printf("MailHandler: Failed to reply: %v", err)
		WriteError(w, http.StatusBadGateway, "Failed to send reply", err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// Forward handles POST /api/v1/mail/forward.
func (h *MailHandler) Forward(w http.ResponseWriter, r *http.Request) {
	client, ok := ClientFromRequest(w, r)
	if !ok {
		return
	}

	var req mailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.OriginalRemoteID == "" {
		WriteError(w, http.StatusBadRequest, "original_remote_id is required", nil)
		return
	}

	resp, err := h.composer.Forward(r.Context(), client, req.OriginalRemoteID, &req.Request)
	if err != nil {
		if errors.Is(err, db.ErrMessageNotFound) {
			WriteError(w, http.StatusNotFound, "Original message not found", nil)
			return
		}
		log.Printf("MailHandler: Failed to forward: %v", err)
		WriteError(w, http.StatusBadGateway, "Failed to forward message", err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// apiFlagNames maps the flag names used by the HTTP surface to the stored
// provider flags.
var apiFlagNames = map[string]string{
	"read":     models.FlagSeen,
	"answered": models.FlagAnswered,
	"trash":    models.FlagTrash,
	"spam":     models.FlagSpam,
}

type flagsRequest struct {
	Add    []string `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

// SetFlags handles POST /api/v1/mail/{remoteId}/flags. The local flag
// column is the source of truth; the IMAP flag store is best-effort for
// inbound messages that carry a UID.
func (h *MailHandler) SetFlags(w http.ResponseWriter, r *http.Request, remoteID string) {
	client, ok := ClientFromRequest(w, r)
	if !ok {
		return
	}

	var req flagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	add, err := mapFlags(req.Add)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Unknown flag", err)
		return
	}
	remove, err := mapFlags(req.Remove)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Unknown flag", err)
		return
	}

	msg, err := db.GetMessageByRemoteID(r.Context(), h.pool, client.ID, remoteID)
	if err != nil {
		if errors.Is(err, db.ErrMessageNotFound) {
			WriteError(w, http.StatusNotFound, "Message not found", nil)
			return
		}
		log.Printf("MailHandler: Failed to load message: %v", err)
		WriteError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	flags := applyFlagChanges(msg.Flags, add, remove)
	if err := db.SetMessageFlags(r.Context(), h.pool, client.ID, remoteID, flags); err != nil {
		log.Printf("MailHandler: Failed to update flags: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to update flags", nil)
		return
	}

	// Trash changes the thread's non-deleted message count.
	if contains(add, models.FlagTrash) || contains(remove, models.FlagTrash) {
		if err := db.RefreshThreadMetadata(r.Context(), h.pool, client.ID, msg.ThreadID); err != nil {
			log.Printf("MailHandler: Failed to refresh thread %s: %v", msg.ThreadID, err)
		}
	}

	if msg.Direction == models.DirectionInbound && msg.UID != nil {
		if len(add) > 0 {
			if err := h.sync.AddFlags(r.Context(), client, *msg.UID, add); err != nil {
				log.Printf("MailHandler: Failed to set IMAP flags on %s: %v", remoteID, err)
			}
		}
		if len(remove) > 0 {
			if err := h.sync.RemoveFlags(r.Context(), client, *msg.UID, remove); err != nil {
				log.Printf("MailHandler: Failed to clear IMAP flags on %s: %v", remoteID, err)
			}
		}
	}

	msg.Flags = flags
	WriteJSON(w, http.StatusOK, msg)
}

func mapFlags(names []string) ([]string, error) {
	result := make([]string, 0, len(names))
	for _, name := range names {
		flag, ok := apiFlagNames[strings.ToLower(name)]
		if !ok {
			return nil, errors.New("unknown flag " + name)
		}
		result = append(result, flag)
	}
	return result, nil
}

func applyFlagChanges(current, add, remove []string) []string {
	set := make(map[string]bool)
	for _, f := range current {
		set[f] = true
	}
	for _, f := range add {
		set[f] = true
	}
	for _, f := range remove {
		delete(set, f)
	}

	result := make([]string, 0, len(set))
	for _, f := range []string{models.FlagSeen, models.FlagAnswered, models.FlagTrash, models.FlagSpam} {
		if set[f] {
			result = append(result, f)
		}
	}
	return result
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
