package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akozma/mailcore/internal/db"
	"github.com/akozma/mailcore/internal/newsletter"
)

// SubscribersHandler manages the newsletter subscriber list.
type SubscribersHandler struct {
	pool *pgxpool.Pool
}

// NewSubscribersHandler creates a new SubscribersHandler instance.
func NewSubscribersHandler(pool *pgxpool.Pool) *SubscribersHandler {
	return &SubscribersHandler{pool: pool}
}

type subscribeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Subscribe handles POST /api/v1/subscribers. Subscribing an existing
// address reactivates it and keeps its unsubscribe token stable.
func (h *SubscribersHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	client, ok := ClientFromRequest(w, r)
	if !ok {
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !newsletter.ValidEmail(email) {
		WriteError(w, http.StatusBadRequest, "Invalid email address", nil)
		return
	}

	sub, err := db.UpsertSubscriber(r.Context(), h.pool, client.ID, email, req.Name)
	if err != nil {
		log.Printf("SubscribersHandler: Failed to subscribe %s: %v", email, err)
		WriteError(w, http.StatusInternalServerError, "Failed to subscribe", nil)
		return
	}

	WriteJSON(w, http.StatusOK, sub)
}

// Unsubscribe handles GET /unsubscribe?token=. The endpoint is public: it
// is the target of the links embedded in newsletter bodies, so recipients
// reach it without credentials. The subscriber row is deactivated, never
// deleted.
func (h *SubscribersHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token query parameter is required", http.StatusBadRequest)
		return
	}

	sub, err := db.DeactivateSubscriberByToken(r.Context(), h.pool, token)
	if err != nil {
		if errors.Is(err, db.ErrSubscriberNotFound) {
			http.Error(w, "Unknown unsubscribe token", http.StatusNotFound)
			return
		}
		log.Printf("SubscribersHandler: Failed to unsubscribe: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "%s has been unsubscribed.\n", sub.Email)
}
