package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/akozma/mailcore/internal/models"
	"github.com/akozma/mailcore/internal/newsletter"
)

// NewsletterHandler accepts a newsletter run, acknowledges immediately, and
// lets the batch engine work in the background.
type NewsletterHandler struct {
	engine *newsletter.Engine
}

// NewNewsletterHandler creates a new NewsletterHandler instance.
func NewNewsletterHandler(engine *newsletter.Engine) *NewsletterHandler {
	return &NewsletterHandler{engine: engine}
}

type newsletterRequest struct {
	newsletter.Content
	Recipients []struct {
		Email string `json:"email"`
		Name  string `json:"name,omitempty"`
	} `json:"recipients,omitempty"`
}

// Send handles POST /api/v1/newsletter. The run itself continues after the
// response; a fresh context detaches it from the request lifetime.
func (h *NewsletterHandler) Send(w http.ResponseWriter, r *http.Request) {
	client, ok := ClientFromRequest(w, r)
	if !ok {
		return
	}

	var req newsletterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Subject == "" || req.BodyText == "" {
		WriteError(w, http.StatusBadRequest, "subject and body_text are required", nil)
		return
	}

	custom := make([]newsletter.Recipient, 0, len(req.Recipients))
	for _, rec := range req.Recipients {
		custom = append(custom, newsletter.Recipient{Email: rec.Email, Name: rec.Name})
	}

	recipients, err := h.engine.Resolve(r.Context(), client, custom)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to resolve recipients", err)
		return
	}
	if len(recipients) == 0 {
		WriteError(w, http.StatusBadRequest, "No recipients", nil)
		return
	}

	status := h.engine.Ack(client, uuid.NewString(), len(recipients))
	if !projectedWithinBudget(status.RateLimit, len(recipients)) {
		WriteJSON(w, http.StatusTooManyRequests, status)
		return
	}

	content := req.Content
	go func() {
		// The request context dies with the response; the run must not.
		report, err := h.engine.Run(context.Background(), client, &content, recipients, status.NewsletterID)
		if err != nil {
			log.Printf("NewsletterHandler: Run for client %s failed: %v", client.ID, err)
			return
		}
		log.Printf("NewsletterHandler: Run %s for client %s done: %d sent, %d failed",
			report.NewsletterID, client.ID, report.Sent, report.Failed)
	}()

	WriteJSON(w, http.StatusAccepted, status)
}

func projectedWithinBudget(status models.RateLimitStatus, count int) bool {
	return status.CanSend && count <= status.RemainingHourly && count <= status.RemainingDaily
}
