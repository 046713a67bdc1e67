package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/akozma/mailcore/internal/auth"
	"github.com/akozma/mailcore/internal/models"
)

// ErrorResponse is the structured error payload every endpoint returns.
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// WriteJSON encodes a response to a buffer first to prevent partial writes
// if encoding fails, then sends it with the given status. Returns false if
// the response could not be written.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) bool {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("API: Failed to write response: %v", err)
		return false
	}
	return true
}

// WriteError sends the structured error payload. The internal error detail
// is included only when err is non-nil.
func WriteError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{OK: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	WriteJSON(w, status, resp)
}

// ClientFromRequest extracts the authenticated tenant from the request
// context, writing a 401 when the middleware did not run. Returns (client,
// true) on success.
func ClientFromRequest(w http.ResponseWriter, r *http.Request) (*models.Client, bool) {
	client, ok := auth.ClientFromContext(r.Context())
	if !ok {
		log.Println("API: No client in context")
		WriteError(w, http.StatusUnauthorized, "Unauthorized", nil)
		return nil, false
	}
	return client, true
}

// ParsePaginationParams parses page and limit from query parameters, falling
// back to page 1 and the given default limit when missing or invalid.
func ParsePaginationParams(r *http.Request, defaultLimit int) (page, limit int) {
	page = 1
	limit = defaultLimit

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil && parsed > 0 {
			page = parsed
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	return page, limit
}
