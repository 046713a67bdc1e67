package api

import (
	"log"
	"net/http"

	"github.com/akozma/mailcore/internal/thread"
)

// MaintenanceHandler exposes the re-threading maintenance operation.
type MaintenanceHandler struct {
	resolver *thread.Resolver
}

// NewMaintenanceHandler creates a new MaintenanceHandler instance.
func NewMaintenanceHandler(resolver *thread.Resolver) *MaintenanceHandler {
	return &MaintenanceHandler{resolver: resolver}
}

// Rethread handles POST /api/v1/maintenance/rethread: every message of the
// client is re-resolved from its headers, correcting drift introduced by
// out-of-order synchronization.
func (h *MaintenanceHandler) Rethread(w http.ResponseWriter, r *http.Request) {
	client, ok := ClientFromRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.resolver.RethreadAll(r.Context(), client.ID)
	if err != nil {
		log.Printf("MaintenanceHandler: Rethread for client %s failed: %v", client.ID, err)
		WriteError(w, http.StatusInternalServerError, "Rethread failed", err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}
