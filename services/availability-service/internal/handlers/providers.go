package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/providers"
)

type Registrar interface {
	Register(ctx context.Context, r providers.Registration) (model.Provider, error)
}

// ProviderHandler lets operators register providers directly when the staff
// event stream is not deployed.
type ProviderHandler struct {
	registry Registrar
	logger   *slog.Logger
}

func NewProviderHandler(registry Registrar, logger *slog.Logger) *ProviderHandler {
	return &ProviderHandler{registry: registry, logger: logger}
}

type providerResponse struct {
	ProviderID string `json:"provider_id"`
	BusinessID string `json:"business_id,omitempty"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
	UpdatedAt  string `json:"updated_at"`
}

func (h *ProviderHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req providers.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	p, err := h.registry.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, providers.ErrInvalidRegistration) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to register provider", "err", err)
		http.Error(w, "failed to register provider", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, providerResponse{
		ProviderID: p.ID,
		BusinessID: p.BusinessID,
		Name:       p.Name,
		IsActive:   p.IsActive,
		UpdatedAt:  p.UpdatedAt.UTC().Format(time.RFC3339),
	})
}
