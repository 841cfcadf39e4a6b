package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/scheduling"
)

const ProviderHeader = "X-Provider-Id"

// Scheduler is the part of scheduling.Service the HTTP layer drives.
type Scheduler interface {
	Horizon() (time.Time, time.Time)
	Configure(ctx context.Context, providerID string, cfg model.WeeklyConfig) ([]model.TimeSlot, error)
	GetConfiguration(ctx context.Context, providerID string) (model.WeeklyConfig, error)
	GenerateSlots(ctx context.Context, providerID string, rangeStart, rangeEnd time.Time) ([]model.TimeSlot, error)
	GetAvailableSlotsForDate(ctx context.Context, providerID string, date time.Time) ([]model.TimeSlot, error)
	SetSlotStatus(ctx context.Context, providerID, slotID string, status model.SlotStatus) error
}

type AvailabilityHandler struct {
	svc    Scheduler
	logger *slog.Logger
}

func NewAvailabilityHandler(svc Scheduler, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc, logger: logger}
}

type slotItem struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
}

type slotsResponse struct {
	ProviderID string     `json:"provider_id"`
	From       string     `json:"from,omitempty"`
	To         string     `json:"to,omitempty"`
	Slots      []slotItem `json:"slots"`
}

type slotStatusRequest struct {
	ProviderID string `json:"provider_id"`
	SlotID     string `json:"slot_id"`
	Status     string `json:"status"`
}

// Availability serves GET (read the weekly view) and PUT (replace it and
// regenerate slots) for the provider named in the X-Provider-Id header.
func (h *AvailabilityHandler) Availability(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getConfiguration(w, r)
	case http.MethodPut:
		h.configure(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AvailabilityHandler) configure(w http.ResponseWriter, r *http.Request) {
	providerID, ok := providerFromHeader(w, r)
	if !ok {
		return
	}

	var req model.WeeklyConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	slots, err := h.svc.Configure(r.Context(), providerID, req)
	if err != nil {
		h.fail(w, r, err, "failed to configure availability")
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{ProviderID: providerID, Slots: toSlotItems(slots)})
}

func (h *AvailabilityHandler) getConfiguration(w http.ResponseWriter, r *http.Request) {
	providerID, ok := providerFromHeader(w, r)
	if !ok {
		return
	}

	cfg, err := h.svc.GetConfiguration(r.Context(), providerID)
	if err != nil {
		h.fail(w, r, err, "failed to load availability")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Regenerate rebuilds slots over [from, to]. Both bounds are optional dates
// (YYYY-MM-DD) or RFC 3339 timestamps and default to the service horizon.
func (h *AvailabilityHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID, ok := providerFromHeader(w, r)
	if !ok {
		return
	}

	from, to := h.svc.Horizon()
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		ts, err := parseInstant(raw)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = ts
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		ts, err := parseInstant(raw)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		to = ts
	}

	slots, err := h.svc.GenerateSlots(r.Context(), providerID, from, to)
	if err != nil {
		h.fail(w, r, err, "failed to regenerate slots")
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{
		ProviderID: providerID,
		From:       from.UTC().Format(time.RFC3339),
		To:         to.UTC().Format(time.RFC3339),
		Slots:      toSlotItems(slots),
	})
}

// Slots is the public listing of a provider's available slots on one UTC date.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if providerID == "" || dateStr == "" {
		http.Error(w, "provider_id and date are required", http.StatusBadRequest)
		return
	}
	if _, err := uuid.Parse(providerID); err != nil {
		http.Error(w, "invalid provider_id", http.StatusBadRequest)
		return
	}
	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	slots, err := h.svc.GetAvailableSlotsForDate(r.Context(), providerID, date)
	if err != nil {
		h.fail(w, r, err, "failed to load slots")
		return
	}
	writeJSON(w, http.StatusOK, toSlotItems(slots))
}

// SlotStatus marks a generated slot reserved, blocked or available again.
func (h *AvailabilityHandler) SlotStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req slotStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.SlotID = strings.TrimSpace(req.SlotID)
	if req.ProviderID == "" || req.SlotID == "" {
		http.Error(w, "provider_id and slot_id required", http.StatusBadRequest)
		return
	}
	if _, err := uuid.Parse(req.ProviderID); err != nil {
		http.Error(w, "invalid provider_id", http.StatusBadRequest)
		return
	}
	if _, err := uuid.Parse(req.SlotID); err != nil {
		http.Error(w, "invalid slot_id", http.StatusBadRequest)
		return
	}

	status := model.SlotStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err := h.svc.SetSlotStatus(r.Context(), req.ProviderID, req.SlotID, status); err != nil {
		h.fail(w, r, err, "failed to update slot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"slot_id": req.SlotID,
		"status":  string(status),
	})
}

func (h *AvailabilityHandler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case scheduling.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case scheduling.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error(msg, "err", err, "path", r.URL.Path)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func providerFromHeader(w http.ResponseWriter, r *http.Request) (string, bool) {
	providerID := strings.TrimSpace(r.Header.Get(ProviderHeader))
	if providerID == "" {
		http.Error(w, "missing "+ProviderHeader+" header", http.StatusBadRequest)
		return "", false
	}
	if _, err := uuid.Parse(providerID); err != nil {
		http.Error(w, "invalid "+ProviderHeader+" header", http.StatusBadRequest)
		return "", false
	}
	return providerID, true
}

func parseInstant(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.DateOnly, raw); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func toSlotItems(slots []model.TimeSlot) []slotItem {
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			ID:         s.ID,
			ProviderID: s.ProviderID,
			StartTime:  s.StartTime.UTC().Format(time.RFC3339),
			EndTime:    s.EndTime.UTC().Format(time.RFC3339),
			Status:     string(s.Status),
		})
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
