package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/piukhq/vela-sub000/internal/model"
	"github.com/piukhq/vela-sub000/internal/repository"
	"github.com/piukhq/vela-sub000/internal/service"
)

// TransactionProcessor and StatusChanger are the two inbound operations;
// the handler depends on these, not on the concrete services.
type TransactionProcessor interface {
	Process(ctx context.Context, retailer string, req model.TransactionRequest) (*model.TransactionResponse, error)
}

type StatusChanger interface {
	ChangeStatus(ctx context.Context, retailer string, req model.StatusChangeRequest) (*model.StatusChangeResponse, error)
}

type Handler struct {
	transactions TransactionProcessor
	statuses     StatusChanger
	logger       *slog.Logger
}

func NewHandler(transactions TransactionProcessor, statuses StatusChanger, logger *slog.Logger) *Handler {
	return &Handler{transactions: transactions, statuses: statuses, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /retailers/{retailer}/transaction", h.Transaction)
	mux.HandleFunc("POST /retailers/{retailer}/campaigns/status", h.CampaignStatus)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) Transaction(w http.ResponseWriter, r *http.Request) {
	retailer := r.PathValue("retailer")

	var req model.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	resp, err := h.transactions.Process(r.Context(), retailer, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, service.ErrNoActiveCampaigns):
			h.respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, repository.ErrDuplicateTransaction):
			h.respondError(w, http.StatusConflict, "duplicate_transaction")
		default:
			h.logger.Error("transaction processing failed", "retailer", retailer, "error", err)
			h.respondError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) CampaignStatus(w http.ResponseWriter, r *http.Request) {
	retailer := r.PathValue("retailer")

	var req model.StatusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	resp, err := h.statuses.ChangeStatus(r.Context(), retailer, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLastActiveCampaign):
			// The batch was rejected before any mutation.
			h.respondJSON(w, http.StatusConflict, resp)
		case errors.Is(err, service.ErrTaskEnqueue):
			h.respondError(w, http.StatusInternalServerError, "task_enqueue_failed")
		default:
			h.logger.Error("status change failed", "retailer", retailer, "error", err)
			h.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
