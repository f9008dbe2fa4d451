package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pricetracker/price-tracker/internal/models"
)

const (
	pendingWarnThreshold     = 1000
	deadLetterErrorThreshold = 100
)

// ProductReader is the read side of the persistence sink.
type ProductReader interface {
	ListByPrice(ctx context.Context) ([]models.ProductRecord, error)
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OutboxStats is implemented by stores that keep a transactional outbox.
type OutboxStats interface {
	PendingEvents(ctx context.Context) (int64, error)
	DeadLetterEvents(ctx context.Context) (int64, error)
}

type Handlers struct {
	store  ProductReader
	logger *slog.Logger
}

func NewHandlers(store ProductReader, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:  store,
		logger: logger.With("component", "api"),
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}

// GetProductsSortedByPrice returns every stored product ordered by ascending
// price, projected to name, price and seller.
func (h *Handlers) GetProductsSortedByPrice(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListByPrice(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]models.PriceView, len(products))
	for i, p := range products {
		views[i] = p.View()
	}

	h.respondJSON(w, http.StatusOK, views)
}

// Health reports store reachability and, for the Postgres store, the outbox
// backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if p, ok := h.store.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("store ping failed", "error", err)
			health["status"] = "error"
			health["message"] = "store unreachable"
			h.respondJSON(w, http.StatusServiceUnavailable, health)
			return
		}
	}

	if stats, ok := h.store.(OutboxStats); ok {
		pendingCount, _ := stats.PendingEvents(ctx)
		deadLetterCount, _ := stats.DeadLetterEvents(ctx)

		health["outbox"] = map[string]any{
			"pending":     pendingCount,
			"dead_letter": deadLetterCount,
		}

		if pendingCount > pendingWarnThreshold {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetterCount > deadLetterErrorThreshold {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{Message: message})
}
