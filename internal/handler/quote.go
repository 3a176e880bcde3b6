package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/service"
)

// QuoteHandler serves one gateway route. The quotes and indices routes
// share it with differently sized services.
type QuoteHandler struct {
	svc *service.QuoteService
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(svc *service.QuoteService) *QuoteHandler {
	return &QuoteHandler{svc: svc}
}

type quoteSymbol struct {
	Symbol string `json:"symbol"`
}

// quoteRequest is the JSON request body for POST /api/quotes and /api/indices.
type quoteRequest struct {
	Symbols []quoteSymbol `json:"symbols"`
}

// quoteBatchResponse is the JSON response for a gateway call. Data entries
// are in request order.
type quoteBatchResponse struct {
	Data       []domain.QuoteResult `json:"data"`
	MarketOpen bool                 `json:"marketOpen"`
	Timestamp  string               `json:"timestamp"`
}

// Fetch handles POST /api/quotes and POST /api/indices.
func (h *QuoteHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	symbols := make([]string, len(req.Symbols))
	for i, s := range req.Symbols {
		symbols[i] = s.Symbol
	}

	batch, err := h.svc.FetchQuotes(r.Context(), symbols)
	if err != nil {
		mapQuoteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, quoteBatchResponse{
		Data:       batch.Results,
		MarketOpen: batch.MarketOpen,
		Timestamp:  batch.Timestamp.UTC().Format(time.RFC3339),
	})
}

// mapQuoteError maps gateway errors to HTTP responses.
func mapQuoteError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
