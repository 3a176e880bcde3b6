package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/hub"
)

// SnapshotSource returns the latest snapshot of an in-process loop.
type SnapshotSource interface {
	Snapshot() *domain.Snapshot
}

// SnapshotReader reads snapshots published by another process.
type SnapshotReader interface {
	Latest(ctx context.Context, loop string) (*domain.Snapshot, error)
}

// SnapshotWatcher follows snapshots published by another process.
type SnapshotWatcher interface {
	Watch(ctx context.Context, loop string) (<-chan *domain.Snapshot, error)
}

// Market is one polling loop as seen by the presentation routes. Hub may be
// nil, in which case the loop has no stream.
type Market struct {
	Source SnapshotSource
	Hub    *hub.Hub
}

// MarketHandler serves snapshots, per-symbol history and the snapshot stream.
type MarketHandler struct {
	markets  map[string]Market
	cache    SnapshotReader
	watcher  SnapshotWatcher
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewMarketHandler creates a MarketHandler. cache may be nil; when set it
// serves loops that are not running in this process, and streams them too
// if it also implements SnapshotWatcher.
func NewMarketHandler(markets map[string]Market, cache SnapshotReader, logger *slog.Logger) *MarketHandler {
	h := &MarketHandler{
		markets: markets,
		cache:   cache,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
	if w, ok := cache.(SnapshotWatcher); ok {
		h.watcher = w
	}
	return h
}

type pricePointResponse struct {
	Price float64 `json:"price"`
	At    string  `json:"at"`
}

type instrumentResponse struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Kind          string  `json:"kind"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Provenance    string  `json:"provenance"`
	UpdatedAt     string  `json:"updatedAt"`
	Failed        bool    `json:"failed"`
}

// snapshotResponse is the JSON form of a snapshot, used by both the REST
// route and the stream.
type snapshotResponse struct {
	Loop        string                          `json:"loop"`
	TickID      string                          `json:"tickId"`
	At          string                          `json:"at"`
	MarketOpen  bool                            `json:"marketOpen"`
	Failed      []string                        `json:"failed"`
	Instruments []instrumentResponse            `json:"instruments"`
	History     map[string][]pricePointResponse `json:"history"`
}

type historyResponse struct {
	Loop   string               `json:"loop"`
	Symbol string               `json:"symbol"`
	Points []pricePointResponse `json:"points"`
}

// GetSnapshot handles GET /api/market/{loop}.
func (h *MarketHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r.Context(), chi.URLParam(r, "loop"))
	if err != nil {
		mapMarketError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildSnapshotResponse(snap))
}

// GetHistory handles GET /api/market/{loop}/history/{symbol}.
func (h *MarketHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r.Context(), chi.URLParam(r, "loop"))
	if err != nil {
		mapMarketError(w, err)
		return
	}

	symbol := chi.URLParam(r, "symbol")
	if _, ok := snap.Instrument(symbol); !ok {
		mapMarketError(w, domain.ErrSymbolNotFound)
		return
	}

	WriteJSON(w, http.StatusOK, historyResponse{
		Loop:   snap.Loop,
		Symbol: symbol,
		Points: buildPoints(snap.History[symbol]),
	})
}

func (h *MarketHandler) snapshot(ctx context.Context, loop string) (*domain.Snapshot, error) {
	if m, ok := h.markets[loop]; ok {
		if snap := m.Source.Snapshot(); snap != nil {
			return snap, nil
		}
	}
	if h.cache != nil {
		return h.cache.Latest(ctx, loop)
	}
	return nil, domain.ErrLoopNotFound
}

func buildSnapshotResponse(s *domain.Snapshot) snapshotResponse {
	failed := make(map[string]bool, len(s.Failed))
	for _, sym := range s.Failed {
		failed[sym] = true
	}

	instruments := make([]instrumentResponse, len(s.Instruments))
	for i, in := range s.Instruments {
		instruments[i] = instrumentResponse{
			Symbol:        in.Symbol,
			Name:          in.Name,
			Kind:          string(in.Kind),
			Price:         domain.Round2(in.Price),
			Change:        domain.Round2(in.Change),
			ChangePercent: domain.Round2(in.ChangePercent),
			Provenance:    string(in.Provenance),
			UpdatedAt:     in.UpdatedAt.UTC().Format(time.RFC3339),
			Failed:        failed[in.Symbol],
		}
	}

	history := make(map[string][]pricePointResponse, len(s.History))
	for sym, pts := range s.History {
		history[sym] = buildPoints(pts)
	}

	failedList := s.Failed
	if failedList == nil {
		failedList = []string{}
	}

	return snapshotResponse{
		Loop:        s.Loop,
		TickID:      s.TickID,
		At:          s.At.UTC().Format(time.RFC3339),
		MarketOpen:  s.MarketOpen,
		Failed:      failedList,
		Instruments: instruments,
		History:     history,
	}
}

func buildPoints(pts []domain.PricePoint) []pricePointResponse {
	out := make([]pricePointResponse, len(pts))
	for i, p := range pts {
		out[i] = pricePointResponse{
			Price: domain.Round2(p.Price),
			At:    p.At.UTC().Format(time.RFC3339),
		}
	}
	return out
}

// mapMarketError maps snapshot lookup errors to HTTP responses.
func mapMarketError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrLoopNotFound):
		WriteError(w, http.StatusNotFound, "loop_not_found", err.Error())
	case errors.Is(err, domain.ErrSymbolNotFound):
		WriteError(w, http.StatusNotFound, "symbol_not_found", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
