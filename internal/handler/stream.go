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
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// Stream handles GET /api/market/{loop}/stream. The client receives the
// current snapshot, then one message per tick. The server ignores anything
// the client sends apart from control frames.
func (h *MarketHandler) Stream(w http.ResponseWriter, r *http.Request) {
	loop := chi.URLParam(r, "loop")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	current, updates, release, err := h.openFeed(ctx, loop)
	if err != nil {
		if !errors.Is(err, domain.ErrLoopNotFound) {
			h.logger.Error("stream feed unavailable", slog.String("loop", loop), slog.String("error", err.Error()))
		}
		mapMarketError(w, err)
		return
	}
	defer release()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		h.logger.Debug("stream upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	logger := h.logger.With(slog.String("loop", loop))
	logger.Debug("stream opened")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if current != nil {
		if err := writeSnapshot(conn, current); err != nil {
			return
		}
	}

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream ended")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
				logger.Debug("stream feed ended")
				return
			}
			if err := writeSnapshot(conn, snap); err != nil {
				logger.Debug("stream write failed", slog.String("error", err.Error()))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-closed:
			logger.Debug("stream closed by client")
			return
		}
	}
}

// openFeed returns loop's current snapshot and a channel of later ones.
// Loops polled in this process stream from their hub; anything else is
// followed through the cache's pub/sub channel until ctx is cancelled.
func (h *MarketHandler) openFeed(ctx context.Context, loop string) (*domain.Snapshot, <-chan *domain.Snapshot, func(), error) {
	if m, ok := h.markets[loop]; ok {
		if m.Hub == nil {
			return nil, nil, nil, domain.ErrLoopNotFound
		}
		id, updates := m.Hub.Subscribe()
		return m.Source.Snapshot(), updates, func() { m.Hub.Unsubscribe(id) }, nil
	}
	if h.cache == nil || h.watcher == nil {
		return nil, nil, nil, domain.ErrLoopNotFound
	}

	// Subscribe before reading the stored snapshot so no tick falls between.
	updates, err := h.watcher.Watch(ctx, loop)
	if err != nil {
		return nil, nil, nil, err
	}
	current, err := h.cache.Latest(ctx, loop)
	if err != nil {
		return nil, nil, nil, err
	}
	return current, updates, func() {}, nil
}

func writeSnapshot(conn *websocket.Conn, snap *domain.Snapshot) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(buildSnapshotResponse(snap))
}
