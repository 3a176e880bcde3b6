package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/calendar"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/engine"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/gateway"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/hub"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/service"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/store"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/upstream"
)

// Monday 12:00 and Saturday 12:00 in exchange time.
var (
	openTime   = time.Date(2026, 10, 12, 12, 0, 0, 0, calendar.Location())
	closedTime = time.Date(2026, 10, 17, 12, 0, 0, 0, calendar.Location())
)

type staticSource struct {
	snap *domain.Snapshot
}

func (s *staticSource) Snapshot() *domain.Snapshot { return s.snap }

// testEnv bundles all dependencies for handler integration tests.
type testEnv struct {
	router  http.Handler
	catalog *domain.Catalog
	stocks  *staticSource
	hub     *hub.Hub
}

type envOptions struct {
	now   time.Time
	token string
	cache SnapshotReader
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, envOptions{now: openTime})
}

func newTestEnvWith(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	catalog, err := domain.NewCatalog([]domain.CatalogEntry{
		{Symbol: "RELIANCE", Name: "Reliance Industries", Kind: domain.KindStock, BasePrice: 2950.40},
		{Symbol: "TCS", Name: "Tata Consultancy Services", Kind: domain.KindStock, BasePrice: 4120.75},
		{Symbol: "NIFTY_50", Name: "Nifty 50", Kind: domain.KindIndex, BasePrice: 24850},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	provider := upstream.NewSyntheticProvider(catalog, 1, 7)
	clock := func() time.Time { return opts.now }
	quoteSvc := service.NewQuoteService(provider, 50, 4, clock, logger)
	indexSvc := service.NewQuoteService(provider, 20, 4, clock, logger)

	rec := engine.NewReconciler("stocks", catalog.Filter(domain.KindStock), store.NewHistoryStore(30), openTime)
	snap := rec.Apply([]domain.QuoteResult{
		domain.OkResult(domain.Quote{Symbol: "RELIANCE", Price: 2960.456, Change: 10.056, ChangePercent: 0.3409}),
		domain.ErrResult("TCS", "timeout", false),
	}, true, openTime)

	stocks := &staticSource{snap: snap}
	h := hub.New(logger)
	markets := map[string]Market{"stocks": {Source: stocks, Hub: h}}

	return &testEnv{
		router:  NewRouter(quoteSvc, indexSvc, markets, opts.cache, opts.token, logger),
		catalog: catalog,
		stocks:  stocks,
		hub:     h,
	}
}

// doJSON sends a JSON request and returns the recorder.
func (env *testEnv) doJSON(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// doRaw sends a raw request with optional content-type override.
func (env *testEnv) doRaw(t *testing.T, method, path, contentType, rawBody string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(rawBody))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// decodeJSON decodes the response body into v.
func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

func symbolsBody(symbols ...string) map[string]any {
	specs := make([]map[string]string, len(symbols))
	for i, s := range symbols {
		specs[i] = map[string]string{"symbol": s}
	}
	return map[string]any{"symbols": specs}
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d: %s", rr.Code, status, rr.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error != code {
		t.Errorf("error = %q, want %q", resp.Error, code)
	}
	if resp.Message == "" {
		t.Error("message should not be empty")
	}
}

// --- Health ---

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doJSON(t, "GET", "/healthz", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want ok", resp["status"])
	}
}

// --- Gateway routes ---

type batchBody struct {
	Data       []map[string]any `json:"data"`
	MarketOpen bool             `json:"marketOpen"`
	Timestamp  string           `json:"timestamp"`
}

func TestQuotes_PartialFailureKeepsOrder(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doJSON(t, "POST", "/api/quotes", symbolsBody("TCS", "UNKNOWN", "RELIANCE", "TCS"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var resp batchBody
	decodeJSON(t, rr, &resp)

	if !resp.MarketOpen {
		t.Error("marketOpen = false, want true on a weekday at noon")
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC 3339: %v", resp.Timestamp, err)
	}

	want := []string{"TCS", "UNKNOWN", "RELIANCE", "TCS"}
	if len(resp.Data) != len(want) {
		t.Fatalf("got %d entries, want %d", len(resp.Data), len(want))
	}
	for i, sym := range want {
		if resp.Data[i]["symbol"] != sym {
			t.Errorf("data[%d].symbol = %v, want %s", i, resp.Data[i]["symbol"], sym)
		}
	}
	if resp.Data[1]["error"] != true {
		t.Errorf("unknown symbol entry = %v, want error: true", resp.Data[1])
	}
	if price, ok := resp.Data[2]["price"].(float64); !ok || price <= 0 {
		t.Errorf("RELIANCE price = %v, want positive", resp.Data[2]["price"])
	}
	if resp.Data[0]["price"] != resp.Data[3]["price"] {
		t.Errorf("duplicate symbol should share one fetch: %v vs %v", resp.Data[0]["price"], resp.Data[3]["price"])
	}
}

func TestQuotes_MarketClosedFlag(t *testing.T) {
	env := newTestEnvWith(t, envOptions{now: closedTime})

	rr := env.doJSON(t, "POST", "/api/indices", symbolsBody("NIFTY_50"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp batchBody
	decodeJSON(t, rr, &resp)

	if resp.MarketOpen {
		t.Error("marketOpen = true on a Saturday")
	}
	if resp.Data[0]["marketClosed"] != true {
		t.Errorf("entry = %v, want marketClosed: true", resp.Data[0])
	}
}

func TestQuotes_Validation(t *testing.T) {
	env := newTestEnv(t)

	many := make([]string, 21)
	for i := range many {
		many[i] = "NIFTY_50"
	}

	tests := []struct {
		name string
		path string
		body any
		code string
	}{
		{"empty batch", "/api/quotes", symbolsBody(), "validation_error"},
		{"missing symbols", "/api/quotes", map[string]any{}, "validation_error"},
		{"lowercase symbol", "/api/quotes", symbolsBody("reliance"), "validation_error"},
		{"symbol too long", "/api/quotes", symbolsBody(strings.Repeat("A", 21)), "validation_error"},
		{"empty symbol", "/api/quotes", symbolsBody(""), "validation_error"},
		{"index batch over limit", "/api/indices", symbolsBody(many...), "validation_error"},
		{"unknown field", "/api/quotes", map[string]any{"symbols": []any{}, "extra": true}, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.doJSON(t, "POST", tt.path, tt.body, nil)
			assertErrorCode(t, rr, http.StatusBadRequest, tt.code)
		})
	}
}

func TestQuotes_BadContentType(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doRaw(t, "POST", "/api/quotes", "text/plain", `{"symbols":[{"symbol":"TCS"}]}`)
	assertErrorCode(t, rr, http.StatusBadRequest, "invalid_request")

	rr = env.doRaw(t, "POST", "/api/quotes", "application/json", `{"symbols":[`)
	assertErrorCode(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestQuotes_BearerAuth(t *testing.T) {
	env := newTestEnvWith(t, envOptions{now: openTime, token: "s3cret"})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}
			rr := env.doJSON(t, "POST", "/api/quotes", symbolsBody("TCS"), h)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.status, rr.Body.String())
			}
			if tt.status == http.StatusUnauthorized {
				assertErrorCode(t, rr, http.StatusUnauthorized, "unauthorized")
			}
		})
	}

	// Presentation routes stay open.
	if rr := env.doJSON(t, "GET", "/api/market/stocks", nil, nil); rr.Code != http.StatusOK {
		t.Errorf("market route status = %d, want 200", rr.Code)
	}
}

func TestGatewayClientRoundTrip(t *testing.T) {
	env := newTestEnvWith(t, envOptions{now: openTime, token: "s3cret"})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	client := gateway.NewClient(srv.URL+"/api/quotes", "s3cret", 1, 0, time.Second)
	results, open, err := client.FetchQuotes(context.Background(), []string{"RELIANCE", "TCS", "MISSING"})
	if err != nil {
		t.Fatalf("FetchQuotes: %v", err)
	}
	if !open {
		t.Error("marketOpen = false, want true")
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if q, ok := results[0].Quote(); !ok || q.Symbol != "RELIANCE" || q.Price <= 0 {
		t.Errorf("results[0] = %+v", results[0])
	}
	if !results[2].Failed() {
		t.Error("MISSING should be a failed entry")
	}

	bad := gateway.NewClient(srv.URL+"/api/quotes", "wrong", 50, 0, time.Second)
	if _, _, err := bad.FetchQuotes(context.Background(), []string{"TCS"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

// --- Market routes ---

func TestGetSnapshot(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doJSON(t, "GET", "/api/market/stocks", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var resp snapshotResponse
	decodeJSON(t, rr, &resp)

	if resp.Loop != "stocks" || resp.TickID == "" || !resp.MarketOpen {
		t.Errorf("header fields = %+v", resp)
	}
	if len(resp.Failed) != 1 || resp.Failed[0] != "TCS" {
		t.Errorf("failed = %v, want [TCS]", resp.Failed)
	}
	if len(resp.Instruments) != 2 {
		t.Fatalf("instruments = %d, want 2", len(resp.Instruments))
	}

	rel := resp.Instruments[0]
	if rel.Symbol != "RELIANCE" || rel.Price != 2960.46 || rel.Change != 10.06 || rel.Provenance != "real" {
		t.Errorf("RELIANCE = %+v", rel)
	}
	tcs := resp.Instruments[1]
	if !tcs.Failed || tcs.Price != 4120.75 || tcs.Provenance != "simulated" {
		t.Errorf("TCS = %+v, want untouched seed and failed flag", tcs)
	}
	if len(resp.History["RELIANCE"]) != 1 {
		t.Errorf("RELIANCE history = %v, want one point", resp.History["RELIANCE"])
	}
}

func TestGetSnapshot_UnknownLoop(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doJSON(t, "GET", "/api/market/crypto", nil, nil)
	assertErrorCode(t, rr, http.StatusNotFound, "loop_not_found")
}

func TestGetSnapshot_FromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := store.NewSnapshotCache(rdb, time.Minute)
	t.Cleanup(func() { _ = cache.Close() })

	remote := &domain.Snapshot{
		Loop:   "indices",
		TickID: "tick-1",
		At:     openTime,
		Instruments: []domain.Instrument{{
			Symbol: "NIFTY_50", Name: "Nifty 50", Kind: domain.KindIndex,
			Price: 24900, Provenance: domain.ProvenanceReal, UpdatedAt: openTime,
		}},
		History:    map[string][]domain.PricePoint{"NIFTY_50": {{Price: 24900, At: openTime}}},
		MarketOpen: true,
	}
	if err := cache.Publish(context.Background(), remote); err != nil {
		t.Fatalf("publish: %v", err)
	}

	env := newTestEnvWith(t, envOptions{now: openTime, cache: cache})

	rr := env.doJSON(t, "GET", "/api/market/indices", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var resp snapshotResponse
	decodeJSON(t, rr, &resp)
	if resp.TickID != "tick-1" || len(resp.Instruments) != 1 || resp.Instruments[0].Price != 24900 {
		t.Errorf("resp = %+v", resp)
	}

	rr = env.doJSON(t, "GET", "/api/market/nothing", nil, nil)
	assertErrorCode(t, rr, http.StatusNotFound, "loop_not_found")
}

func TestGetHistory(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doJSON(t, "GET", "/api/market/stocks/history/RELIANCE", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp historyResponse
	decodeJSON(t, rr, &resp)
	if resp.Symbol != "RELIANCE" || len(resp.Points) != 1 || resp.Points[0].Price != 2960.46 {
		t.Errorf("resp = %+v", resp)
	}

	// Known symbol with no history yet returns an empty list, not null.
	rr = env.doJSON(t, "GET", "/api/market/stocks/history/TCS", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var raw map[string]any
	decodeJSON(t, rr, &raw)
	if pts, ok := raw["points"].([]any); !ok || len(pts) != 0 {
		t.Errorf("points = %v, want []", raw["points"])
	}

	rr = env.doJSON(t, "GET", "/api/market/stocks/history/NIFTY_50", nil, nil)
	assertErrorCode(t, rr, http.StatusNotFound, "symbol_not_found")
}

// --- Series ---

func TestGetSeries(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doJSON(t, "GET", "/api/series?length=10&start=50&volatility=3", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp seriesResponse
	decodeJSON(t, rr, &resp)
	if len(resp.Prices) != 10 || resp.Prices[0] != 50 {
		t.Errorf("prices = %v, want 10 prices starting at 50", resp.Prices)
	}
	for i, p := range resp.Prices {
		if p < domain.MinPrice {
			t.Errorf("prices[%d] = %v below floor", i, p)
		}
	}

	rr = env.doJSON(t, "GET", "/api/series", nil, nil)
	decodeJSON(t, rr, &resp)
	if len(resp.Prices) != defaultSeriesLength || resp.Start != defaultSeriesStart {
		t.Errorf("defaults: %+v", resp)
	}

	rr = env.doJSON(t, "GET", "/api/series?length=0", nil, nil)
	var raw map[string]any
	decodeJSON(t, rr, &raw)
	if pts, ok := raw["prices"].([]any); !ok || len(pts) != 0 {
		t.Errorf("length=0 prices = %v, want []", raw["prices"])
	}
}

func TestGetSeries_Invalid(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{
		"length=-1", "length=abc", "length=1001",
		"start=0", "start=-5", "start=NaN",
		"volatility=-1", "volatility=101", "volatility=Inf",
	} {
		t.Run(q, func(t *testing.T) {
			rr := env.doJSON(t, "GET", "/api/series?"+q, nil, nil)
			assertErrorCode(t, rr, http.StatusBadRequest, "validation_error")
		})
	}
}

// --- Stream ---

func dialStream(t *testing.T, srv *httptest.Server, loop string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/market/" + loop + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) snapshotResponse {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp snapshotResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	return resp
}

func waitForSubscribers(t *testing.T, h *hub.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dialStream(t, srv, "stocks")

	first := readSnapshot(t, conn)
	if first.TickID != env.stocks.snap.TickID {
		t.Errorf("first message tick = %q, want current snapshot %q", first.TickID, env.stocks.snap.TickID)
	}

	waitForSubscribers(t, env.hub, 1)
	next := &domain.Snapshot{Loop: "stocks", TickID: "next-tick", At: openTime}
	_ = env.hub.Publish(context.Background(), next)

	if got := readSnapshot(t, conn); got.TickID != "next-tick" {
		t.Errorf("second message tick = %q, want next-tick", got.TickID)
	}

	env.hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("err = %v, want going-away close", err)
	}
}

func TestStream_UnknownLoop(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doJSON(t, "GET", "/api/market/crypto/stream", nil, nil)
	assertErrorCode(t, rr, http.StatusNotFound, "loop_not_found")
}

func TestStream_FromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := store.NewSnapshotCache(rdb, time.Minute)
	t.Cleanup(func() { _ = cache.Close() })

	ctx := context.Background()
	if err := cache.Publish(ctx, &domain.Snapshot{Loop: "indices", TickID: "tick-1", At: openTime}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	env := newTestEnvWith(t, envOptions{now: openTime, cache: cache})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dialStream(t, srv, "indices")
	if got := readSnapshot(t, conn); got.TickID != "tick-1" {
		t.Errorf("first message tick = %q, want tick-1", got.TickID)
	}

	// The engine for this loop runs elsewhere and announces through Redis.
	if err := cache.Publish(ctx, &domain.Snapshot{Loop: "indices", TickID: "tick-2", At: openTime.Add(2 * time.Second)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := readSnapshot(t, conn); got.TickID != "tick-2" {
		t.Errorf("second message tick = %q, want tick-2", got.TickID)
	}

	rr := env.doJSON(t, "GET", "/api/market/nothing/stream", nil, nil)
	assertErrorCode(t, rr, http.StatusNotFound, "loop_not_found")
}
