// Package gateway is the engine-side client of the quote gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
	"github.com/google/uuid"
)

// Client posts symbol batches to one gateway route (stocks or indices).
type Client struct {
	endpoint   string
	token      string
	maxBatch   int
	batchDelay time.Duration
	httpClient *http.Client
}

// NewClient creates a client for endpoint, e.g. http://host:8080/api/quotes.
// Batches above maxBatch are split and sent batchDelay apart.
func NewClient(endpoint, token string, maxBatch int, batchDelay, timeout time.Duration) *Client {
	if maxBatch < 1 {
		maxBatch = 1
	}
	return &Client{
		endpoint:   endpoint,
		token:      token,
		maxBatch:   maxBatch,
		batchDelay: batchDelay,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type symbolSpec struct {
	Symbol string `json:"symbol"`
}

type batchRequest struct {
	Symbols []symbolSpec `json:"symbols"`
}

type batchResponse struct {
	Data       []domain.QuoteResult `json:"data"`
	MarketOpen bool                 `json:"marketOpen"`
	Timestamp  time.Time            `json:"timestamp"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// FetchQuotes returns one result per requested symbol plus the gateway's
// market-open flag. When the batch is split into chunks the market counts
// as open only if every chunk reported it open, so a session that closes
// mid-batch is treated as closed. A 401 yields domain.ErrUnauthorized, a 400 a
// *domain.ValidationError, and anything else that prevents a usable
// response wraps domain.ErrGatewayUnavailable.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) ([]domain.QuoteResult, bool, error) {
	var (
		results    = make([]domain.QuoteResult, 0, len(symbols))
		marketOpen = len(symbols) > 0
	)
	for start := 0; start < len(symbols); start += c.maxBatch {
		if start > 0 && c.batchDelay > 0 {
			timer := time.NewTimer(c.batchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, false, ctx.Err()
			case <-timer.C:
			}
		}

		end := min(start+c.maxBatch, len(symbols))
		chunk, open, err := c.fetchChunk(ctx, symbols[start:end])
		if err != nil {
			return nil, false, err
		}
		results = append(results, chunk...)
		marketOpen = marketOpen && open
	}
	return results, marketOpen, nil
}

func (c *Client) fetchChunk(ctx context.Context, symbols []string) ([]domain.QuoteResult, bool, error) {
	body := batchRequest{Symbols: make([]symbolSpec, len(symbols))}
	for i, s := range symbols {
		body.Symbols[i] = symbolSpec{Symbol: s}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, false, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.New().String())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, domain.ErrUnauthorized
	case resp.StatusCode == http.StatusBadRequest:
		return nil, false, &domain.ValidationError{Message: readErrorMessage(resp.Body)}
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("%w: status %d: %s",
			domain.ErrGatewayUnavailable, resp.StatusCode, readErrorMessage(resp.Body))
	}

	var out batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("%w: decode response: %v", domain.ErrGatewayUnavailable, err)
	}
	return out.Data, out.MarketOpen, nil
}

// readErrorMessage extracts the gateway's error text, falling back to the
// raw body.
func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
