package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
)

// HTTPProvider reads quotes from a chart-style JSON endpoint:
//
//	GET {base}/v8/finance/chart/{symbol}{suffix}?interval=1d&range=1d
//
// Symbols are sent with their exchange suffix (".NS" for NSE listings).
// Change figures are derived from the explicit previous close rather than
// reconstructed from the price.
type HTTPProvider struct {
	baseURL string
	suffix  string
	client  *http.Client
}

// NewHTTPProvider creates a provider against baseURL.
func NewHTTPProvider(baseURL, suffix string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		suffix:  suffix,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider in logs.
func (p *HTTPProvider) Name() string { return "http" }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta chartMeta `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartMeta struct {
	RegularMarketPrice   *float64 `json:"regularMarketPrice"`
	ChartPreviousClose   *float64 `json:"chartPreviousClose"`
	PreviousClose        *float64 `json:"previousClose"`
	RegularMarketDayHigh *float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow  *float64 `json:"regularMarketDayLow"`
	RegularMarketOpen    *float64 `json:"regularMarketOpen"`
	MarketState          string   `json:"marketState"`
}

// Quote fetches symbol. A 404 or an upstream "Not Found" error maps to
// domain.ErrUpstreamNotFound.
func (p *HTTPProvider) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d",
		p.baseURL, url.PathEscape(symbol+p.suffix))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("build request for %s: %w", symbol, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Quote{}, fmt.Errorf("fetch %s: %w", symbol, domain.ErrUpstreamNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("fetch %s: upstream status %d", symbol, resp.StatusCode)
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Quote{}, fmt.Errorf("decode %s: %w", symbol, err)
	}
	if body.Chart.Error != nil {
		return domain.Quote{}, fmt.Errorf("fetch %s: %s: %w", symbol, body.Chart.Error.Description, domain.ErrUpstreamNotFound)
	}
	if len(body.Chart.Result) == 0 || body.Chart.Result[0].Meta.RegularMarketPrice == nil {
		return domain.Quote{}, fmt.Errorf("fetch %s: empty result", symbol)
	}

	return quoteFromMeta(symbol, body.Chart.Result[0].Meta), nil
}

func quoteFromMeta(symbol string, m chartMeta) domain.Quote {
	q := domain.Quote{
		Symbol:       symbol,
		Price:        *m.RegularMarketPrice,
		High:         m.RegularMarketDayHigh,
		Low:          m.RegularMarketDayLow,
		Open:         m.RegularMarketOpen,
		MarketClosed: m.MarketState != "" && m.MarketState != "REGULAR",
	}
	prev := m.ChartPreviousClose
	if prev == nil {
		prev = m.PreviousClose
	}
	if prev != nil {
		q.PreviousClose = prev
		q.Change, q.ChangePercent = domain.ChangeFromPreviousClose(q.Price, *prev)
	}
	return q
}
