package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/calendar"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/upstream"
)

// BatchResponse is the result of one gateway call.
type BatchResponse struct {
	Results    []domain.QuoteResult // same order as the requested symbols
	MarketOpen bool
	Timestamp  time.Time
}

// QuoteService is the server side of the quote gateway. It validates a
// batch, fans it out to the upstream provider one symbol at a time, and
// stamps the whole batch with a single market-open flag.
type QuoteService struct {
	provider    upstream.Provider
	maxBatch    int
	concurrency int
	clock       calendar.Clock
	logger      *slog.Logger
}

// NewQuoteService creates a QuoteService. maxBatch bounds the number of
// symbols per call; concurrency bounds in-flight upstream requests.
func NewQuoteService(
	provider upstream.Provider,
	maxBatch int,
	concurrency int,
	clock calendar.Clock,
	logger *slog.Logger,
) *QuoteService {
	if concurrency < 1 {
		concurrency = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &QuoteService{
		provider:    provider,
		maxBatch:    maxBatch,
		concurrency: concurrency,
		clock:       clock,
		logger:      logger,
	}
}

// MaxBatch returns the configured batch limit.
func (s *QuoteService) MaxBatch() int {
	return s.maxBatch
}

// Validate checks a batch without fetching anything.
func (s *QuoteService) Validate(symbols []string) error {
	if len(symbols) == 0 {
		return &domain.ValidationError{Message: "symbols must be a non-empty array"}
	}
	if len(symbols) > s.maxBatch {
		return &domain.ValidationError{
			Message: fmt.Sprintf("at most %d symbols per request, got %d", s.maxBatch, len(symbols)),
		}
	}
	for _, sym := range symbols {
		if !domain.ValidSymbol(sym) {
			return &domain.ValidationError{
				Message: fmt.Sprintf("invalid symbol %q: must match ^[A-Z0-9&_-]{1,20}$", sym),
			}
		}
	}
	return nil
}

// FetchQuotes validates the batch and fetches every symbol concurrently.
// A failed symbol becomes an error entry; only validation fails the batch.
func (s *QuoteService) FetchQuotes(ctx context.Context, symbols []string) (*BatchResponse, error) {
	if err := s.Validate(symbols); err != nil {
		return nil, err
	}

	now := s.clock()
	marketOpen := calendar.IsMarketOpen(now)

	// Fetch each distinct symbol once. Workers write only their own slot.
	index := make(map[string]int, len(symbols))
	distinct := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if _, seen := index[sym]; !seen {
			index[sym] = len(distinct)
			distinct = append(distinct, sym)
		}
	}
	fetched := make([]domain.QuoteResult, len(distinct))

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.concurrency)
	)
	for i, sym := range distinct {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fetched[i] = s.fetchOne(ctx, sym)
		}(i, sym)
	}
	wg.Wait()

	results := make([]domain.QuoteResult, len(symbols))
	for i, sym := range symbols {
		res := fetched[index[sym]]
		if !marketOpen {
			res = res.WithMarketClosed(true)
		}
		results[i] = res
	}

	return &BatchResponse{
		Results:    results,
		MarketOpen: marketOpen,
		Timestamp:  now,
	}, nil
}

// fetchOne isolates a single symbol's failure from the rest of the batch.
func (s *QuoteService) fetchOne(ctx context.Context, symbol string) (res domain.QuoteResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("upstream provider panicked",
				slog.String("symbol", symbol),
				slog.String("provider", s.provider.Name()),
				slog.Any("panic", r),
			)
			res = domain.ErrResult(symbol, "upstream panic", false)
		}
	}()

	q, err := s.provider.Quote(ctx, symbol)
	if err != nil {
		s.logger.Debug("upstream quote failed",
			slog.String("symbol", symbol),
			slog.String("provider", s.provider.Name()),
			slog.String("error", err.Error()),
		)
		return domain.ErrResult(symbol, err.Error(), false)
	}
	q.Symbol = symbol
	return domain.OkResult(q)
}
