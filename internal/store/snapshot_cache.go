package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPrefix     = "snapshot:"
	snapshotChannelPrefix = "snapshots."
)

// SnapshotCache keeps the latest snapshot of each polling loop in Redis and
// announces every new one on a pub/sub channel, so processes other than the
// one running the engine can read market state.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache wraps an existing client. A zero ttl keeps keys forever.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

// Ping checks the connection.
func (c *SnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// cachedInstrument is the stored shape of an instrument.
type cachedInstrument struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Kind          string    `json:"kind"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Provenance    string    `json:"provenance"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// cachedSnapshot is the stored shape of a snapshot.
type cachedSnapshot struct {
	Loop        string                         `json:"loop"`
	TickID      string                         `json:"tickId"`
	At          time.Time                      `json:"at"`
	Instruments []cachedInstrument             `json:"instruments"`
	History     map[string][]domain.PricePoint `json:"history"`
	MarketOpen  bool                           `json:"marketOpen"`
	Failed      []string                       `json:"failed"`
}

// Publish stores snap as the loop's latest snapshot and publishes it.
func (c *SnapshotCache) Publish(ctx context.Context, snap *domain.Snapshot) error {
	data, err := json.Marshal(toCached(snap))
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, snapshotKeyPrefix+snap.Loop, data, c.ttl)
	pipe.Publish(ctx, snapshotChannelPrefix+snap.Loop, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish snapshot to redis: %w", err)
	}
	return nil
}

// Latest returns the stored snapshot for loop, or domain.ErrLoopNotFound.
func (c *SnapshotCache) Latest(ctx context.Context, loop string) (*domain.Snapshot, error) {
	data, err := c.client.Get(ctx, snapshotKeyPrefix+loop).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrLoopNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var cs cachedSnapshot
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return fromCached(cs), nil
}

// Watch delivers every snapshot published for loop after the subscription
// is confirmed. The channel is closed once ctx is done or the subscription
// ends; cancel ctx to release it. Undecodable announcements are skipped.
func (c *SnapshotCache) Watch(ctx context.Context, loop string) (<-chan *domain.Snapshot, error) {
	sub := c.client.Subscribe(ctx, snapshotChannelPrefix+loop)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to snapshots: %w", err)
	}

	out := make(chan *domain.Snapshot, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var cs cachedSnapshot
				if err := json.Unmarshal([]byte(msg.Payload), &cs); err != nil {
					continue
				}
				select {
				case out <- fromCached(cs):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the underlying client.
func (c *SnapshotCache) Close() error {
	return c.client.Close()
}

func toCached(s *domain.Snapshot) cachedSnapshot {
	ins := make([]cachedInstrument, len(s.Instruments))
	for i, in := range s.Instruments {
		ins[i] = cachedInstrument{
			Symbol:        in.Symbol,
			Name:          in.Name,
			Kind:          string(in.Kind),
			Price:         in.Price,
			Change:        in.Change,
			ChangePercent: in.ChangePercent,
			Provenance:    string(in.Provenance),
			UpdatedAt:     in.UpdatedAt,
		}
	}
	return cachedSnapshot{
		Loop:        s.Loop,
		TickID:      s.TickID,
		At:          s.At,
		Instruments: ins,
		History:     s.History,
		MarketOpen:  s.MarketOpen,
		Failed:      s.Failed,
	}
}

func fromCached(cs cachedSnapshot) *domain.Snapshot {
	ins := make([]domain.Instrument, len(cs.Instruments))
	for i, in := range cs.Instruments {
		ins[i] = domain.Instrument{
			Symbol:        in.Symbol,
			Name:          in.Name,
			Kind:          domain.InstrumentKind(in.Kind),
			Price:         in.Price,
			Change:        in.Change,
			ChangePercent: in.ChangePercent,
			Provenance:    domain.Provenance(in.Provenance),
			UpdatedAt:     in.UpdatedAt,
		}
	}
	return &domain.Snapshot{
		Loop:        cs.Loop,
		TickID:      cs.TickID,
		At:          cs.At,
		Instruments: ins,
		History:     cs.History,
		MarketOpen:  cs.MarketOpen,
		Failed:      cs.Failed,
	}
}
