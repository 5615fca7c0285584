package broker

import (
	"context"

	"github.com/ykarpov/brokersim/pkg/common"
)

// Subscriptions names the market-data views a consumer wants refreshed on
// every clock step.
type Subscriptions struct {
	Candles    []common.InstrumentKey  `json:"candles,omitempty"`
	LastPrices []common.InstrumentKey  `json:"last_prices,omitempty"`
	OrderBooks []OrderBookSubscription `json:"order_books,omitempty"`
}

type OrderBookSubscription struct {
	Key   common.InstrumentKey `json:"instrument"`
	Depth int32                `json:"depth"`
}

func (s Subscriptions) Empty() bool {
	return len(s.Candles) == 0 && len(s.LastPrices) == 0 && len(s.OrderBooks) == 0
}

// Snapshot is the market data for one simulated instant.
type Snapshot struct {
	Candles    []common.StreamCandle `json:"candles,omitempty"`
	LastPrices []common.LastPrice    `json:"last_prices,omitempty"`
	OrderBooks []common.OrderBook    `json:"order_books,omitempty"`
}

// LatestFor resolves every subscription against the current candle of its
// instrument. Consumers poll it after each step; the transport layer uses
// it to push over websockets. Order books are synthetic: the simulation has
// no depth data, so both sides are empty and the candle's high/low stand in
// for the price limits.
func (s *Session) LatestFor(ctx context.Context, subs Subscriptions) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return Snapshot{}, preconditionf("latest for: session is not configured")
	}

	var snap Snapshot
	for _, key := range subs.Candles {
		candle, err := s.candleAt(ctx, key, 0)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Candles = append(snap.Candles, common.StreamCandle{
			Key:      key,
			Interval: s.opts.Interval,
			Candle:   candle,
		})
	}
	for _, key := range subs.LastPrices {
		candle, err := s.candleAt(ctx, key, 0)
		if err != nil {
			return Snapshot{}, err
		}
		snap.LastPrices = append(snap.LastPrices, common.LastPrice{
			Key:   key,
			Price: candle.Close,
			Time:  candle.Time,
		})
	}
	for _, sub := range subs.OrderBooks {
		candle, err := s.candleAt(ctx, sub.Key, 0)
		if err != nil {
			return Snapshot{}, err
		}
		snap.OrderBooks = append(snap.OrderBooks, common.OrderBook{
			Key:          sub.Key,
			Depth:        sub.Depth,
			Bids:         []common.BookEntry{},
			Asks:         []common.BookEntry{},
			LimitUp:      candle.High,
			LimitDown:    candle.Low,
			Time:         candle.Time,
			IsConsistent: true,
		})
	}
	return snap, nil
}
