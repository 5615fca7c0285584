// Package candles implements the chunked historical candle loader with
// persistent, calendar-bucketed disk caching.
package candles

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ykarpov/brokersim/pkg/common"
	"github.com/ykarpov/brokersim/pkg/telemetry"
)

// ErrMissingBounds is returned when a request has neither a lower bound nor
// a minimum candle count: the bucket walk would have no way to terminate.
var ErrMissingBounds = errors.New("either from or min count must be set")

// Source is the upstream market-data collaborator: for one instrument and
// window it returns candles strictly within [from, to).
type Source interface {
	GetCandles(ctx context.Context, key common.InstrumentKey, interval common.Interval, from, to time.Time) ([]common.Candle, error)
}

// Params describes one load request. To is required; exactly one of From or
// MinCount must additionally be set to bound the walk.
type Params struct {
	Key      common.InstrumentKey
	Interval common.Interval
	From     time.Time
	To       time.Time
	MinCount int
}

// Range is a half-open [From, To) window of instants.
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether the other range is fully inside this one.
func (r Range) Contains(other Range) bool {
	return !other.From.Before(r.From) && !other.To.After(r.To)
}

// Result carries the candles and the full window the walk actually covered,
// which may be wider than what was requested.
type Result struct {
	Candles []common.Candle
	Loaded  Range
}

// Loader produces the ordered candle sequence covering a requested window,
// walking cache buckets from the most recent one backwards and fetching
// missing buckets upstream.
type Loader struct {
	source Source
	store  *Store
	logger *zap.Logger

	trimBounds bool
	now        func() time.Time
}

type LoaderOption func(*Loader)

// WithoutBoundsTrim disables the from/to trimming of the result, so the
// caller receives everything the bucket walk loaded. Used by the session's
// range-extension path, which keeps the surplus and filters itself.
func WithoutBoundsTrim() LoaderOption {
	return func(l *Loader) { l.trimBounds = false }
}

// WithNow overrides the wall-clock source used for the "today" check.
func WithNow(now func() time.Time) LoaderOption {
	return func(l *Loader) { l.now = now }
}

func NewLoader(source Source, store *Store, logger *zap.Logger, options ...LoaderOption) *Loader {
	l := &Loader{
		source:     source,
		store:      store,
		logger:     logger,
		trimBounds: true,
		now:        time.Now,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Load runs the bucket walk for one request.
func (l *Loader) Load(ctx context.Context, p Params) (Result, error) {
	it := newBucketIterator(p.Interval, p.To)

	// Today's bucket is still open: it must be fetched fresh every time and
	// is never written to cache, so an incomplete bucket can't stick.
	useCache := !it.needsToday(l.now())

	candles, err := l.loadChunk(ctx, p, it, useCache)
	if err != nil {
		return Result{}, err
	}

	if l.trimBounds {
		candles = filterBefore(candles, p.To)
	}

	for {
		more, err := l.shouldLoadMore(candles, p, it)
		if err != nil {
			return Result{}, err
		}
		if !more {
			break
		}
		it.next()
		chunk, err := l.loadChunk(ctx, p, it, true)
		if err != nil {
			return Result{}, err
		}
		candles = append(chunk, candles...)
	}

	if l.trimBounds && !p.From.IsZero() {
		candles = filterFrom(candles, p.From)
	}

	l.logger.Debug("candle load finished",
		zap.String("sec_id", p.Key.SecID),
		zap.Int("count", len(candles)))
	return Result{Candles: candles, Loaded: it.totalRange()}, nil
}

func (l *Loader) loadChunk(ctx context.Context, p Params, it *bucketIterator, useCache bool) ([]common.Candle, error) {
	if useCache {
		if candles, ok := l.store.Load(p.Key, p.Interval, it.bucketName()); ok {
			return candles, nil
		}
		telemetry.CandleCacheMisses.Inc()
	}

	from, to := it.chunkRange()
	candles, err := l.source.GetCandles(ctx, p.Key, p.Interval, from, to)
	if err != nil {
		return nil, err
	}
	telemetry.UpstreamFetches.Inc()

	if useCache {
		if err := l.store.Save(p.Key, p.Interval, it.bucketName(), candles); err != nil {
			l.logger.Warn("unable to persist cache bucket", zap.Error(err))
		}
	}
	return candles, nil
}

func (l *Loader) shouldLoadMore(candles []common.Candle, p Params, it *bucketIterator) (bool, error) {
	if p.MinCount > 0 {
		return len(candles) < p.MinCount, nil
	}
	if !p.From.IsZero() {
		return it.current.After(p.From), nil
	}
	return false, ErrMissingBounds
}

func filterBefore(candles []common.Candle, to time.Time) []common.Candle {
	out := candles[:0]
	for _, candle := range candles {
		if candle.Time.Before(to) {
			out = append(out, candle)
		}
	}
	return out
}

func filterFrom(candles []common.Candle, from time.Time) []common.Candle {
	out := make([]common.Candle, 0, len(candles))
	for _, candle := range candles {
		if !candle.Time.Before(from) {
			out = append(out, candle)
		}
	}
	return out
}
