package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ykarpov/brokersim/pkg/candles"
	"github.com/ykarpov/brokersim/pkg/common"
	"github.com/ykarpov/brokersim/pkg/instruments"
	"github.com/ykarpov/brokersim/pkg/utility/fixed"
)

var sberKey = common.InstrumentKey{Engine: "stock", Market: "shares", SecID: "SBER"}

// marketFixture serves daily candles from a fixed map of closes and counts
// upstream calls.
type marketFixture struct {
	closes map[time.Time]int64
	calls  int
}

func (f *marketFixture) GetCandles(_ context.Context, _ common.InstrumentKey, _ common.Interval, from, to time.Time) ([]common.Candle, error) {
	f.calls++
	var out []common.Candle
	for day := from.UTC().Truncate(24 * time.Hour); day.Before(to); day = day.AddDate(0, 0, 1) {
		close, ok := f.closes[day]
		if !ok {
			continue
		}
		if day.Before(from) {
			continue
		}
		c := fixed.FromInt64(close, 0)
		out = append(out, common.Candle{
			Open:   c,
			High:   c.Add(fixed.FromInt(2, 0)),
			Low:    c.Sub(fixed.FromInt(2, 0)),
			Close:  c,
			Volume: 10,
			Time:   day,
		})
	}
	return out, nil
}

type instrumentFixture struct{}

func (instrumentFixture) GetInstrument(_ context.Context, key common.InstrumentKey) (common.Instrument, error) {
	return common.Instrument{
		InstrumentKey:  key,
		Name:           "Sberbank",
		Lot:            1,
		Currency:       "rub",
		InstrumentType: common.InstrumentTypeShare,
	}, nil
}

func day(d int) time.Time {
	return time.Date(2022, 4, d, 0, 0, 0, 0, time.UTC)
}

func newTestSession(t *testing.T, market *marketFixture) *Session {
	t.Helper()
	logger := zap.NewNop()
	wall := func() time.Time { return time.Date(2022, 5, 10, 12, 0, 0, 0, time.UTC) }

	store := candles.NewStore(t.TempDir(), logger)
	loader := candles.NewLoader(market, store, logger, candles.WithNow(wall))
	extender := candles.NewLoader(market, store, logger, candles.WithNow(wall), candles.WithoutBoundsTrim())
	instrStore := instruments.NewStore(instrumentFixture{}, t.TempDir(), logger)

	return NewSession(loader, extender, instrStore, logger, WithWallClock(wall))
}

func defaultMarket() *marketFixture {
	return &marketFixture{closes: map[time.Time]int64{
		day(25): 100,
		day(26): 105,
		day(27): 98,
	}}
}

func configureSession(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Configure(Options{
		From:           day(25),
		To:             day(28),
		Interval:       common.IntervalDay,
		InitialCapital: DefaultInitialCapital,
		FeePercent:     DefaultFeePercent,
	}))
}

func TestSessionMarketOrderFillsAtPreviousClose(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, defaultMarket())
	configureSession(t, s)

	ok, now, err := s.Step(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(25).Add(time.Millisecond), now)

	order, err := s.PlaceOrder(ctx, PlaceOrderRequest{
		OrderID:   "buy-1",
		Key:       sberKey,
		Direction: common.OrderDirectionBuy,
		Type:      common.OrderTypeMarket,
		Quantity:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, common.OrderStatusNew, order.Status)
	// reserved at the current close of 100: 200 plus 0.3% commission
	assert.Equal(t, "200.6", order.TotalOrderAmount.String())

	ok, _, err = s.Step(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	filled, err := s.GetOrderState("buy-1")
	require.NoError(t, err)
	assert.Equal(t, common.OrderStatusFilled, filled.Status)
	assert.EqualValues(t, 2, filled.LotsExecuted)
	// the fill prices at the close of the candle before the new instant
	assert.Equal(t, "100", filled.AveragePositionPrice.String())

	ops, err := s.GetOperations("SBER", common.OperationStateExecuted)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, common.OperationTypeBuy, ops[0].Type)
	assert.Equal(t, "-200", ops[0].Payment.String())
	assert.Equal(t, common.OperationTypeBrokerFee, ops[1].Type)
	assert.Equal(t, "-0.6", ops[1].Payment.String())
	assert.Equal(t, "buy-1", ops[1].ParentOperationID)
}

func TestSessionPortfolioRepricesAndYield(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, defaultMarket())
	configureSession(t, s)

	_, _, err := s.Step(ctx)
	require.NoError(t, err)
	_, err = s.PlaceOrder(ctx, PlaceOrderRequest{
		OrderID:   "buy-1",
		Key:       sberKey,
		Direction: common.OrderDirectionBuy,
		Type:      common.OrderTypeMarket,
		Quantity:  2,
	})
	require.NoError(t, err)
	_, _, err = s.Step(ctx)
	require.NoError(t, err)

	portfolio, err := s.GetPortfolio(ctx)
	require.NoError(t, err)
	require.Len(t, portfolio.Positions, 1)

	pos := portfolio.Positions[0]
	assert.EqualValues(t, 2, pos.QuantityLots)
	// repriced at the current candle close of 105
	assert.Equal(t, "105", pos.CurrentPrice.String())
	assert.Equal(t, "100", pos.AveragePrice.String())
	assert.Equal(t, "210", portfolio.TotalAmountShares.String())
	// cash 50000 - 200.6, shares 210
	assert.Equal(t, "49799.4", portfolio.TotalAmountCurrencies.String())

	// value 50009.4 over initial 50000 is a 0.0188% gain
	yield, ok := portfolio.ExpectedYield.Float64()
	require.True(t, ok)
	assert.InDelta(t, 0.0188, yield, 1e-9)
}

func TestSessionLimitOrderTriggersInsideRange(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, defaultMarket())
	configureSession(t, s)

	_, _, err := s.Step(ctx)
	require.NoError(t, err)

	// candle of the 25th spans [98, 102]: 99 triggers, 90 rests
	_, err = s.PlaceOrder(ctx, PlaceOrderRequest{
		OrderID:   "lim-in",
		Key:       sberKey,
		Direction: common.OrderDirectionBuy,
		Type:      common.OrderTypeLimit,
		Quantity:  1,
		Price:     fixed.FromInt(99, 0),
	})
	require.NoError(t, err)
	_, err = s.PlaceOrder(ctx, PlaceOrderRequest{
		OrderID:   "lim-out",
		Key:       sberKey,
		Direction: common.OrderDirectionBuy,
		Type:      common.OrderTypeLimit,
		Quantity:  1,
		Price:     fixed.FromInt(90, 0),
	})
	require.NoError(t, err)

	_, _, err = s.Step(ctx)
	require.NoError(t, err)

	in, err := s.GetOrderState("lim-in")
	require.NoError(t, err)
	assert.Equal(t, common.OrderStatusFilled, in.Status)
	assert.Equal(t, "99", in.AveragePositionPrice.String())

	out, err := s.GetOrderState("lim-out")
	require.NoError(t, err)
	assert.Equal(t, common.OrderStatusNew, out.Status)

	resting, err := s.GetOrders()
	require.NoError(t, err)
	require.Len(t, resting, 1)
	assert.Equal(t, "lim-out", resting[0].OrderID)
}

func TestSessionPlaceOrderIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, defaultMarket())
	configureSession(t, s)

	_, _, err := s.Step(ctx)
	require.NoError(t, err)

	req := PlaceOrderRequest{
		OrderID:   "dup-1",
		Key:       sberKey,
		Direction: common.OrderDirectionBuy,
		Type:      common.OrderTypeMarket,
		Quantity:  1,
	}
	first, err := s.PlaceOrder(ctx, req)
	require.NoError(t, err)
	second, err := s.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	resting, err := s.GetOrders()
	require.NoError(t, err)
	assert.Len(t, resting, 1)

	// the replay must not have blocked money twice
	assert.Equal(t, "100.3", s.ledger.BlockedMoney().String())
}

func TestSessionSellRejectedWithoutHoldings(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, defaultMarket())
	configureSession(t, s)

	_, _, err := s.Step(ctx)
	require.NoError(t, err)

	_, err = s.PlaceOrder(ctx, PlaceOrderRequest{
		OrderID:   "sell-1",
		Key:       sberKey,
		Direction: common.OrderDirectionSell,
		Type:      common.OrderTypeMarket,
		Quantity:  1,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrecondition))
}

func TestSessionBuyThenSellRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, defaultMarket())
	configureSession(t, s)

	_, _, err := s.Step(ctx)
	require.NoError(t, err)
	_, err = s.PlaceOrder(ctx, PlaceOrderRequest{
		OrderID:   "buy-1",
		Key:       sberKey,
		Direction: common.OrderDirectionBuy,
		Type:      common.OrderTypeMarket,
		Quantity:  1,
	})
	require.NoError(t, err)

	_, _, err = s.Step(ctx)
	require.NoError(t, err)
	_, err = s.PlaceOrder(ctx, PlaceOrderRequest{
		OrderID:   "sell-1",
		Key:       sberKey,
		Direction: common.OrderDirectionSell,
		Type:      common.OrderTypeMarket,
		Quantity:  1,
	})
	require.NoError(t, err)

	_, _, err = s.Step(ctx)
	require.NoError(t, err)

	sold, err := s.GetOrderState("sell-1")
	require.NoError(t, err)
	assert.Equal(t, common.OrderStatusFilled, sold.Status)
	// sold at the close of the 26th
	assert.Equal(t, "105", sold.AveragePositionPrice.String())

	// bought 1 @ 100 (+0.3 fee), sold 1 @ 105 (-0.315 fee)
	assert.Equal(t, "50004.385", s.ledger.FreeMoney().String())
	assert.True(t, s.ledger.BlockedMoney().IsZero())
	assert.Zero(t, s.ledger.FreeLots(sberKey))
	assert.Zero(t, s.ledger.BlockedLots(sberKey))

	portfolio, err := s.GetPortfolio(ctx)
	require.NoError(t, err)
	require.Len(t, portfolio.Positions, 1)
	assert.Zero(t, portfolio.Positions[0].QuantityLots)
}

func TestSessionGetCandlesBoundariesAndReuse(t *testing.T) {
	ctx := context.Background()
	market := defaultMarket()
	s := newTestSession(t, market)
	configureSession(t, s)

	_, _, err := s.Step(ctx)
	require.NoError(t, err)

	got, err := s.GetCandles(ctx, sberKey, common.IntervalDay, day(25), day(27))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(25), got[0].Time)
	assert.Equal(t, day(26), got[1].Time)

	calls := market.calls

	// a narrower request is served from the kept range without a refetch
	got, err = s.GetCandles(ctx, sberKey, common.IntervalDay, day(26), day(27))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, day(26), got[0].Time)
	assert.Equal(t, calls, market.calls)
}

func TestSessionGetCandlesBeforeFirstStep(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, defaultMarket())
	configureSession(t, s)

	_, err := s.GetCandles(ctx, sberKey, common.IntervalDay, day(25), day(27))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrecondition))
}

func TestSessionGetCandlesRejectsForeignInterval(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, defaultMarket())
	configureSession(t, s)

	_, _, err := s.Step(ctx)
	require.NoError(t, err)

	_, err = s.GetCandles(ctx, sberKey, common.IntervalHour, day(25), day(27))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrecondition))
}

func TestSessionConfigureResetsState(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, defaultMarket())
	configureSession(t, s)

	_, _, err := s.Step(ctx)
	require.NoError(t, err)
	_, err = s.PlaceOrder(ctx, PlaceOrderRequest{
		OrderID:   "buy-1",
		Key:       sberKey,
		Direction: common.OrderDirectionBuy,
		Type:      common.OrderTypeMarket,
		Quantity:  1,
	})
	require.NoError(t, err)

	configureSession(t, s)

	resting, err := s.GetOrders()
	require.NoError(t, err)
	assert.Empty(t, resting)
	assert.Equal(t, "50000", s.ledger.FreeMoney().String())

	_, err = s.Now()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrecondition))
}

func TestSessionStepExhaustsWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, defaultMarket())
	configureSession(t, s)

	steps := 0
	for {
		ok, _, err := s.Step(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		steps++
	}
	assert.Equal(t, 3, steps)
}

func TestSessionLatestForSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, defaultMarket())
	configureSession(t, s)

	_, _, err := s.Step(ctx)
	require.NoError(t, err)
	_, _, err = s.Step(ctx)
	require.NoError(t, err)

	snap, err := s.LatestFor(ctx, Subscriptions{
		Candles:    []common.InstrumentKey{sberKey},
		LastPrices: []common.InstrumentKey{sberKey},
		OrderBooks: []OrderBookSubscription{{Key: sberKey, Depth: 10}},
	})
	require.NoError(t, err)

	require.Len(t, snap.Candles, 1)
	assert.Equal(t, common.IntervalDay, snap.Candles[0].Interval)
	assert.Equal(t, "105", snap.Candles[0].Close.String())

	require.Len(t, snap.LastPrices, 1)
	assert.Equal(t, "105", snap.LastPrices[0].Price.String())

	require.Len(t, snap.OrderBooks, 1)
	book := snap.OrderBooks[0]
	assert.Empty(t, book.Bids)
	assert.Empty(t, book.Asks)
	assert.Equal(t, "107", book.LimitUp.String())
	assert.Equal(t, "103", book.LimitDown.String())
	assert.True(t, book.IsConsistent)
}

func TestSessionRelaxedMoneyStrictness(t *testing.T) {
	ctx := context.Background()
	market := defaultMarket()
	logger := zap.NewNop()
	wall := func() time.Time { return time.Date(2022, 5, 10, 12, 0, 0, 0, time.UTC) }
	store := candles.NewStore(t.TempDir(), logger)
	loader := candles.NewLoader(market, store, logger, candles.WithNow(wall))
	extender := candles.NewLoader(market, store, logger, candles.WithNow(wall), candles.WithoutBoundsTrim())
	instrStore := instruments.NewStore(instrumentFixture{}, t.TempDir(), logger)
	s := NewSession(loader, extender, instrStore, logger,
		WithWallClock(wall), WithStrictness(false, true))

	require.NoError(t, s.Configure(Options{
		From:           day(25),
		To:             day(28),
		Interval:       common.IntervalDay,
		InitialCapital: fixed.FromInt(100, 0),
		FeePercent:     DefaultFeePercent,
	}))

	_, _, err := s.Step(ctx)
	require.NoError(t, err)

	// 2 lots at 100 cost more than the 100 of capital, allowed when the
	// money check is off
	_, err = s.PlaceOrder(ctx, PlaceOrderRequest{
		OrderID:   "big-1",
		Key:       sberKey,
		Direction: common.OrderDirectionBuy,
		Type:      common.OrderTypeMarket,
		Quantity:  2,
	})
	require.NoError(t, err)
	assert.True(t, s.ledger.FreeMoney().IsNeg())
}
