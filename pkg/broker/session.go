package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ykarpov/brokersim/pkg/candles"
	"github.com/ykarpov/brokersim/pkg/common"
	"github.com/ykarpov/brokersim/pkg/instruments"
	"github.com/ykarpov/brokersim/pkg/telemetry"
	"github.com/ykarpov/brokersim/pkg/utility/fixed"
)

// Session defaults, applied by the transport layer when a configure request
// leaves the field out.
var (
	DefaultInitialCapital = fixed.FromInt(50000, 0)
	DefaultFeePercent     = fixed.FromInt64(3, 1)
)

const DefaultCurrency = "rub"

// Options is the per-run configuration of a session. FeePercent is the
// broker commission as a percentage of the deal amount.
type Options struct {
	From           time.Time
	To             time.Time
	Interval       common.Interval
	InitialCapital fixed.Point
	FeePercent     fixed.Point
}

// PlaceOrderRequest describes one order. OrderID is the idempotency key;
// when empty the session assigns one. Price is required for limit orders
// and ignored for market orders.
type PlaceOrderRequest struct {
	OrderID   string
	Key       common.InstrumentKey
	Direction common.OrderDirection
	Type      common.OrderType
	Quantity  int64
	Price     fixed.Point
}

// Session is one backtest run: a virtual clock, the order book, the
// operation log and the balances, evolving only through explicit calls.
// All public methods are safe for concurrent use; a single mutex serializes
// them so that matching, settlement and reads observe consistent state.
type Session struct {
	logger      *zap.Logger
	loader      *candles.Loader
	extender    *candles.Loader
	instruments *instruments.Store

	strictMoney    bool
	strictQuantity bool
	clockNow       func() time.Time

	mu         sync.Mutex
	clock      *Clock
	ledger     *Ledger
	opts       Options
	configured bool

	orders       []*common.Order
	operations   []common.Operation
	positions    []common.Position
	candleSets   map[common.InstrumentKey][]common.Candle
	candleRanges map[common.InstrumentKey]candles.Range
}

type SessionOption func(*Session)

// WithStrictness controls whether cash and quantity balances may go
// negative. Both checks are enforced unless switched off here.
func WithStrictness(money, quantity bool) SessionOption {
	return func(s *Session) {
		s.strictMoney = money
		s.strictQuantity = quantity
	}
}

// WithWallClock overrides the wall-clock source used to validate that a
// backtest window lies in the past. Intended for tests.
func WithWallClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.clockNow = now
	}
}

// NewSession wires a session from its collaborators. The loader must trim
// candles to the requested bounds; the extender must be built with
// candles.WithoutBoundsTrim so incremental range extension keeps whole
// buckets around.
func NewSession(loader, extender *candles.Loader, store *instruments.Store, logger *zap.Logger, options ...SessionOption) *Session {
	s := &Session{
		logger:         logger,
		loader:         loader,
		extender:       extender,
		instruments:    store,
		strictMoney:    true,
		strictQuantity: true,
		clockNow:       time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Configure resets the session to a fresh run over the given window. All
// orders, operations, positions and balances from a previous run are
// discarded.
func (s *Session) Configure(opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.InitialCapital.IsNeg() || opts.InitialCapital.IsZero() {
		return preconditionf("configure: initial capital must be positive")
	}
	if opts.FeePercent.IsNeg() {
		return preconditionf("configure: fee percent must not be negative")
	}

	clock := NewClock()
	clock.now = s.clockNow
	if err := clock.Configure(opts.From, opts.To, opts.Interval); err != nil {
		return err
	}

	s.clock = clock
	s.opts = opts
	s.ledger = NewLedger(DefaultCurrency, s.strictMoney, s.strictQuantity)
	s.ledger.Reset(opts.InitialCapital)
	s.orders = nil
	s.operations = nil
	s.positions = nil
	s.candleSets = make(map[common.InstrumentKey][]common.Candle)
	s.candleRanges = make(map[common.InstrumentKey]candles.Range)
	s.configured = true

	s.logger.Info("session configured",
		zap.Time("from", opts.From),
		zap.Time("to", opts.To),
		zap.String("interval", string(opts.Interval)),
		zap.String("initial_capital", opts.InitialCapital.String()),
		zap.String("fee_percent", opts.FeePercent.String()))
	return nil
}

// Step advances the clock by one interval and runs the matching pass over
// all resting orders at the new instant. It reports false once the window
// is exhausted.
func (s *Session) Step(ctx context.Context) (bool, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return false, time.Time{}, preconditionf("step: session is not configured")
	}
	ok, err := s.clock.Step()
	if err != nil || !ok {
		return false, time.Time{}, err
	}
	telemetry.ClockSteps.Inc()

	now, _ := s.clock.Now()
	if err := s.matchOrders(ctx); err != nil {
		return false, time.Time{}, err
	}
	return true, now, nil
}

// Now returns the current simulated instant.
func (s *Session) Now() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return time.Time{}, preconditionf("now: session is not configured")
	}
	return s.clock.Now()
}

// GetCandles returns historical candles in [from, to) for one instrument.
// The session keeps one contiguous in-memory range per instrument and
// extends it lazily, so repeated and overlapping requests do not refetch.
func (s *Session) GetCandles(ctx context.Context, key common.InstrumentKey, interval common.Interval, from, to time.Time) ([]common.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return nil, preconditionf("get candles: session is not configured")
	}
	if !s.clock.Ticked() {
		return nil, preconditionf("get candles: clock has not been stepped")
	}
	if interval != s.opts.Interval {
		return nil, preconditionf("get candles: interval %q does not match the configured %q", interval, s.opts.Interval)
	}
	if from.IsZero() || to.IsZero() {
		return nil, preconditionf("get candles: from and to must be set")
	}

	requested := candles.Range{From: from, To: to}
	loaded, haveLoaded := s.candleRanges[key]
	if !haveLoaded || !loaded.Contains(requested) {
		target := requested
		if haveLoaded {
			target = unionRange(loaded, requested)
		}
		res, err := s.extender.Load(ctx, candles.Params{
			Key:      key,
			Interval: interval,
			From:     target.From,
			To:       target.To,
		})
		if err != nil {
			return nil, err
		}
		s.candleSets[key] = res.Candles
		s.candleRanges[key] = res.Loaded
	}

	set := s.candleSets[key]
	out := make([]common.Candle, 0, len(set))
	for _, c := range set {
		if !c.Time.Before(from) && c.Time.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetLastPrices returns the close of the current candle for each instrument.
func (s *Session) GetLastPrices(ctx context.Context, keys []common.InstrumentKey) ([]common.LastPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return nil, preconditionf("get last prices: session is not configured")
	}
	out := make([]common.LastPrice, 0, len(keys))
	for _, key := range keys {
		candle, err := s.candleAt(ctx, key, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, common.LastPrice{Key: key, Price: candle.Close, Time: candle.Time})
	}
	return out, nil
}

// GetInstrument resolves instrument metadata through the cached store.
func (s *Session) GetInstrument(ctx context.Context, req instruments.Request) (common.Instrument, error) {
	return s.instruments.Get(ctx, req)
}

// PlaceOrder registers an order and blocks the corresponding balance. A
// request replaying an already-known OrderID returns the stored order
// without any side effect. Market orders are priced at the close of the
// current candle for reservation purposes.
func (s *Session) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (common.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return common.Order{}, preconditionf("place order: session is not configured")
	}
	if req.Quantity <= 0 {
		return common.Order{}, preconditionf("place order: quantity must be positive, got %d", req.Quantity)
	}
	if req.Type == common.OrderTypeLimit && (req.Price.IsZero() || req.Price.IsNeg()) {
		return common.Order{}, preconditionf("place order: a limit order needs a positive price")
	}

	if req.OrderID != "" {
		if existing := s.findOrder(req.OrderID); existing != nil {
			return *existing, nil
		}
	}

	now, err := s.clock.Now()
	if err != nil {
		return common.Order{}, err
	}

	price := req.Price
	if req.Type == common.OrderTypeMarket {
		candle, err := s.candleAt(ctx, req.Key, 0)
		if err != nil {
			return common.Order{}, err
		}
		price = candle.Close
	}

	orderPrice := price.MulInt64(req.Quantity)
	commission := orderPrice.Mul(s.opts.FeePercent).Div(fixed.Hundred)
	total := orderPrice.Add(commission)

	if req.Direction == common.OrderDirectionBuy {
		if err := s.ledger.BlockMoney(total); err != nil {
			return common.Order{}, err
		}
	} else {
		if err := s.ledger.BlockLots(req.Key, req.Quantity); err != nil {
			return common.Order{}, err
		}
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}
	order := &common.Order{
		OrderID:              orderID,
		Key:                  req.Key,
		Direction:            req.Direction,
		Type:                 req.Type,
		Status:               common.OrderStatusNew,
		LotsRequested:        req.Quantity,
		InitialSecurityPrice: price,
		InitialOrderPrice:    orderPrice,
		InitialCommission:    commission,
		TotalOrderAmount:     total,
		Currency:             s.ledger.Currency(),
		OrderDate:            now,
	}
	s.orders = append(s.orders, order)
	telemetry.OrdersPlaced.Inc()

	s.logger.Info("order placed",
		append(req.Key.Fields(),
			zap.String("order_id", orderID),
			zap.String("direction", req.Direction.String()),
			zap.Int64("quantity", req.Quantity),
			zap.String("price", price.String()))...)
	return *order, nil
}

// GetOrders returns the resting orders.
func (s *Session) GetOrders() ([]common.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return nil, preconditionf("get orders: session is not configured")
	}
	out := make([]common.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if order.Status == common.OrderStatusNew {
			out = append(out, *order)
		}
	}
	return out, nil
}

// GetOrderState returns an order, resting or filled, by its id.
func (s *Session) GetOrderState(orderID string) (common.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order := s.findOrder(orderID); order != nil {
		return *order, nil
	}
	return common.Order{}, preconditionf("get order state: unknown order %q", orderID)
}

// GetOperations returns the ledger entries for one security filtered by
// state, oldest first.
func (s *Session) GetOperations(secID string, state common.OperationState) ([]common.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return nil, preconditionf("get operations: session is not configured")
	}
	var out []common.Operation
	for _, op := range s.operations {
		if op.Key.SecID == secID && op.State == state {
			out = append(out, op)
		}
	}
	return out, nil
}

// GetPortfolio reprices every position at the current candle close and
// aggregates totals per instrument class. The expected yield is the
// percentage gain of the portfolio value over the initial capital.
func (s *Session) GetPortfolio(ctx context.Context) (common.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return common.Portfolio{}, preconditionf("get portfolio: session is not configured")
	}

	totals := map[common.InstrumentType]fixed.Point{}
	positions := make([]common.Position, len(s.positions))
	for i, pos := range s.positions {
		candle, err := s.candleAt(ctx, pos.Key, 0)
		if err != nil {
			return common.Portfolio{}, err
		}
		pos.CurrentPrice = candle.Close
		s.positions[i].CurrentPrice = candle.Close
		positions[i] = pos
		totals[pos.InstrumentType] = totals[pos.InstrumentType].Add(candle.Close.MulInt64(pos.Quantity))
	}

	portfolio := common.Portfolio{
		TotalAmountCurrencies: s.ledger.FreeMoney(),
		TotalAmountShares:     totals[common.InstrumentTypeShare],
		TotalAmountBonds:      totals[common.InstrumentTypeBond],
		TotalAmountEtf:        totals[common.InstrumentTypeEtf],
		TotalAmountFutures:    totals[common.InstrumentTypeFuture],
		Positions:             positions,
		Currency:              s.ledger.Currency(),
	}

	current := portfolio.TotalAmountCurrencies.
		Add(portfolio.TotalAmountShares).
		Add(portfolio.TotalAmountBonds).
		Add(portfolio.TotalAmountEtf).
		Add(portfolio.TotalAmountFutures)
	if !s.opts.InitialCapital.IsZero() {
		portfolio.ExpectedYield = current.Sub(s.opts.InitialCapital).
			Div(s.opts.InitialCapital).
			Mul(fixed.Hundred)
	}
	return portfolio, nil
}

// matchOrders runs one matching pass: every resting order is tested against
// the previous candle of its instrument and filled when it triggers.
func (s *Session) matchOrders(ctx context.Context) error {
	for _, order := range s.orders {
		if order.Status != common.OrderStatusNew {
			continue
		}
		prev, err := s.candleAt(ctx, order.Key, -1)
		if err != nil {
			return err
		}
		price, ok := triggerPrice(order, prev)
		if !ok {
			continue
		}
		if err := s.executeOrder(ctx, order, price); err != nil {
			return err
		}
	}
	return nil
}

// triggerPrice decides whether an order fills against a candle and at what
// price. A market order always fills at the close; a limit order fills at
// its limit price when that price lies within the candle's range.
func triggerPrice(order *common.Order, candle common.Candle) (fixed.Point, bool) {
	if order.Type == common.OrderTypeMarket {
		return candle.Close, true
	}
	limit := order.InitialSecurityPrice
	if limit.Gte(candle.Low) && limit.Lte(candle.High) {
		return limit, true
	}
	return fixed.Zero, false
}

// executeOrder settles a triggered order: the reservation made at placement
// is released in full and the executed amount is charged, so blocked and
// free buckets reconcile exactly even when the fill price differs from the
// reservation price. It then appends the trade and commission operations
// and rebuilds the instrument's position.
func (s *Session) executeOrder(ctx context.Context, order *common.Order, price fixed.Point) error {
	instrument, err := s.instruments.Get(ctx, instruments.Request{Key: order.Key})
	if err != nil {
		return preconditionf("execute order %s: no instrument data: %v", order.OrderID, err)
	}
	now, err := s.clock.Now()
	if err != nil {
		return err
	}

	lots := order.LotsRequested
	executedPrice := price.MulInt64(lots)
	commission := executedPrice.Mul(s.opts.FeePercent).Div(fixed.Hundred)
	executedTotal := executedPrice.Add(commission)
	reserved := order.InitialOrderPrice.Add(order.InitialCommission)

	if order.Direction == common.OrderDirectionBuy {
		if err := s.ledger.UnblockMoney(reserved); err != nil {
			return err
		}
		if err := s.ledger.AddMoney(executedTotal.Neg(), false); err != nil {
			return err
		}
		if err := s.ledger.AddLots(order.Key, lots, false); err != nil {
			return err
		}
	} else {
		if err := s.ledger.AddLots(order.Key, -lots, true); err != nil {
			return err
		}
		if err := s.ledger.AddMoney(executedPrice.Sub(commission), false); err != nil {
			return err
		}
	}

	order.Status = common.OrderStatusFilled
	order.LotsExecuted = lots
	order.ExecutedOrderPrice = executedPrice
	order.ExecutedCommission = commission
	order.TotalOrderAmount = executedTotal
	order.AveragePositionPrice = price

	payment := executedPrice
	opType := common.OperationTypeSell
	if order.Direction == common.OrderDirectionBuy {
		payment = executedPrice.Neg()
		opType = common.OperationTypeBuy
	}
	trade := common.Operation{
		ID:             order.OrderID,
		Key:            order.Key,
		InstrumentType: instrument.InstrumentType,
		Type:           opType,
		State:          common.OperationStateExecuted,
		Payment:        payment,
		Price:          price,
		Quantity:       lots,
		Currency:       order.Currency,
		Date:           now,
	}
	fee := common.Operation{
		ID:                order.OrderID + "_fee",
		ParentOperationID: order.OrderID,
		Key:               order.Key,
		InstrumentType:    instrument.InstrumentType,
		Type:              common.OperationTypeBrokerFee,
		State:             common.OperationStateExecuted,
		Payment:           commission.Neg(),
		Price:             fixed.Zero,
		Currency:          order.Currency,
		Date:              now,
	}
	s.operations = append(s.operations, trade, fee)

	s.replacePosition(buildPosition(instrument, s.operationsFor(order.Key), price, order.Currency))
	telemetry.OrderFills.Inc()

	s.logger.Info("order executed",
		append(order.Key.Fields(),
			zap.String("order_id", order.OrderID),
			zap.String("direction", order.Direction.String()),
			zap.Int64("lots", lots),
			zap.String("price", price.String()),
			zap.String("commission", commission.String()))...)
	return nil
}

// candleAt resolves the candle at a non-positive offset from the current
// instant: 0 is the candle the instant falls into, -1 the one before it.
func (s *Session) candleAt(ctx context.Context, key common.InstrumentKey, offset int) (common.Candle, error) {
	now, err := s.clock.Now()
	if err != nil {
		return common.Candle{}, err
	}
	minCount := 1 - offset
	res, err := s.loader.Load(ctx, candles.Params{
		Key:      key,
		Interval: s.opts.Interval,
		To:       now,
		MinCount: minCount,
	})
	if err != nil {
		return common.Candle{}, err
	}
	if len(res.Candles) == 0 {
		return common.Candle{}, preconditionf("no candle for %s at %s", key.SecID, now)
	}
	idx := len(res.Candles) - minCount
	if idx < 0 {
		idx = 0
	}
	return res.Candles[idx], nil
}

func (s *Session) operationsFor(key common.InstrumentKey) []common.Operation {
	var out []common.Operation
	for _, op := range s.operations {
		if op.Key == key && op.State == common.OperationStateExecuted {
			out = append(out, op)
		}
	}
	return out
}

func (s *Session) replacePosition(pos common.Position) {
	for i := range s.positions {
		if s.positions[i].Key == pos.Key {
			s.positions[i] = pos
			return
		}
	}
	s.positions = append(s.positions, pos)
}

func (s *Session) findOrder(orderID string) *common.Order {
	for _, order := range s.orders {
		if order.OrderID == orderID {
			return order
		}
	}
	return nil
}

func unionRange(a, b candles.Range) candles.Range {
	out := a
	if b.From.Before(out.From) {
		out.From = b.From
	}
	if b.To.After(out.To) {
		out.To = b.To
	}
	return out
}
