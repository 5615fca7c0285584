package broker

import (
	"github.com/ykarpov/brokersim/pkg/common"
	"github.com/ykarpov/brokersim/pkg/utility/fixed"
)

type securityBalance struct {
	free    int64
	blocked int64
}

// Ledger is the double-bucket accounting core of a session. Cash and each
// instrument's lots live in a (free, blocked) pair; placing an order moves
// value from free to blocked, execution settles the blocked side. All
// mutations are signed deltas so the conservation property is structural.
//
// Strictness flags decide whether a delta that would take a bucket negative
// is rejected. Both default to on; they exist so a session can reproduce
// historical runs that tolerated margin-like dips.
type Ledger struct {
	currency       string
	strictMoney    bool
	strictQuantity bool

	moneyFree    fixed.Point
	moneyBlocked fixed.Point
	securities   map[common.InstrumentKey]*securityBalance
}

func NewLedger(currency string, strictMoney, strictQuantity bool) *Ledger {
	return &Ledger{
		currency:       currency,
		strictMoney:    strictMoney,
		strictQuantity: strictQuantity,
		moneyFree:      fixed.Zero,
		moneyBlocked:   fixed.Zero,
		securities:     make(map[common.InstrumentKey]*securityBalance),
	}
}

// Reset wipes every balance and seeds the free cash bucket.
func (l *Ledger) Reset(initialCapital fixed.Point) {
	l.moneyFree = initialCapital
	l.moneyBlocked = fixed.Zero
	l.securities = make(map[common.InstrumentKey]*securityBalance)
}

// AddMoney applies a signed cash delta to the free or blocked bucket.
func (l *Ledger) AddMoney(amount fixed.Point, blocked bool) error {
	target := &l.moneyFree
	bucket := "free"
	if blocked {
		target = &l.moneyBlocked
		bucket = "blocked"
	}
	next := target.Add(amount)
	if l.strictMoney && next.IsNeg() {
		return preconditionf("%s money balance would become negative: %s", bucket, next)
	}
	*target = next
	return nil
}

// BlockMoney moves amount from the free to the blocked cash bucket.
func (l *Ledger) BlockMoney(amount fixed.Point) error {
	if err := l.AddMoney(amount.Neg(), false); err != nil {
		return err
	}
	return l.AddMoney(amount, true)
}

// UnblockMoney releases a reservation back to the free bucket.
func (l *Ledger) UnblockMoney(amount fixed.Point) error {
	if err := l.AddMoney(amount.Neg(), true); err != nil {
		return err
	}
	return l.AddMoney(amount, false)
}

// AddLots applies a signed lot delta for an instrument.
func (l *Ledger) AddLots(key common.InstrumentKey, lots int64, blocked bool) error {
	bal := l.securities[key]
	if bal == nil {
		bal = &securityBalance{}
		l.securities[key] = bal
	}
	target := &bal.free
	bucket := "free"
	if blocked {
		target = &bal.blocked
		bucket = "blocked"
	}
	next := *target + lots
	if l.strictQuantity && next < 0 {
		return preconditionf("%s quantity of %s would become negative: %d", bucket, key.SecID, next)
	}
	*target = next
	return nil
}

// BlockLots moves lots of an instrument from the free to the blocked bucket.
func (l *Ledger) BlockLots(key common.InstrumentKey, lots int64) error {
	if err := l.AddLots(key, -lots, false); err != nil {
		return err
	}
	return l.AddLots(key, lots, true)
}

func (l *Ledger) FreeMoney() fixed.Point {
	return l.moneyFree
}

func (l *Ledger) BlockedMoney() fixed.Point {
	return l.moneyBlocked
}

func (l *Ledger) FreeLots(key common.InstrumentKey) int64 {
	if bal := l.securities[key]; bal != nil {
		return bal.free
	}
	return 0
}

func (l *Ledger) BlockedLots(key common.InstrumentKey) int64 {
	if bal := l.securities[key]; bal != nil {
		return bal.blocked
	}
	return 0
}

func (l *Ledger) Currency() string {
	return l.currency
}
