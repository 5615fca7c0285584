package broker

import (
	"github.com/ykarpov/brokersim/pkg/common"
	"github.com/ykarpov/brokersim/pkg/utility/fixed"
)

// buildPosition reconstructs a position for one instrument from its executed
// trade operations. Quantity is the net of buys minus sells; cost basis is
// computed twice, once under FIFO and once under FILO lot consumption, so a
// caller can compare both. The primary average price follows FILO.
func buildPosition(instrument common.Instrument, ops []common.Operation, price fixed.Point, currency string) common.Position {
	trades := make([]common.Operation, 0, len(ops))
	var bought, sold int64
	for _, op := range ops {
		if op.Quantity <= 0 {
			continue
		}
		trades = append(trades, op)
		if op.Type == common.OperationTypeSell {
			sold += op.Quantity
		} else {
			bought += op.Quantity
		}
	}
	netLots := bought - sold

	totalFilo := retainedCost(trades, sold, true)
	totalFifo := retainedCost(trades, sold, false)
	avgFilo, avgFifo := fixed.Zero, fixed.Zero
	if netLots > 0 {
		avgFilo = totalFilo.DivInt64(netLots)
		avgFifo = totalFifo.DivInt64(netLots)
	}

	// Quantity deliberately equals QuantityLots: the lot size is never
	// folded in, trades and balances are all lot-denominated.
	return common.Position{
		Key:              instrument.InstrumentKey,
		InstrumentType:   instrument.InstrumentType,
		QuantityLots:     netLots,
		Quantity:         netLots,
		CurrentPrice:     price,
		AveragePrice:     avgFilo,
		AveragePriceFifo: avgFifo,
		Currency:         currency,
	}
}

// retainedCost sums the cost of buy lots that are still held after soldLots
// have been consumed. FIFO walks buys in chronological order, FILO in
// reverse, so the sold quantity eats from opposite ends of the history. A buy
// that is only partially consumed still contributes its full payment, which
// slightly overstates the basis but keeps the walk free of proration.
func retainedCost(trades []common.Operation, soldLots int64, reverse bool) fixed.Point {
	remaining := soldLots
	total := fixed.Zero
	for i := range trades {
		idx := i
		if reverse {
			idx = len(trades) - 1 - i
		}
		op := trades[idx]
		if op.Type != common.OperationTypeBuy {
			continue
		}
		remaining -= op.Quantity
		if remaining < 0 {
			total = total.Add(op.Payment.Abs())
		}
	}
	return total
}
