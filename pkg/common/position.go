package common

import (
	"github.com/ykarpov/brokersim/pkg/utility/fixed"
)

// Position is derived state: it is recomputed from the executed trade
// operations of one instrument whenever a trade settles, never stored
// independently.
type Position struct {
	Key            InstrumentKey  `json:"instrument"`
	InstrumentType InstrumentType `json:"instrument_type"`
	QuantityLots   int64          `json:"quantity_lots"`
	Quantity       int64          `json:"quantity"`
	CurrentPrice   fixed.Point    `json:"current_price"`
	// AveragePrice holds the FILO cost basis, AveragePriceFifo the FIFO one.
	AveragePrice     fixed.Point `json:"average_position_price"`
	AveragePriceFifo fixed.Point `json:"average_position_price_fifo"`
	Currency         string      `json:"currency"`
}

// Portfolio is the aggregated valuation answered by the ledger.
type Portfolio struct {
	TotalAmountCurrencies fixed.Point `json:"total_amount_currencies"`
	TotalAmountShares     fixed.Point `json:"total_amount_shares"`
	TotalAmountBonds      fixed.Point `json:"total_amount_bonds"`
	TotalAmountEtf        fixed.Point `json:"total_amount_etf"`
	TotalAmountFutures    fixed.Point `json:"total_amount_futures"`
	// ExpectedYield is the percentage gain over the initial capital.
	ExpectedYield fixed.Point `json:"expected_yield"`
	Positions     []Position  `json:"positions"`
	Currency      string      `json:"currency"`
}
