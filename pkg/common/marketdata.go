package common

import (
	"time"

	"github.com/ykarpov/brokersim/pkg/utility/fixed"
)

// LastPrice is the close of the current candle for one instrument.
type LastPrice struct {
	Key   InstrumentKey `json:"instrument"`
	Price fixed.Point   `json:"price"`
	Time  time.Time     `json:"time"`
}

// OrderBook is a synthetic book derived from the current candle: price
// limits come from the candle's high/low, both sides are empty. The
// simulation has no real depth data.
type OrderBook struct {
	Key          InstrumentKey `json:"instrument"`
	Depth        int32         `json:"depth"`
	Bids         []BookEntry   `json:"bids"`
	Asks         []BookEntry   `json:"asks"`
	LimitUp      fixed.Point   `json:"limit_up"`
	LimitDown    fixed.Point   `json:"limit_down"`
	Time         time.Time     `json:"time"`
	IsConsistent bool          `json:"is_consistent"`
}

type BookEntry struct {
	Price    fixed.Point `json:"price"`
	Quantity int64       `json:"quantity"`
}

// StreamCandle is a candle tagged with its instrument and interval, as
// delivered by the market-data push surface.
type StreamCandle struct {
	Key      InstrumentKey `json:"instrument"`
	Interval Interval      `json:"interval"`
	Candle
}
