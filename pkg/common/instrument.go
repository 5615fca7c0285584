package common

import (
	"go.uber.org/zap"
)

// InstrumentKey identifies a security on the exchange: trading engine,
// market and security id.
type InstrumentKey struct {
	Engine string `json:"engine"`
	Market string `json:"market"`
	SecID  string `json:"sec_id"`
}

func (k InstrumentKey) Fields() []zap.Field {
	return []zap.Field{
		zap.String("engine", k.Engine),
		zap.String("market", k.Market),
		zap.String("sec_id", k.SecID),
	}
}

// InstrumentType buckets instruments for portfolio aggregation.
type InstrumentType string

const (
	InstrumentTypeShare    InstrumentType = "share"
	InstrumentTypeBond     InstrumentType = "bond"
	InstrumentTypeEtf      InstrumentType = "etf"
	InstrumentTypeFuture   InstrumentType = "future"
	InstrumentTypeCurrency InstrumentType = "currency"
)

// InstrumentIDType selects how an instrument lookup is keyed.
type InstrumentIDType string

const (
	InstrumentIDTypeSecID InstrumentIDType = "secid"
	InstrumentIDTypeISIN  InstrumentIDType = "isin"
)

// Instrument is the metadata record served by the instrument store.
type Instrument struct {
	InstrumentKey
	ClassCode         string         `json:"class_code,omitempty"`
	Name              string         `json:"name,omitempty"`
	Lot               int64          `json:"lot"`
	Currency          string         `json:"currency"`
	InstrumentType    InstrumentType `json:"instrument_type"`
	BuyAvailableFlag  bool           `json:"buy_available_flag"`
	SellAvailableFlag bool           `json:"sell_available_flag"`
}
