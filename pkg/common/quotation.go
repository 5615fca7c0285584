package common

import (
	"github.com/ykarpov/brokersim/pkg/utility/fixed"
)

// Quotation is the split units+nano representation of a price, matching the
// persisted cache format. One unit equals 1e9 nano; both parts carry the sign.
type Quotation struct {
	Units int64 `json:"units"`
	Nano  int32 `json:"nano"`
}

// MoneyValue is a Quotation with a currency attached.
type MoneyValue struct {
	Currency string `json:"currency"`
	Units    int64  `json:"units"`
	Nano     int32  `json:"nano"`
}

func NewQuotation(p fixed.Point) Quotation {
	units, nano := p.UnitsNano()
	return Quotation{Units: units, Nano: nano}
}

func (q Quotation) Point() fixed.Point {
	return fixed.FromUnitsNano(q.Units, q.Nano)
}

func NewMoneyValue(p fixed.Point, currency string) MoneyValue {
	units, nano := p.UnitsNano()
	return MoneyValue{Currency: currency, Units: units, Nano: nano}
}

func (m MoneyValue) Point() fixed.Point {
	return fixed.FromUnitsNano(m.Units, m.Nano)
}
