package common

import (
	"time"

	"github.com/ykarpov/brokersim/pkg/utility/fixed"
)

type OrderDirection int
type OrderType int
type OrderStatus int

const (
	OrderDirectionBuy OrderDirection = iota
	OrderDirectionSell
)

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
)

const (
	OrderStatusNew OrderStatus = iota
	OrderStatusFilled
)

func (d OrderDirection) String() string {
	if d == OrderDirectionSell {
		return "sell"
	}
	return "buy"
}

func (s OrderStatus) String() string {
	if s == OrderStatusFilled {
		return "filled"
	}
	return "new"
}

// Order is one resting or filled order. OrderID is the client-supplied
// idempotency key. Orders are mutated only by the matching engine on fill
// and are never deleted for the life of a session.
type Order struct {
	OrderID   string         `json:"order_id"`
	Key       InstrumentKey  `json:"instrument"`
	Direction OrderDirection `json:"direction"`
	Type      OrderType      `json:"type"`
	Status    OrderStatus    `json:"status"`

	LotsRequested int64 `json:"lots_requested"`
	LotsExecuted  int64 `json:"lots_executed"`

	InitialSecurityPrice fixed.Point `json:"initial_security_price"`
	InitialOrderPrice    fixed.Point `json:"initial_order_price"`
	InitialCommission    fixed.Point `json:"initial_commission"`
	ExecutedOrderPrice   fixed.Point `json:"executed_order_price"`
	ExecutedCommission   fixed.Point `json:"executed_commission"`
	TotalOrderAmount     fixed.Point `json:"total_order_amount"`
	AveragePositionPrice fixed.Point `json:"average_position_price"`

	Currency  string    `json:"currency"`
	OrderDate time.Time `json:"order_date"`
}
