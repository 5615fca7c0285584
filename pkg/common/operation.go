package common

import (
	"time"

	"github.com/ykarpov/brokersim/pkg/utility/fixed"
)

type OperationType int
type OperationState int

const (
	OperationTypeBuy OperationType = iota
	OperationTypeSell
	OperationTypeBrokerFee
)

const (
	OperationStateExecuted OperationState = iota
	OperationStateCancelled
)

func (t OperationType) String() string {
	switch t {
	case OperationTypeSell:
		return "sell"
	case OperationTypeBrokerFee:
		return "broker_fee"
	default:
		return "buy"
	}
}

func (s OperationState) String() string {
	if s == OperationStateCancelled {
		return "cancelled"
	}
	return "executed"
}

// Operation is an immutable, append-only ledger entry. Commission entries
// point at their trade through ParentOperationID. Payment is signed: negative
// for an outflow of cash.
type Operation struct {
	ID                string         `json:"id"`
	ParentOperationID string         `json:"parent_operation_id,omitempty"`
	Key               InstrumentKey  `json:"instrument"`
	InstrumentType    InstrumentType `json:"instrument_type"`
	Type              OperationType  `json:"type"`
	State             OperationState `json:"state"`
	Payment           fixed.Point    `json:"payment"`
	Price             fixed.Point    `json:"price"`
	Quantity          int64          `json:"quantity"`
	Currency          string         `json:"currency"`
	Date              time.Time      `json:"date"`
}
