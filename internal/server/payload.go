package server

import (
	"fmt"
	"time"

	"github.com/ykarpov/brokersim/pkg/broker"
	"github.com/ykarpov/brokersim/pkg/common"
	"github.com/ykarpov/brokersim/pkg/utility/fixed"
)

type instrumentRef struct {
	Engine string `json:"engine" form:"engine"`
	Market string `json:"market" form:"market"`
	SecID  string `json:"sec_id" form:"sec_id"`
}

func (r instrumentRef) key() common.InstrumentKey {
	return common.InstrumentKey{Engine: r.Engine, Market: r.Market, SecID: r.SecID}
}

type configurePayload struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Interval       string    `json:"interval"`
	InitialCapital string    `json:"initial_capital"`
	FeePercent     string    `json:"fee_percent"`
}

// toOptions applies the documented defaults for fields the client left out.
func (p configurePayload) toOptions() (broker.Options, error) {
	opts := broker.Options{
		From:           p.From,
		To:             p.To,
		Interval:       common.Interval(p.Interval),
		InitialCapital: broker.DefaultInitialCapital,
		FeePercent:     broker.DefaultFeePercent,
	}
	if p.InitialCapital != "" {
		capital, err := fixed.Parse(p.InitialCapital)
		if err != nil {
			return broker.Options{}, fmt.Errorf("initial_capital: %w", err)
		}
		opts.InitialCapital = capital
	}
	if p.FeePercent != "" {
		fee, err := fixed.Parse(p.FeePercent)
		if err != nil {
			return broker.Options{}, fmt.Errorf("fee_percent: %w", err)
		}
		opts.FeePercent = fee
	}
	return opts, nil
}

type orderPayload struct {
	OrderID    string        `json:"order_id"`
	Instrument instrumentRef `json:"instrument"`
	Direction  string        `json:"direction"`
	Type       string        `json:"type"`
	Quantity   int64         `json:"quantity"`
	Price      string        `json:"price"`
}

func (p orderPayload) toRequest() (broker.PlaceOrderRequest, error) {
	direction, err := parseDirection(p.Direction)
	if err != nil {
		return broker.PlaceOrderRequest{}, err
	}
	orderType, err := parseOrderType(p.Type)
	if err != nil {
		return broker.PlaceOrderRequest{}, err
	}
	req := broker.PlaceOrderRequest{
		OrderID:   p.OrderID,
		Key:       p.Instrument.key(),
		Direction: direction,
		Type:      orderType,
		Quantity:  p.Quantity,
	}
	if p.Price != "" {
		price, err := fixed.Parse(p.Price)
		if err != nil {
			return broker.PlaceOrderRequest{}, fmt.Errorf("price: %w", err)
		}
		req.Price = price
	}
	return req, nil
}

type lastPricesPayload struct {
	Instruments []instrumentRef `json:"instruments"`
}

type stepResponse struct {
	Active bool       `json:"active"`
	Time   *time.Time `json:"time,omitempty"`
}

func parseDirection(s string) (common.OrderDirection, error) {
	switch s {
	case "buy":
		return common.OrderDirectionBuy, nil
	case "sell":
		return common.OrderDirectionSell, nil
	default:
		return 0, fmt.Errorf("unknown order direction %q", s)
	}
}

func parseOrderType(s string) (common.OrderType, error) {
	switch s {
	case "market", "":
		return common.OrderTypeMarket, nil
	case "limit":
		return common.OrderTypeLimit, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", s)
	}
}

func parseOperationState(s string) (common.OperationState, error) {
	switch s {
	case "executed", "":
		return common.OperationStateExecuted, nil
	case "cancelled":
		return common.OperationStateCancelled, nil
	default:
		return 0, fmt.Errorf("unknown operation state %q", s)
	}
}

func parseIDType(s string) (common.InstrumentIDType, error) {
	switch s {
	case "secid", "":
		return common.InstrumentIDTypeSecID, nil
	case "isin":
		return common.InstrumentIDTypeISIN, nil
	default:
		return "", fmt.Errorf("unknown instrument id type %q", s)
	}
}
