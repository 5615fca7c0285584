package common

import (
	"errors"
	"time"

	"github.com/ykarpov/brokersim/pkg/utility/fixed"
)

// Interval is a candle interval. Only the four listed values are legal.
type Interval string

const (
	Interval1Min  Interval = "1_min"
	Interval10Min Interval = "10_min"
	IntervalHour  Interval = "hour"
	IntervalDay   Interval = "day"
)

var ErrInvalidInterval = errors.New("invalid candle interval")

// Duration returns the length of one candle of this interval.
func (i Interval) Duration() (time.Duration, error) {
	switch i {
	case Interval1Min:
		return time.Minute, nil
	case Interval10Min:
		return 10 * time.Minute, nil
	case IntervalHour:
		return time.Hour, nil
	case IntervalDay:
		return 24 * time.Hour, nil
	default:
		return 0, ErrInvalidInterval
	}
}

func (i Interval) Valid() bool {
	_, err := i.Duration()
	return err == nil
}

// Candle is one OHLCV bar. Time is the start of the half-open candle
// interval. Candles are immutable once produced.
type Candle struct {
	Open   fixed.Point `json:"open"`
	High   fixed.Point `json:"high"`
	Low    fixed.Point `json:"low"`
	Close  fixed.Point `json:"close"`
	Volume int64       `json:"volume"`
	Time   time.Time   `json:"time"`
}
