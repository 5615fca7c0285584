package moex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ykarpov/brokersim/pkg/common"
	"github.com/ykarpov/brokersim/pkg/utility/fixed"
)

// issTimeLayout is the timestamp format of the ISS candle tables.
const issTimeLayout = "2006-01-02 15:04:05"

type candlesPayload struct {
	Candles struct {
		Columns []string            `json:"columns"`
		Data    [][]json.RawMessage `json:"data"`
	} `json:"candles"`
}

// GetCandles fetches candles for one instrument strictly within [from, to).
func (c *Client) GetCandles(ctx context.Context, key common.InstrumentKey, interval common.Interval, from, to time.Time) ([]common.Candle, error) {
	code, err := intervalCode(interval)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("from", from.UTC().Format(time.RFC3339))
	query.Set("till", to.UTC().Format(time.RFC3339))
	query.Set("interval", code)

	path := fmt.Sprintf("engines/%s/markets/%s/securities/%s/candles.json", key.Engine, key.Market, key.SecID)

	body, err := c.get(ctx, path, query)
	if err != nil {
		return nil, err
	}

	var payload candlesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unable to decode candles response: %w", err)
	}

	candles, err := parseCandles(payload, from, to)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("candles fetched",
		zap.String("sec_id", key.SecID),
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("count", len(candles)))
	return candles, nil
}

func parseCandles(payload candlesPayload, from, to time.Time) ([]common.Candle, error) {
	cols := make(map[string]int, len(payload.Candles.Columns))
	for i, name := range payload.Candles.Columns {
		cols[name] = i
	}
	for _, name := range []string{"open", "close", "high", "low", "volume", "begin"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("candles response is missing column %q", name)
		}
	}

	candles := make([]common.Candle, 0, len(payload.Candles.Data))
	for _, row := range payload.Candles.Data {
		candle, err := parseCandleRow(row, cols)
		if err != nil {
			return nil, err
		}
		// ISS treats both bounds as inclusive, the loader contract is [from, to).
		if candle.Time.Before(from) || !candle.Time.Before(to) {
			continue
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseCandleRow(row []json.RawMessage, cols map[string]int) (common.Candle, error) {
	for _, name := range []string{"open", "close", "high", "low", "volume", "begin"} {
		if cols[name] >= len(row) {
			return common.Candle{}, fmt.Errorf("candle row has %d cells, missing %q", len(row), name)
		}
	}

	price := func(name string) (fixed.Point, error) {
		var v float64
		if err := json.Unmarshal(row[cols[name]], &v); err != nil {
			return fixed.Point{}, fmt.Errorf("unable to decode %q cell: %w", name, err)
		}
		return fixed.FromFloat64(v), nil
	}

	var candle common.Candle
	var err error
	if candle.Open, err = price("open"); err != nil {
		return candle, err
	}
	if candle.Close, err = price("close"); err != nil {
		return candle, err
	}
	if candle.High, err = price("high"); err != nil {
		return candle, err
	}
	if candle.Low, err = price("low"); err != nil {
		return candle, err
	}

	var volume float64
	if err := json.Unmarshal(row[cols["volume"]], &volume); err != nil {
		return candle, fmt.Errorf("unable to decode volume cell: %w", err)
	}
	candle.Volume = int64(volume)

	var begin string
	if err := json.Unmarshal(row[cols["begin"]], &begin); err != nil {
		return candle, fmt.Errorf("unable to decode begin cell: %w", err)
	}
	candle.Time, err = time.ParseInLocation(issTimeLayout, begin, time.UTC)
	if err != nil {
		return candle, fmt.Errorf("unable to parse candle time %q: %w", begin, err)
	}
	return candle, nil
}

func intervalCode(interval common.Interval) (string, error) {
	switch interval {
	case common.Interval1Min:
		return "1", nil
	case common.Interval10Min:
		return "10", nil
	case common.IntervalHour:
		return "60", nil
	case common.IntervalDay:
		return "24", nil
	default:
		return "", common.ErrInvalidInterval
	}
}
