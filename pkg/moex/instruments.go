package moex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/ykarpov/brokersim/pkg/common"
)

var ErrInstrumentNotFound = errors.New("instrument not found")

type securityPayload struct {
	Description struct {
		Columns []string            `json:"columns"`
		Data    [][]json.RawMessage `json:"data"`
	} `json:"description"`
}

// GetInstrument fetches metadata for one security. ISS serves a name/value
// description table; everything not present there gets a reasonable default.
func (c *Client) GetInstrument(ctx context.Context, key common.InstrumentKey) (common.Instrument, error) {
	query := url.Values{}
	query.Set("engine", key.Engine)
	query.Set("market", key.Market)

	path := fmt.Sprintf("securities/%s.json", key.SecID)

	body, err := c.get(ctx, path, query)
	if err != nil {
		return common.Instrument{}, err
	}

	var payload securityPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return common.Instrument{}, fmt.Errorf("unable to decode security response: %w", err)
	}
	if len(payload.Description.Data) == 0 {
		return common.Instrument{}, fmt.Errorf("security %s: %w", key.SecID, ErrInstrumentNotFound)
	}

	instrument := common.Instrument{
		InstrumentKey:  key,
		Lot:            1,
		Currency:       "rub",
		InstrumentType: instrumentTypeForMarket(key.Market),
	}

	description := parseDescription(payload)
	if name, ok := description["SECNAME"]; ok {
		instrument.Name = name
	}
	if isin, ok := description["ISIN"]; ok && instrument.Name == "" {
		instrument.Name = isin
	}
	return instrument, nil
}

// parseDescription flattens the ISS name/title/value table into a map.
func parseDescription(payload securityPayload) map[string]string {
	nameIdx, valueIdx := -1, -1
	for i, col := range payload.Description.Columns {
		switch col {
		case "name":
			nameIdx = i
		case "value":
			valueIdx = i
		}
	}
	out := make(map[string]string)
	if nameIdx < 0 || valueIdx < 0 {
		return out
	}
	for _, row := range payload.Description.Data {
		if len(row) <= nameIdx || len(row) <= valueIdx {
			continue
		}
		var name, value string
		if err := json.Unmarshal(row[nameIdx], &name); err != nil {
			continue
		}
		if err := json.Unmarshal(row[valueIdx], &value); err != nil {
			continue
		}
		out[name] = value
	}
	return out
}

func instrumentTypeForMarket(market string) common.InstrumentType {
	switch market {
	case "bonds":
		return common.InstrumentTypeBond
	case "forts":
		return common.InstrumentTypeFuture
	case "selt":
		return common.InstrumentTypeCurrency
	default:
		return common.InstrumentTypeShare
	}
}
