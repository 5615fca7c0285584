package candles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ykarpov/brokersim/pkg/common"
	"github.com/ykarpov/brokersim/pkg/telemetry"
)

// cacheTimeLayout matches the ISO-8601 form the cache files have always
// used, millisecond precision with a literal Z.
const cacheTimeLayout = "2006-01-02T15:04:05.000Z"

// candleRecord is the persisted form of one candle: prices in split
// units+nano representation, time as an ISO-8601 string.
type candleRecord struct {
	Open   common.Quotation `json:"open"`
	High   common.Quotation `json:"high"`
	Low    common.Quotation `json:"low"`
	Close  common.Quotation `json:"close"`
	Volume int64            `json:"volume"`
	Time   string           `json:"time"`
}

// Store persists immutable candle buckets under
// <dir>/candles/<engine>/<market>/<secId>/<interval>/<bucket>.json.
// Buckets are only ever read or rewritten wholesale, never mutated.
type Store struct {
	dir    string
	logger *zap.Logger
}

func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Load reads one bucket. Any failure (absent file, unreadable JSON, an
// empty bucket) is reported as a miss so the caller falls through to a
// fresh upstream fetch.
func (s *Store) Load(key common.InstrumentKey, interval common.Interval, bucket string) ([]common.Candle, bool) {
	path := s.path(key, interval, bucket)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var records []candleRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("unreadable cache bucket, treating as miss",
			zap.String("path", path), zap.Error(err))
		return nil, false
	}
	if len(records) == 0 {
		// An empty bucket file is not "confirmed empty": it may mask a
		// failed fetch.
		return nil, false
	}

	candles := make([]common.Candle, 0, len(records))
	for _, record := range records {
		t, err := time.Parse(time.RFC3339, record.Time)
		if err != nil {
			s.logger.Warn("unreadable candle time in cache bucket, treating as miss",
				zap.String("path", path), zap.String("time", record.Time), zap.Error(err))
			return nil, false
		}
		candles = append(candles, common.Candle{
			Open:   record.Open.Point(),
			High:   record.High.Point(),
			Low:    record.Low.Point(),
			Close:  record.Close.Point(),
			Volume: record.Volume,
			Time:   t,
		})
	}
	telemetry.CandleCacheHits.Inc()
	return candles, true
}

// Save rewrites one bucket wholesale.
func (s *Store) Save(key common.InstrumentKey, interval common.Interval, bucket string, candles []common.Candle) error {
	path := s.path(key, interval, bucket)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("unable to create cache dir for %q: %w", path, err)
	}

	records := make([]candleRecord, 0, len(candles))
	for _, candle := range candles {
		records = append(records, candleRecord{
			Open:   common.NewQuotation(candle.Open),
			High:   common.NewQuotation(candle.High),
			Low:    common.NewQuotation(candle.Low),
			Close:  common.NewQuotation(candle.Close),
			Volume: candle.Volume,
			Time:   candle.Time.UTC().Format(cacheTimeLayout),
		})
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("unable to encode cache bucket %q: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("unable to write cache bucket %q: %w", path, err)
	}
	return nil
}

func (s *Store) path(key common.InstrumentKey, interval common.Interval, bucket string) string {
	return filepath.Join(
		s.dir,
		"candles",
		key.Engine,
		key.Market,
		key.SecID,
		string(interval),
		bucket+".json",
	)
}
