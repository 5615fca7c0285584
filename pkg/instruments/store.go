// Package instruments is a cache-aside store for instrument metadata:
// memory first, then a per-instrument JSON file, then the upstream source.
package instruments

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ykarpov/brokersim/pkg/common"
)

// Source is the upstream instrument lookup collaborator.
type Source interface {
	GetInstrument(ctx context.Context, key common.InstrumentKey) (common.Instrument, error)
}

// Request identifies one instrument lookup.
type Request struct {
	IDType    common.InstrumentIDType
	Key       common.InstrumentKey
	ClassCode string
}

type Store struct {
	source Source
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]common.Instrument
}

func NewStore(source Source, cacheDir string, logger *zap.Logger) *Store {
	return &Store{
		source: source,
		dir:    cacheDir,
		logger: logger,
		cache:  make(map[string]common.Instrument),
	}
}

// Get resolves an instrument, loading it upstream once and persisting it for
// later runs. A missing instrument is an error: the caller always needs it.
func (s *Store) Get(ctx context.Context, req Request) (common.Instrument, error) {
	cacheID := s.cacheID(req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if instrument, ok := s.cache[cacheID]; ok {
		return instrument, nil
	}

	path := filepath.Join(s.dir, "instrument", cacheID+".json")
	if instrument, ok := s.loadFile(path); ok {
		s.cache[cacheID] = instrument
		return instrument, nil
	}

	instrument, err := s.source.GetInstrument(ctx, req.Key)
	if err != nil {
		return common.Instrument{}, fmt.Errorf("no data for instrument %s: %w", cacheID, err)
	}
	instrument.BuyAvailableFlag = true
	instrument.SellAvailableFlag = true

	s.saveFile(path, instrument)
	s.cache[cacheID] = instrument
	return instrument, nil
}

func (s *Store) cacheID(req Request) string {
	idType := req.IDType
	if idType == "" {
		idType = common.InstrumentIDTypeSecID
	}
	parts := []string{string(idType), req.Key.Engine, req.Key.Market, req.Key.SecID, req.ClassCode}
	nonEmpty := parts[:0]
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.Join(nonEmpty, "_")
}

func (s *Store) loadFile(path string) (common.Instrument, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return common.Instrument{}, false
	}
	var instrument common.Instrument
	if err := json.Unmarshal(data, &instrument); err != nil {
		s.logger.Warn("unreadable instrument cache file, treating as miss",
			zap.String("path", path), zap.Error(err))
		return common.Instrument{}, false
	}
	return instrument, true
}

func (s *Store) saveFile(path string, instrument common.Instrument) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Warn("unable to create instrument cache dir", zap.Error(err))
		return
	}
	data, err := json.Marshal(instrument)
	if err != nil {
		s.logger.Warn("unable to encode instrument", zap.Error(err))
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Warn("unable to write instrument cache file", zap.Error(err))
	}
}
