package market

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Quote is a single offline observation
type Quote struct {
	Spot float64 `yaml:"spot"`
	IV   float64 `yaml:"iv"`
}

// OfflineData is the on-disk format read by OfflineSource
type OfflineData struct {
	Snapshot Snapshot             `yaml:"snapshot"`
	Quotes   map[string]Quote     `yaml:"quotes"`
	History  map[string][]float64 `yaml:"history"` // daily closes, oldest first
}

// OfflineSource serves market data from a YAML document. It is read-only
// after construction and safe for concurrent use.
type OfflineSource struct {
	data OfflineData
	asOf time.Time
}

// NewOfflineSource wraps already-decoded data
func NewOfflineSource(data OfflineData) *OfflineSource {
	if data.Quotes == nil {
		data.Quotes = map[string]Quote{}
	}
	asOf := data.Snapshot.Timestamp
	if asOf.IsZero() {
		asOf = time.Now().UTC().Truncate(24 * time.Hour)
	}
	return &OfflineSource{data: data, asOf: asOf}
}

// LoadOfflineSource reads an offline market file
func LoadOfflineSource(path string) (*OfflineSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read market file: %w", err)
	}
	var data OfflineData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse market YAML: %w", err)
	}
	return NewOfflineSource(data), nil
}

// Spot implements Source
func (s *OfflineSource) Spot(_ context.Context, symbol string) (float64, error) {
	q, ok := s.data.Quotes[symbol]
	if !ok || q.Spot <= 0 {
		return 0, fmt.Errorf("%s spot: %w", symbol, ErrNoData)
	}
	return q.Spot, nil
}

// ImpliedVolatility implements Source
func (s *OfflineSource) ImpliedVolatility(_ context.Context, symbol string) (float64, error) {
	q, ok := s.data.Quotes[symbol]
	if !ok || q.IV <= 0 {
		return 0, fmt.Errorf("%s implied volatility: %w", symbol, ErrNoData)
	}
	return q.IV, nil
}

// Snapshot implements Source
func (s *OfflineSource) Snapshot(_ context.Context) (Snapshot, error) {
	snap := s.data.Snapshot
	if snap.Timestamp.IsZero() {
		snap.Timestamp = s.asOf
	}
	return snap, nil
}

// Series implements HistorySource. Bars are stamped one day apart ending at
// the snapshot date.
func (s *OfflineSource) Series(_ context.Context, symbol string, limit int) ([]Bar, error) {
	closes, ok := s.data.History[symbol]
	if !ok || len(closes) == 0 {
		return nil, fmt.Errorf("%s history: %w", symbol, ErrNoData)
	}
	if limit > 0 && len(closes) > limit {
		closes = closes[len(closes)-limit:]
	}
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{
			Time:  s.asOf.AddDate(0, 0, i-len(closes)+1),
			Close: c,
		}
	}
	return WithIndicators(bars), nil
}
