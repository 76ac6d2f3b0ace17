package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Scanner produces the observation list for one evaluation cycle.
type Scanner interface {
	Scan(ctx context.Context) ([]AccessPoint, error)
}

// FixtureScanner reads observations from a JSON file. Used for development
// and for driving the daemon on machines without a wireless interface.
type FixtureScanner struct {
	Path string
}

// NewFixtureScanner creates a scanner backed by a JSON observation file.
func NewFixtureScanner(path string) *FixtureScanner {
	return &FixtureScanner{Path: path}
}

// Scan reads and decodes the fixture file.
func (s *FixtureScanner) Scan(ctx context.Context) ([]AccessPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", s.Path, err)
	}
	var observations []AccessPoint
	if err := json.Unmarshal(data, &observations); err != nil {
		return nil, fmt.Errorf("failed to decode fixture %s: %w", s.Path, err)
	}
	return observations, nil
}
