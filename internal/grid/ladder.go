// Package grid computes the ladder of price levels a configuration
// spans and their initial side classification.
package grid

import (
	"fmt"

	"grid-trading-bot-go/internal/models"
)

// Ladder is the in-memory model of all grid levels for one symbol.
// Levels are sorted strictly ascending by price, one per index.
// After construction it is mutated only by the engine's mutator flow.
type Ladder struct {
	Symbol string
	levels []*models.GridLevel
}

// Build computes cfg.GridSize evenly spaced levels from LowerPrice to
// UpperPrice inclusive and classifies each against the reference price:
// buy below the reference, sell at or above it. A level exactly at the
// reference is a sell: placing a buy at or above market is rejected by
// some exchanges.
func Build(cfg models.GridConfig, referencePrice float64) (*Ladder, error) {
	if cfg.GridSize < 2 {
		return nil, fmt.Errorf("grid: size must be >= 2, got %d", cfg.GridSize)
	}
	if cfg.UpperPrice <= cfg.LowerPrice {
		return nil, fmt.Errorf("grid: upper price %v must exceed lower price %v", cfg.UpperPrice, cfg.LowerPrice)
	}
	if referencePrice <= 0 {
		return nil, fmt.Errorf("grid: reference price must be positive, got %v", referencePrice)
	}

	step := cfg.Step()
	levels := make([]*models.GridLevel, cfg.GridSize)
	for i := range levels {
		price := cfg.LowerPrice + float64(i)*step
		side := models.Sell
		if price < referencePrice {
			side = models.Buy
		}
		levels[i] = &models.GridLevel{
			Index:  i,
			Price:  price,
			Side:   side,
			Status: models.LevelPending,
		}
	}
	return &Ladder{Symbol: cfg.Symbol, levels: levels}, nil
}

// Restore rebuilds a ladder from persisted levels, e.g. after a crash.
// The levels must already satisfy the ladder invariants.
func Restore(symbol string, persisted []models.GridLevel) (*Ladder, error) {
	if len(persisted) < 2 {
		return nil, fmt.Errorf("grid: persisted ladder has %d levels, need at least 2", len(persisted))
	}
	levels := make([]*models.GridLevel, len(persisted))
	for i := range persisted {
		lvl := persisted[i]
		if lvl.Index != i {
			return nil, fmt.Errorf("grid: persisted level %d carries index %d", i, lvl.Index)
		}
		if i > 0 && lvl.Price <= persisted[i-1].Price {
			return nil, fmt.Errorf("grid: persisted levels not strictly ascending at index %d", i)
		}
		levels[i] = &lvl
	}
	return &Ladder{Symbol: symbol, levels: levels}, nil
}

// Len returns the number of levels.
func (l *Ladder) Len() int { return len(l.levels) }

// Level returns the level at index i, or nil when out of range.
func (l *Ladder) Level(i int) *models.GridLevel {
	if i < 0 || i >= len(l.levels) {
		return nil
	}
	return l.levels[i]
}

// Levels returns the underlying levels for iteration by the mutator.
func (l *Ladder) Levels() []*models.GridLevel { return l.levels }

// FindByOrderID returns the level whose live order carries id, or nil.
func (l *Ladder) FindByOrderID(id string) *models.GridLevel {
	for _, lvl := range l.levels {
		if lvl.Order != nil && lvl.Order.ID == id {
			return lvl
		}
	}
	return nil
}

// Snapshot returns a deep copy of all levels for safe concurrent
// reading outside the mutator.
func (l *Ladder) Snapshot() []models.GridLevel {
	out := make([]models.GridLevel, len(l.levels))
	for i, lvl := range l.levels {
		cp := *lvl
		if lvl.Order != nil {
			o := *lvl.Order
			cp.Order = &o
		}
		out[i] = cp
	}
	return out
}
