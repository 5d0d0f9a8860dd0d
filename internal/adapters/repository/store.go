// Package repository holds the monthly best-score ranking stores.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/hanta/internal/domain/model"
)

// Board identifies one leaderboard: a mode in a calendar month.
type Board struct {
	Mode  model.Mode
	Year  int
	Month int
}

// BoardOf returns the board rec belongs to.
func BoardOf(rec model.Record) Board {
	return Board{Mode: rec.Mode, Year: rec.Year, Month: rec.Month}
}

func (b Board) String() string {
	return fmt.Sprintf("%s/%04d-%02d", b.Mode, b.Year, b.Month)
}

// Store provides read/write access to the ranking state.
//
// Entries are ordered by score desc, then name asc. Equal scores share a
// rank and the next distinct score skips the tied positions (1, 1, 3).
type Store interface {
	// UpsertBest stores rec when its name has no row on the board yet or
	// when rec.Score is strictly higher. It reports whether a row changed.
	UpsertBest(ctx context.Context, rec model.Record) (bool, error)

	// TopN returns at most n entries. n < 1 yields ErrInvalidLimit.
	TopN(ctx context.Context, b Board, n int) ([]model.RankedEntry, error)

	// Rank returns the entry for name or ErrNotFound.
	Rank(ctx context.Context, b Board, name string) (model.RankedEntry, error)

	// Count returns the number of rows across all boards.
	Count(ctx context.Context) int

	Close() error
}

// Open returns the Store for driver. dsn is ignored for the memory driver.
func Open(driver, dsn string, opts ...GormOption) (Store, error) {
	if driver == DriverMemory {
		return NewMemoryStore(), nil
	}
	s, err := OpenGorm(driver, dsn, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}
