// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMode is returned when a practice mode is not recognised.
var ErrInvalidMode = errors.New("invalid mode")

// Mode is a practice category. It governs the scoring formula and which
// metadata fields a submission may carry.
type Mode string

const (
	ModeShort  Mode = "short"  // proverb practice, steady scoring
	ModeLong   Mode = "long"   // long text practice, steady scoring
	ModeVenice Mode = "venice" // falling words arcade
)

// Modes lists every practice mode in display order.
var Modes = []Mode{ModeShort, ModeLong, ModeVenice}

// ParseMode normalises s and returns the matching Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeShort, ModeLong, ModeVenice:
		return true
	}
	return false
}

// IsArcade reports whether score is weighted by accuracy.
func (m Mode) IsArcade() bool { return m == ModeVenice }

func (m Mode) String() string { return string(m) }
