package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidMetadata is returned when an optional field fails validation.
var ErrInvalidMetadata = errors.New("invalid metadata")

// Grade is the letter label derived from score and accuracy.
type Grade string

const (
	GradeS Grade = "S"
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Valid reports whether g is a known grade.
func (g Grade) Valid() bool {
	switch g {
	case GradeS, GradeA, GradeB, GradeC, GradeD, GradeF:
		return true
	}
	return false
}

// Fields carries the optional values a client may attach to a submission.
// Nil means "not supplied".
type Fields struct {
	CPM          *float64
	WPM          *float64
	TimeElapsed  *float64
	Grade        *string
	ProverbCount *int
	TextTitle    *string
	Level        *int
	WordsCaught  *int
	WordsMissed  *int
}

// ShortMeta holds proverb mode extras.
type ShortMeta struct {
	ProverbCount *int
}

// LongMeta holds long text mode extras.
type LongMeta struct {
	TextTitle *string
}

// VeniceMeta holds arcade mode extras.
type VeniceMeta struct {
	Level       *int
	WordsCaught *int
	WordsMissed *int
}

// Metadata is the per-record detail persisted next to the score.
// Exactly one of Short, Long or Venice is set, matching Mode.
type Metadata struct {
	Mode        Mode
	Accuracy    float64
	CPM         *float64
	WPM         *float64
	TimeElapsed *float64
	Grade       *Grade

	Short  *ShortMeta
	Long   *LongMeta
	Venice *VeniceMeta
}

// NewMetadata builds the variant for mode from f. Fields that belong to a
// different mode are dropped.
func NewMetadata(mode Mode, accuracy float64, f Fields) (Metadata, error) {
	if !mode.Valid() {
		return Metadata{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	md := Metadata{
		Mode:        mode,
		Accuracy:    accuracy,
		CPM:         f.CPM,
		WPM:         f.WPM,
		TimeElapsed: f.TimeElapsed,
	}

	var errs []error
	for name, v := range map[string]*float64{"cpm": f.CPM, "wpm": f.WPM, "timeElapsed": f.TimeElapsed} {
		if v != nil && (*v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
			errs = append(errs, fmt.Errorf("%s must be a non-negative number", name))
		}
	}
	if f.Grade != nil {
		g := Grade(*f.Grade)
		if !g.Valid() {
			errs = append(errs, fmt.Errorf("unknown grade %q", *f.Grade))
		} else {
			md.Grade = &g
		}
	}

	switch mode {
	case ModeShort:
		if negative(f.ProverbCount) {
			errs = append(errs, errors.New("proverbCount must not be negative"))
		}
		md.Short = &ShortMeta{ProverbCount: f.ProverbCount}
	case ModeLong:
		md.Long = &LongMeta{TextTitle: f.TextTitle}
	case ModeVenice:
		if f.Level != nil && *f.Level < 1 {
			errs = append(errs, errors.New("level must be at least 1"))
		}
		if negative(f.WordsCaught) || negative(f.WordsMissed) {
			errs = append(errs, errors.New("word counts must not be negative"))
		}
		md.Venice = &VeniceMeta{Level: f.Level, WordsCaught: f.WordsCaught, WordsMissed: f.WordsMissed}
	}

	if len(errs) > 0 {
		return Metadata{}, fmt.Errorf("%w: %w", ErrInvalidMetadata, errors.Join(errs...))
	}
	return md, nil
}

// Map renders the supplied fields under their wire names.
func (m Metadata) Map() map[string]any {
	out := map[string]any{"accuracy": m.Accuracy}
	putFloat(out, "cpm", m.CPM)
	putFloat(out, "wpm", m.WPM)
	putFloat(out, "timeElapsed", m.TimeElapsed)
	if m.Grade != nil {
		out["grade"] = string(*m.Grade)
	}
	if m.Short != nil {
		putInt(out, "proverbCount", m.Short.ProverbCount)
	}
	if m.Long != nil && m.Long.TextTitle != nil {
		out["textTitle"] = *m.Long.TextTitle
	}
	if m.Venice != nil {
		putInt(out, "level", m.Venice.Level)
		putInt(out, "wordsCaught", m.Venice.WordsCaught)
		putInt(out, "wordsMissed", m.Venice.WordsMissed)
	}
	return out
}

func negative(v *int) bool { return v != nil && *v < 0 }

func putFloat(m map[string]any, k string, v *float64) {
	if v != nil {
		m[k] = *v
	}
}

func putInt(m map[string]any, k string, v *int) {
	if v != nil {
		m[k] = *v
	}
}
