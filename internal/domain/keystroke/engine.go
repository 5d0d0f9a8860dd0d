// Package keystroke turns a reference text and a typed attempt into
// keystroke-accurate statistics.
//
// Hangul syllables are scored per jamo: an initial and a medial, plus a final
// when present. Every other character is a single keystroke and line breaks
// count for nothing. Texts are compared strictly position by position; a
// dropped or inserted character shifts every later position.
package keystroke

import (
	"math"

	"github.com/okian/hanta/internal/domain/model"
)

// Progress is the aggregate of a position-by-position comparison.
type Progress struct {
	Correct  int `json:"correct"`
	Possible int `json:"possible"`
}

// Result is the full set of statistics for one attempt.
type Result struct {
	Characters     int         `json:"characters"`
	Correct        int         `json:"correct"`
	Possible       int         `json:"possible"`
	Accuracy       float64     `json:"accuracy"`
	ElapsedSeconds float64     `json:"timeElapsed"`
	CPM            float64     `json:"cpm"`
	WPM            float64     `json:"wpm"`
	Score          int64       `json:"score"`
	Grade          model.Grade `json:"grade"`
}

// KeystrokeCount returns how many input events r takes to type.
func KeystrokeCount(r rune) int {
	if isLineBreak(r) {
		return 0
	}
	if s, ok := decompose(r); ok {
		if s.hasFinal() {
			return 3
		}
		return 2
	}
	return 1
}

// Compare returns the keystrokes of ref that typed got right.
// Syllables earn one point per matching jamo even when the whole
// character differs.
func Compare(ref, typed rune) int {
	if isLineBreak(ref) {
		return 0
	}
	rs, ok := decompose(ref)
	if !ok {
		if ref == typed {
			return 1
		}
		return 0
	}
	ts, ok := decompose(typed)
	if !ok {
		return 0
	}
	correct := 0
	if rs.initial == ts.initial {
		correct++
	}
	if rs.medial == ts.medial {
		correct++
	}
	if rs.hasFinal() && rs.final == ts.final {
		correct++
	}
	return correct
}

// CorrectKeystrokes walks both texts up to the longer length. Positions
// missing from typed still count as possible.
func CorrectKeystrokes(reference, typed string) Progress {
	ref, got := []rune(reference), []rune(typed)
	var p Progress
	for i := range ref {
		p.Possible += KeystrokeCount(ref[i])
		if i < len(got) {
			p.Correct += Compare(ref[i], got[i])
		}
	}
	return p
}

// Compute derives the statistics for typed against reference.
// elapsedSeconds is untrusted; non-positive values yield zero speed.
func Compute(reference, typed string, elapsedSeconds float64, mode model.Mode) Result {
	p := CorrectKeystrokes(reference, typed)

	res := Result{
		Characters:     countCharacters(typed),
		Correct:        p.Correct,
		Possible:       p.Possible,
		Accuracy:       Accuracy(p.Correct, p.Possible),
		ElapsedSeconds: elapsedSeconds,
	}
	if elapsedSeconds > 0 && !math.IsInf(elapsedSeconds, 0) {
		minutes := elapsedSeconds / 60
		res.CPM = float64(p.Correct) / minutes
		res.WPM = float64(p.Correct) / 5 / minutes
	}
	res.Score = Score(mode, res.Accuracy, res.CPM)
	res.Grade = GradeFor(res.Score, res.Accuracy)
	return res
}

// Accuracy is correct over possible as a percentage with one decimal.
func Accuracy(correct, possible int) float64 {
	if possible <= 0 {
		return 100
	}
	return math.Round(float64(correct)/float64(possible)*1000) / 10
}

// Score applies the mode formula: rounded CPM for steady modes, rounded
// accuracy times CPM for the arcade mode.
func Score(mode model.Mode, accuracy, cpm float64) int64 {
	if mode.IsArcade() {
		return int64(math.Round(accuracy * cpm))
	}
	return int64(math.Round(cpm))
}

func countCharacters(s string) int {
	n := 0
	for _, r := range s {
		if !isLineBreak(r) {
			n++
		}
	}
	return n
}
