package keystroke

import "github.com/okian/hanta/internal/domain/model"

type threshold struct {
	grade    model.Grade
	score    int64
	accuracy float64
}

// Descending; the first threshold met wins.
var thresholds = [...]threshold{
	{model.GradeS, 500, 98},
	{model.GradeA, 400, 95},
	{model.GradeB, 300, 90},
	{model.GradeC, 200, 85},
	{model.GradeD, 100, 80},
}

// GradeFor labels a result. Both score and accuracy must meet a threshold.
func GradeFor(score int64, accuracy float64) model.Grade {
	for _, t := range thresholds {
		if score >= t.score && accuracy >= t.accuracy {
			return t.grade
		}
	}
	return model.GradeF
}
