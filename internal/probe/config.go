package probe

import (
	"time"

	"github.com/okian/hanta/internal/domain/keystroke"
)

// Config holds the inputs of one probe run.
type Config struct {
	BaseURL   string        // Base URL of the service
	Mode      string        // Session mode
	Name      string        // Display name to submit under
	Reference string        // Reference text
	Typed     string        // Text the simulated player typed
	Elapsed   float64       // Seconds the run took
	Tamper    bool          // Inflate the submitted numbers
	Timeout   time.Duration // HTTP request timeout
	// Settle bounds how long to wait for an accepted score to be ranked.
	Settle time.Duration
}

// Submission is the wire body of POST /api/scores.
type Submission struct {
	Token        string  `json:"token"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	OriginalText string  `json:"originalText"`
	TypedText    string  `json:"typedText"`
	TimeElapsed  float64 `json:"timeElapsed"`
	Score        float64 `json:"score"`
	Accuracy     float64 `json:"accuracy"`
	CPM          float64 `json:"cpm"`
	WPM          float64 `json:"wpm"`
	Grade        string  `json:"grade,omitempty"`
}

// Entry mirrors a ranked leaderboard row.
type Entry struct {
	Rank     int     `json:"rank"`
	Name     string  `json:"name"`
	Score    int64   `json:"score"`
	Accuracy float64 `json:"accuracy"`
}

// Report is the outcome of a probe.
type Report struct {
	Local     keystroke.Result `json:"local"`
	Submitted Submission       `json:"submitted"`
	Status    int              `json:"status"`
	Response  map[string]any   `json:"response"`
	// Expected is the status an honest server returns for this submission.
	Expected int    `json:"expected"`
	Passed   bool   `json:"passed"`
	Entry    *Entry `json:"entry,omitempty"`
	Duration string `json:"duration"`
}
