package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Latin and Hangul letters, digits, whitespace and a little punctuation.
var namePattern = regexp.MustCompile(`^[\p{Hangul}A-Za-z0-9\s_\-.!?]+$`)

// ValidateName trims name and checks it. Every problem found is returned.
func ValidateName(name string, maxWidth int) (string, []string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", []string{"name must not be empty"}
	}
	var problems []string
	if !namePattern.MatchString(name) {
		problems = append(problems, "name contains unsupported characters")
	}
	if w := runewidth.StringWidth(name); w > maxWidth {
		problems = append(problems, fmt.Sprintf("name is too long: width %d exceeds %d", w, maxWidth))
	}
	return name, problems
}
