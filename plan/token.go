package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/input-output-hk/planvault/errors"
)

// Ext is the file extension of every plan document.
const Ext = ".md"

// WeekStart is the first day of a week. Week tokens must name this weekday.
const WeekStart = time.Sunday

var (
	// ErrTokenFormat is returned when a token does not match the digit
	// grammar of its category.
	ErrTokenFormat = errors.New(errors.CodeInvalidInput, "plan: token does not match category grammar")

	// ErrTokenDate is returned when a token matches the digit grammar but does
	// not name a real calendar date.
	ErrTokenDate = errors.New(errors.CodeInvalidInput, "plan: token is not a valid calendar date")

	// ErrNotWeekAnchor is returned when a Week token is not a Sunday.
	ErrNotWeekAnchor = errors.New(errors.CodeInvalidInput, "plan: week token is not the week's first day")
)

// TrimExt removes the plan extension from a file name, if present.
func TrimExt(name string) string {
	return strings.TrimSuffix(name, Ext)
}

// MatchesGrammar reports whether token has exactly the digit count required
// by c. It does not check calendar validity.
func MatchesGrammar(c Category, token string) bool {
	if !c.Valid() || len(token) != c.TokenDigits() {
		return false
	}
	for i := 0; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return false
		}
	}
	return true
}

// ParseToken parses a token of category c into the first instant of the
// period it names (UTC). Grammar failures wrap ErrTokenFormat, impossible
// dates wrap ErrTokenDate.
func ParseToken(c Category, token string) (time.Time, error) {
	if !MatchesGrammar(c, token) {
		return time.Time{}, fmt.Errorf("%w: %q is not %s", ErrTokenFormat, token, c.TokenPattern())
	}
	t, err := time.Parse(c.layout(), token)
	if err != nil || t.Year() < 1 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrTokenDate, token)
	}
	return t, nil
}

// IsWeekAnchor reports whether t falls on WeekStart.
func IsWeekAnchor(t time.Time) bool {
	return t.Weekday() == WeekStart
}

// WeekAnchor returns the WeekStart day of the week containing t.
func WeekAnchor(t time.Time) time.Time {
	offset := (int(t.Weekday()) - int(WeekStart) + 7) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}

// FormatToken renders the token of category c for the period containing t.
// Week tokens are normalized to the week's anchor.
func FormatToken(c Category, t time.Time) string {
	if c == Week {
		t = WeekAnchor(t)
	}
	return t.Format(c.layout())
}

// ValidateToken checks grammar, calendar validity and, for Week tokens, the
// anchor rule.
func ValidateToken(c Category, token string) error {
	t, err := ParseToken(c, token)
	if err != nil {
		return err
	}
	if c == Week && !IsWeekAnchor(t) {
		return fmt.Errorf("%w: %s is a %s", ErrNotWeekAnchor, token, t.Weekday())
	}
	return nil
}
