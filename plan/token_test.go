package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/planvault/errors"
)

func TestParseToken(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		token    string
		wantErr  error
		want     time.Time
	}{
		{name: "day", category: Day, token: "20251019", want: time.Date(2025, 10, 19, 0, 0, 0, 0, time.UTC)},
		{name: "month", category: Month, token: "202510", want: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)},
		{name: "year", category: Year, token: "2025", want: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "leap day", category: Day, token: "20240229", want: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{name: "day too short", category: Day, token: "2025101", wantErr: ErrTokenFormat},
		{name: "day letters", category: Day, token: "2025l019", wantErr: ErrTokenFormat},
		{name: "month with day", category: Month, token: "20251019", wantErr: ErrTokenFormat},
		{name: "year too long", category: Year, token: "20250", wantErr: ErrTokenFormat},
		{name: "unknown category", category: Category("Quarter"), token: "2025", wantErr: ErrTokenFormat},
		{name: "month 13", category: Month, token: "202513", wantErr: ErrTokenDate},
		{name: "feb 30", category: Day, token: "20250230", wantErr: ErrTokenDate},
		{name: "non leap feb 29", category: Day, token: "20250229", wantErr: ErrTokenDate},
		{name: "year zero", category: Year, token: "0000", wantErr: ErrTokenDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseToken(tt.category, tt.token)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestValidateToken_WeekAnchor(t *testing.T) {
	require.NoError(t, ValidateToken(Week, "20251019"))

	err := ValidateToken(Week, "20251020")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotWeekAnchor)
	assert.Contains(t, err.Error(), "Monday")

	// the anchor rule only applies to weeks
	assert.NoError(t, ValidateToken(Day, "20251020"))
}

func TestWeekAnchor(t *testing.T) {
	sunday := time.Date(2025, 10, 19, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		day := sunday.AddDate(0, 0, i)
		assert.True(t, sunday.Equal(WeekAnchor(day)), "anchor of %s", day.Weekday())
	}
	assert.True(t, IsWeekAnchor(sunday))
	assert.False(t, IsWeekAnchor(sunday.AddDate(0, 0, 1)))
}

func TestFormatToken(t *testing.T) {
	ts := time.Date(2025, 10, 22, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "20251022", FormatToken(Day, ts))
	assert.Equal(t, "20251019", FormatToken(Week, ts))
	assert.Equal(t, "202510", FormatToken(Month, ts))
	assert.Equal(t, "2025", FormatToken(Year, ts))
}
