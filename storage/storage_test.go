package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/input-output-hk/planvault/errors"
)

func TestCountLines(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{in: "", want: 0},
		{in: "a", want: 1},
		{in: "a\n", want: 1},
		{in: "a\nb", want: 2},
		{in: "a\nb\n", want: 2},
		{in: "\n", want: 1},
		{in: "\n\n", want: 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CountLines([]byte(tt.in)), "%q", tt.in)
	}
}

func TestIsNotFound(t *testing.T) {
	err := fmt.Errorf("billy: read %q: %w", "Day/x.md", ErrNotFound)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	assert.False(t, IsNotFound(errors.New(errors.CodeInternal, "boom")))
}
