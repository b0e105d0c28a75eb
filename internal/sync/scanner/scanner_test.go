package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/plan"
	"github.com/input-output-hk/planvault/storage"
	"github.com/input-output-hk/planvault/storage/local"
)

type failingList struct {
	storage.Backend
	dir string
}

func (f failingList) List(ctx context.Context, p string) ([]string, error) {
	if p == f.dir {
		return nil, errors.New(errors.CodeNetwork, "connection reset")
	}
	return f.Backend.List(ctx, p)
}

func seed(t *testing.T, files map[string]string) *local.Backend {
	t.Helper()
	b := local.NewInMemory()
	for p, content := range files {
		require.NoError(t, b.Write(context.Background(), p, []byte(content)))
	}
	return b
}

func TestScan(t *testing.T) {
	b := seed(t, map[string]string{
		"Day/20251020.md":    "x",
		"Day/20251019.md":    "x",
		"Day/notes.txt":      "x",
		"Year/2025.md":       "x",
		"Settings/prefs.md":  "x",
		"Day/archive/old.md": "x",
	})

	paths, err := New().Scan(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, []string{"Day/20251019.md", "Day/20251020.md", "Year/2025.md"}, paths)
}

func TestScan_Categories(t *testing.T) {
	b := seed(t, map[string]string{"Day/20251019.md": "x", "Year/2025.md": "x"})

	s := New(WithCategories([]plan.Category{plan.Year}))
	paths, err := s.Scan(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, []string{"Year/2025.md"}, paths)
	assert.Equal(t, []plan.Category{plan.Year}, s.Categories())
}

func TestScan_Empty(t *testing.T) {
	paths, err := New().Scan(context.Background(), local.NewInMemory())
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestScan_ListFailure(t *testing.T) {
	b := failingList{Backend: seed(t, map[string]string{"Day/20251019.md": "x"}), dir: "Month"}

	_, err := New().Scan(context.Background(), b)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNetwork, errors.GetCode(err))
	assert.Contains(t, err.Error(), "list Month")
}
