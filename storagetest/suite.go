// Package storagetest provides a conformance suite for storage.Backend
// implementations.
//
// Every backend package runs the suite against a fresh, empty store:
//
//	func TestConformance(t *testing.T) {
//	    storagetest.TestSuite(t, func(t *testing.T) storage.Backend {
//	        return local.NewInMemory()
//	    })
//	}
package storagetest

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/planvault/storage"
)

// TestSuite runs every conformance test. newBackend must return an empty
// store each time it is called.
func TestSuite(t *testing.T, newBackend func(t *testing.T) storage.Backend) {
	TestSuiteWithSkip(t, newBackend, nil)
}

// TestSuiteWithSkip runs the conformance tests, skipping the named ones.
func TestSuiteWithSkip(t *testing.T, newBackend func(t *testing.T) storage.Backend, skipTests []string) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b storage.Backend)
	}{
		{"WriteRead", testWriteRead},
		{"Overwrite", testOverwrite},
		{"ReadMissing", testReadMissing},
		{"Exists", testExists},
		{"Delete", testDelete},
		{"Stat", testStat},
		{"StatMissing", testStatMissing},
		{"List", testList},
		{"ListMissing", testListMissing},
		{"EnsureDir", testEnsureDir},
		{"Hasher", testHasher},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if slices.Contains(skipTests, tt.name) {
				t.Skip("Skipped by provider configuration")
				return
			}
			tt.fn(t, newBackend(t))
		})
	}
}

func testWriteRead(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	data := []byte("# Sunday\n- plan the week\n")

	require.NoError(t, b.Write(ctx, "Day/20251019.md", data))

	got, err := b.Read(ctx, "Day/20251019.md")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func testOverwrite(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "Month/202510.md", []byte("first version, longer")))
	require.NoError(t, b.Write(ctx, "Month/202510.md", []byte("second")))

	got, err := b.Read(ctx, "Month/202510.md")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func testReadMissing(t *testing.T, b storage.Backend) {
	_, err := b.Read(context.Background(), "Day/19990101.md")
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err), "want ErrNotFound, got %v", err)
}

func testExists(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	ok, err := b.Exists(ctx, "Year/2025.md")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Write(ctx, "Year/2025.md", []byte("goals")))

	ok, err = b.Exists(ctx, "Year/2025.md")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testDelete(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Write(ctx, "Week/20251019.md", []byte("w")))

	removed, err := b.Delete(ctx, "Week/20251019.md")
	require.NoError(t, err)
	assert.True(t, removed)

	ok, err := b.Exists(ctx, "Week/20251019.md")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err = b.Delete(ctx, "Week/20251019.md")
	require.NoError(t, err)
	assert.False(t, removed)
}

func testStat(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Write(ctx, "Day/20251020.md", []byte("one\ntwo\nthree\n")))

	st, err := b.Stat(ctx, "Day/20251020.md")
	require.NoError(t, err)
	assert.Equal(t, int64(14), st.Size)
	assert.Equal(t, 3, st.LineCount)
	assert.False(t, st.ModifiedAt.IsZero())
	assert.False(t, st.CreatedAt.IsZero())
	assert.False(t, st.CreatedAt.After(st.ModifiedAt), "created %v after modified %v", st.CreatedAt, st.ModifiedAt)
}

func testStatMissing(t *testing.T, b storage.Backend) {
	_, err := b.Stat(context.Background(), "Day/19990101.md")
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err), "want ErrNotFound, got %v", err)
}

func testList(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	for _, p := range []string{"Day/20251019.md", "Day/20251020.md", "Week/20251019.md"} {
		require.NoError(t, b.Write(ctx, p, []byte(p)))
	}

	names, err := b.List(ctx, "Day")
	require.NoError(t, err)
	slices.Sort(names)
	assert.Equal(t, []string{"20251019.md", "20251020.md"}, names)
}

func testListMissing(t *testing.T, b storage.Backend) {
	names, err := b.List(context.Background(), "Year")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func testEnsureDir(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.EnsureDir(ctx, "Month"))
	require.NoError(t, b.EnsureDir(ctx, "Month"))
	require.NoError(t, b.Write(ctx, "Month/202510.md", []byte("m")))
}

func testHasher(t *testing.T, b storage.Backend) {
	h, ok := b.(storage.Hasher)
	if !ok {
		t.Skip("backend does not implement storage.Hasher")
		return
	}
	ctx := context.Background()
	require.NoError(t, b.Write(ctx, "Day/20251019.md", []byte("hello")))

	sum, err := h.MD5(ctx, "Day/20251019.md")
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", sum)
}
