package archive

import (
	"bytes"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/internal/testutil"
)

func TestExtract(t *testing.T) {
	data := testutil.BuildZip(t,
		testutil.Entry{Name: "data/Year/2025.md", Content: "# 2025\n"},
	)
	zr, err := OpenZip(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	fsys := memfs.New()
	e := NewExtractor(fsys, "plans")
	require.NoError(t, e.Extract(zr.File[0], "Year/2025.md"))

	got, err := util.ReadFile(fsys, "plans/Year/2025.md")
	require.NoError(t, err)
	assert.Equal(t, "# 2025\n", string(got))
}

func TestExtract_RejectsUnsafeEntryName(t *testing.T) {
	data := testutil.BuildZip(t, testutil.Entry{Name: "Day/../../evil.md", Content: "x"})
	zr, err := OpenZip(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	fsys := memfs.New()
	err = NewExtractor(fsys, "plans").Extract(zr.File[0], "Day/evil.md")
	require.Error(t, err)
	assert.Equal(t, errors.CodeSecurity, errors.GetCode(err))

	_, statErr := fsys.Stat("plans")
	assert.Error(t, statErr, "nothing may be written")
}

func TestResolve(t *testing.T) {
	e := NewExtractor(memfs.New(), "/plans/")

	got, err := e.Resolve("Day/20251019.md")
	require.NoError(t, err)
	assert.Equal(t, "plans/Day/20251019.md", got)

	for _, rel := range []string{"../x.md", "Day/../../x.md", "/etc/passwd", `Day\..\..\x.md`} {
		_, err := e.Resolve(rel)
		assert.Equal(t, errors.CodeSecurity, errors.GetCode(err), rel)
	}
}

func TestResolve_RootAtFilesystemRoot(t *testing.T) {
	e := NewExtractor(memfs.New(), "")
	got, err := e.Resolve("Week/20251019.md")
	require.NoError(t, err)
	assert.Equal(t, "Week/20251019.md", got)
}

func TestResolve_SymlinkEscape(t *testing.T) {
	fsys := memfs.New()
	require.NoError(t, fsys.MkdirAll("outside", 0o755))
	require.NoError(t, fsys.MkdirAll("plans", 0o755))
	require.NoError(t, fsys.Symlink("../outside", "plans/Day"))

	_, err := NewExtractor(fsys, "plans").Resolve("Day/20251019.md")
	require.Error(t, err)
	assert.Equal(t, errors.CodeSecurity, errors.GetCode(err))
}
