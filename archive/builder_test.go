package archive

import (
	"bytes"
	"context"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/internal/testutil"
)

var buildTime = time.Date(2025, 10, 19, 10, 15, 0, 0, time.UTC)

func fixedClock() time.Time { return buildTime }

func TestBuild(t *testing.T) {
	src := memfs.New()
	corpus := testutil.SampleCorpus()
	testutil.WriteCorpus(t, src, "data", corpus)
	testutil.WriteCorpus(t, src, "data", map[string]string{"Day/scratch.txt": "not a plan"})

	out := memfs.New()
	res, err := NewBuilder(out, WithClock(fixedClock)).Build(context.Background(), src, "data")
	require.NoError(t, err)

	assert.Equal(t, "plans_export_20251019_101500.zip", res.Filename)
	assert.Equal(t, 5, res.FileCount)
	assert.Equal(t, buildTime, res.CreatedAt)

	data, err := util.ReadFile(out, res.Filename)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), res.Size)

	want := make([]string, 0, len(corpus))
	for name := range corpus {
		want = append(want, name)
	}
	sort.Strings(want)
	assert.Equal(t, want, testutil.ZipNames(t, data))
	assert.Equal(t, []string{"Day/", "Week/", "Month/", "Year/"}, testutil.ZipDirs(t, data))

	assert.True(t, NewValidator().Validate(data).IsValid)
}

func TestBuild_NameCollision(t *testing.T) {
	src := memfs.New()
	testutil.WriteCorpus(t, src, "data", testutil.SampleCorpus())
	out := memfs.New()
	b := NewBuilder(out, WithClock(fixedClock))

	names := []string{}
	for i := 0; i < 3; i++ {
		res, err := b.Build(context.Background(), src, "data")
		require.NoError(t, err)
		names = append(names, res.Filename)
	}
	assert.Equal(t, []string{
		"plans_export_20251019_101500.zip",
		"plans_export_20251019_101500_1.zip",
		"plans_export_20251019_101500_2.zip",
	}, names)
}

func TestBuild_MissingRoot(t *testing.T) {
	out := memfs.New()
	_, err := NewBuilder(out, WithClock(fixedClock)).Build(context.Background(), memfs.New(), "data")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	_, statErr := out.Stat("plans_export_20251019_101500.zip")
	assert.Error(t, statErr)
}

func TestBuild_RemovesPartialArchive(t *testing.T) {
	src := testutil.NewFaultFS(memfs.New())
	testutil.WriteCorpus(t, src, "data", testutil.SampleCorpus())
	src.FailOn(testutil.OpOpen, "data/Month/202510.md", nil)

	out := memfs.New()
	_, err := NewBuilder(out, WithClock(fixedClock)).Build(context.Background(), src, "data")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInternal, errors.GetCode(err))
	assert.ErrorIs(t, err, testutil.ErrInjected)

	_, statErr := out.Stat("plans_export_20251019_101500.zip")
	assert.Error(t, statErr, "partial archive must be removed")
}

func TestWriteArchive_EmptyRoot(t *testing.T) {
	src := memfs.New()
	require.NoError(t, src.MkdirAll("data", 0o755))

	var buf bytes.Buffer
	n, err := NewBuilder(memfs.New()).WriteArchive(context.Background(), src, "data", &buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, testutil.ZipNames(t, buf.Bytes()))
	assert.Len(t, testutil.ZipDirs(t, buf.Bytes()), 4)

	res := NewValidator().Validate(buf.Bytes())
	assert.True(t, res.IsValid, "an empty corpus still exports every category")
	assert.Zero(t, res.FileCount)
}

func TestWriteArchive_Cancelled(t *testing.T) {
	src := memfs.New()
	testutil.WriteCorpus(t, src, "data", testutil.SampleCorpus())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err := WriteArchive(ctx, src, "data", &buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
