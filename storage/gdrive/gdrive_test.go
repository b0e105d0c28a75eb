package gdrive

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/storage"
	"github.com/input-output-hk/planvault/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.TestSuite(t, func(t *testing.T) storage.Backend {
		return newTestBackend(t, newFakeDrive(), WithBasePath("Apps/PlanVault"))
	})
}

func TestBackend_CreatesFolderHierarchy(t *testing.T) {
	fd := newFakeDrive()
	b := newTestBackend(t, fd, WithBasePath("Apps/PlanVault"))
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "Day/20251019.md", []byte("x")))

	folders := map[string]string{}
	for _, f := range fd.files {
		if f.MimeType == folderMimeType {
			folders[f.Name] = f.Parent
		}
	}
	require.Len(t, folders, 3)
	assert.Equal(t, rootFolderID, folders["Apps"])
	assert.NotEqual(t, rootFolderID, folders["PlanVault"])
	assert.NotEqual(t, rootFolderID, folders["Day"])

	// a second write reuses cached folder ids and updates in place
	require.NoError(t, b.Write(ctx, "Day/20251019.md", []byte("y")))
	assert.Len(t, fd.files, 4)
}

func TestBackend_ReadDoesNotCreateFolders(t *testing.T) {
	fd := newFakeDrive()
	b := newTestBackend(t, fd)

	_, err := b.Read(context.Background(), "Week/20251019.md")
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err))

	for _, f := range fd.files {
		assert.NotEqual(t, "Week", f.Name)
	}
}

func TestBackend_StatReportsCreatedTime(t *testing.T) {
	fd := newFakeDrive()
	b := newTestBackend(t, fd)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "Day/20251019.md", []byte("x")))
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, f := range fd.files {
		if f.Name == "20251019.md" {
			f.Created = created
		}
	}

	st, err := b.Stat(ctx, "Day/20251019.md")
	require.NoError(t, err)
	assert.True(t, created.Equal(st.CreatedAt), "got %v", st.CreatedAt)
	assert.True(t, st.ModifiedAt.After(created))
}

func TestBackend_RetriesServerErrors(t *testing.T) {
	fd := newFakeDrive()
	b := newTestBackend(t, fd)
	ctx := context.Background()
	require.NoError(t, b.Write(ctx, "Year/2025.md", []byte("goals")))

	fd.mu.Lock()
	fd.failures = []int{http.StatusServiceUnavailable, http.StatusBadGateway}
	fd.reason = "backendError"
	fd.mu.Unlock()

	data, err := b.Read(ctx, "Year/2025.md")
	require.NoError(t, err)
	assert.Equal(t, "goals", string(data))
}

func TestBackend_GivesUpAfterRetries(t *testing.T) {
	fd := newFakeDrive()
	b := newTestBackend(t, fd)
	ctx := context.Background()
	require.NoError(t, b.EnsureDir(ctx, "Day"))

	fd.mu.Lock()
	fd.failures = []int{500, 500, 500, 500, 500}
	fd.reason = "backendError"
	before := fd.requests
	fd.mu.Unlock()

	_, err := b.Exists(ctx, "Day/20251019.md")
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))

	fd.mu.Lock()
	defer fd.mu.Unlock()
	assert.Equal(t, 4, fd.requests-before, "one attempt plus three retries")
}

func TestBackend_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reason string
		want   errors.ErrorCode
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, reason: "authError", want: errors.CodeUnauthorized},
		{name: "rate limit", status: http.StatusForbidden, reason: "rateLimitExceeded", want: errors.CodeRateLimit},
		{name: "user rate limit", status: http.StatusForbidden, reason: "userRateLimitExceeded", want: errors.CodeRateLimit},
		{name: "quota", status: http.StatusForbidden, reason: "quotaExceeded", want: errors.CodeRateLimit},
		{name: "forbidden", status: http.StatusForbidden, reason: "insufficientPermissions", want: errors.CodeForbidden},
		{name: "too many requests", status: http.StatusTooManyRequests, reason: "rateLimitExceeded", want: errors.CodeRateLimit},
		{name: "bad request", status: http.StatusBadRequest, reason: "invalid", want: errors.CodeExecutionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := newFakeDrive()
			fd.failures = []int{tt.status}
			fd.reason = tt.reason
			b := newTestBackend(t, fd)

			_, err := b.Read(context.Background(), "Day/20251019.md")
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.GetCode(err))

			fd.mu.Lock()
			defer fd.mu.Unlock()
			assert.Equal(t, 1, fd.requests, "client errors are not retried")
		})
	}
}

func TestBackend_ListSkipsFolders(t *testing.T) {
	fd := newFakeDrive()
	b := newTestBackend(t, fd)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "Day/20251019.md", []byte("a")))
	require.NoError(t, b.EnsureDir(ctx, "Day/attachments"))

	names, err := b.List(ctx, "Day")
	require.NoError(t, err)
	assert.Equal(t, []string{"20251019.md"}, names)
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `it\'s`, escape("it's"))
	assert.Equal(t, `a\\b`, escape(`a\b`))
}
