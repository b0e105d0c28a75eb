// Package gdrive implements storage.Backend on Google Drive (API v3).
//
// Plan paths map onto a folder hierarchy below a base folder in the user's
// drive. Folder ids are cached per backend instance; file metadata is always
// fetched fresh. Server errors
// (5xx) are retried with exponential backoff; every other API error is
// classified and returned immediately.
package gdrive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/storage"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	planMimeType   = "text/markdown"
	rootFolderID   = "root"

	// DefaultBasePath is the folder that holds the plan tree.
	DefaultBasePath = "PlanVault"

	defaultMaxRetries      = 3
	defaultInitialInterval = time.Second
)

// Option configures a Backend.
type Option func(*Backend)

// WithBasePath sets the slash separated folder path that holds the plans.
func WithBasePath(p string) Option {
	return func(b *Backend) {
		b.basePath = strings.Trim(p, "/")
	}
}

// WithLogger sets a custom logger for the backend.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithRetry overrides the retry policy for server errors.
func WithRetry(maxRetries uint64, initialInterval time.Duration) Option {
	return func(b *Backend) {
		b.maxRetries = maxRetries
		b.initialInterval = initialInterval
	}
}

// Backend stores plans in Google Drive folders.
type Backend struct {
	svc             *drive.Service
	basePath        string
	logger          *slog.Logger
	maxRetries      uint64
	initialInterval time.Duration

	mu      sync.Mutex
	baseID  string
	folders map[string]string // parentID/name -> folder id
}

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Hasher  = (*Backend)(nil)
)

// New creates a Backend using an existing Drive service.
func New(svc *drive.Service, opts ...Option) *Backend {
	b := &Backend{
		svc:             svc,
		basePath:        DefaultBasePath,
		logger:          slog.New(slog.DiscardHandler),
		maxRetries:      defaultMaxRetries,
		initialInterval: defaultInitialInterval,
		folders:         make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewService creates a Drive service authorized by ts. Extra client options
// are applied after the token source.
func NewService(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*drive.Service, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "gdrive: create service")
	}
	return svc, nil
}

// ClearCache drops every cached folder id.
func (b *Backend) ClearCache() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baseID = ""
	clear(b.folders)
}

// Read implements storage.Backend.
func (b *Backend) Read(ctx context.Context, p string) ([]byte, error) {
	f, err := b.lookup(ctx, p)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = b.do(ctx, "download "+p, func() error {
		resp, err := b.svc.Files.Get(f.Id).Context(ctx).Download()
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write implements storage.Backend.
func (b *Backend) Write(ctx context.Context, p string, data []byte) error {
	dir, name := splitPath(p)
	parentID, err := b.folderID(ctx, dir, true)
	if err != nil {
		return err
	}
	existing, err := b.findFile(ctx, name, parentID)
	if err != nil && !storage.IsNotFound(err) {
		return err
	}

	if existing != nil {
		return b.do(ctx, "update "+p, func() error {
			_, err := b.svc.Files.Update(existing.Id, &drive.File{}).
				Media(bytes.NewReader(data), googleapi.ContentType(planMimeType)).
				Context(ctx).
				Do()
			return err
		})
	}

	var created *drive.File
	err = b.do(ctx, "create "+p, func() error {
		var err error
		created, err = b.svc.Files.Create(&drive.File{
			Name:     name,
			Parents:  []string{parentID},
			MimeType: planMimeType,
		}).
			Media(bytes.NewReader(data), googleapi.ContentType(planMimeType)).
			Fields("id").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return err
	}
	b.logger.Debug("created file", "path", p, "id", created.Id)
	return nil
}

// Exists implements storage.Backend.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	_, err := b.lookup(ctx, p)
	switch {
	case err == nil:
		return true, nil
	case storage.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Delete implements storage.Backend.
func (b *Backend) Delete(ctx context.Context, p string) (bool, error) {
	f, err := b.lookup(ctx, p)
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	err = b.do(ctx, "delete "+p, func() error {
		return b.svc.Files.Delete(f.Id).Context(ctx).Do()
	})
	if err != nil {
		return false, err
	}
	b.logger.Info("deleted file", "path", p)
	return true, nil
}

// EnsureDir implements storage.Backend.
func (b *Backend) EnsureDir(ctx context.Context, p string) error {
	_, err := b.folderID(ctx, strings.Trim(p, "/"), true)
	return err
}

// Stat implements storage.Backend.
func (b *Backend) Stat(ctx context.Context, p string) (storage.FileStats, error) {
	f, err := b.lookup(ctx, p)
	if err != nil {
		return storage.FileStats{}, err
	}
	modified, err := time.Parse(time.RFC3339, f.ModifiedTime)
	if err != nil {
		return storage.FileStats{}, errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("gdrive: parse modifiedTime of %q", p))
	}
	created := modified
	if f.CreatedTime != "" {
		created, err = time.Parse(time.RFC3339, f.CreatedTime)
		if err != nil {
			return storage.FileStats{}, errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("gdrive: parse createdTime of %q", p))
		}
	}
	data, err := b.Read(ctx, p)
	if err != nil {
		return storage.FileStats{}, err
	}
	return storage.FileStats{
		Size:       f.Size,
		CreatedAt:  created,
		ModifiedAt: modified,
		LineCount:  storage.CountLines(data),
	}, nil
}

// List implements storage.Backend. Only files are listed, sub folders are
// not part of the plan tree.
func (b *Backend) List(ctx context.Context, p string) ([]string, error) {
	folderID, err := b.folderID(ctx, strings.Trim(p, "/"), false)
	if storage.IsNotFound(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("'%s' in parents and mimeType != '%s' and trashed = false", escape(folderID), folderMimeType)
	names := []string{}
	pageToken := ""
	for {
		var page *drive.FileList
		err := b.do(ctx, "list "+p, func() error {
			var err error
			page, err = b.svc.Files.List().
				Q(q).
				Spaces("drive").
				Fields("nextPageToken, files(name)").
				OrderBy("name").
				PageToken(pageToken).
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, f := range page.Files {
			names = append(names, f.Name)
		}
		if page.NextPageToken == "" {
			return names, nil
		}
		pageToken = page.NextPageToken
	}
}

// MD5 implements storage.Hasher using Drive's md5Checksum.
func (b *Backend) MD5(ctx context.Context, p string) (string, error) {
	f, err := b.lookup(ctx, p)
	if err != nil {
		return "", err
	}
	return f.Md5Checksum, nil
}

// lookup resolves p to its file metadata without creating folders.
func (b *Backend) lookup(ctx context.Context, p string) (*drive.File, error) {
	dir, name := splitPath(p)
	parentID, err := b.folderID(ctx, dir, false)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, fmt.Errorf("gdrive: %q: %w", p, storage.ErrNotFound)
		}
		return nil, err
	}
	f, err := b.findFile(ctx, name, parentID)
	if storage.IsNotFound(err) {
		return nil, fmt.Errorf("gdrive: %q: %w", p, storage.ErrNotFound)
	}
	return f, err
}

// folderID walks dir below the base folder. With create set, missing
// folders are created, otherwise they yield ErrNotFound.
func (b *Backend) folderID(ctx context.Context, dir string, create bool) (string, error) {
	parentID, err := b.baseFolderID(ctx)
	if err != nil {
		return "", err
	}
	for _, part := range strings.Split(dir, "/") {
		if part == "" || part == "." {
			continue
		}
		if parentID, err = b.childFolder(ctx, part, parentID, create); err != nil {
			return "", err
		}
	}
	return parentID, nil
}

func (b *Backend) baseFolderID(ctx context.Context) (string, error) {
	b.mu.Lock()
	id := b.baseID
	b.mu.Unlock()
	if id != "" {
		return id, nil
	}

	id = rootFolderID
	for _, part := range strings.Split(b.basePath, "/") {
		if part == "" {
			continue
		}
		var err error
		if id, err = b.childFolder(ctx, part, id, true); err != nil {
			return "", err
		}
	}

	b.mu.Lock()
	b.baseID = id
	b.mu.Unlock()
	return id, nil
}

func (b *Backend) childFolder(ctx context.Context, name, parentID string, create bool) (string, error) {
	key := cacheKey(parentID, name)
	b.mu.Lock()
	id, ok := b.folders[key]
	b.mu.Unlock()
	if ok {
		return id, nil
	}

	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escape(name), escape(parentID), folderMimeType)
	var list *drive.FileList
	err := b.do(ctx, "find folder "+name, func() error {
		var err error
		list, err = b.svc.Files.List().Q(q).Spaces("drive").Fields("files(id, name)").Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}

	switch {
	case len(list.Files) > 0:
		id = list.Files[0].Id
	case !create:
		return "", fmt.Errorf("gdrive: folder %q: %w", name, storage.ErrNotFound)
	default:
		var folder *drive.File
		err := b.do(ctx, "create folder "+name, func() error {
			var err error
			folder, err = b.svc.Files.Create(&drive.File{
				Name:     name,
				MimeType: folderMimeType,
				Parents:  []string{parentID},
			}).Fields("id").Context(ctx).Do()
			return err
		})
		if err != nil {
			return "", err
		}
		id = folder.Id
		b.logger.Info("created folder", "name", name, "id", id)
	}

	b.mu.Lock()
	b.folders[key] = id
	b.mu.Unlock()
	return id, nil
}

func (b *Backend) findFile(ctx context.Context, name, parentID string) (*drive.File, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType != '%s' and trashed = false",
		escape(name), escape(parentID), folderMimeType)
	var list *drive.FileList
	err := b.do(ctx, "find file "+name, func() error {
		var err error
		list, err = b.svc.Files.List().
			Q(q).
			Spaces("drive").
			Fields("files(id, name, size, createdTime, modifiedTime, md5Checksum)").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(list.Files) == 0 {
		return nil, fmt.Errorf("gdrive: file %q: %w", name, storage.ErrNotFound)
	}
	return list.Files[0], nil
}

// do runs op, retrying server errors with exponential backoff.
func (b *Backend) do(ctx context.Context, desc string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.initialInterval
	policy.Multiplier = 2

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if isServerError(err) {
			b.logger.Warn("drive request failed, retrying",
				"operation", desc,
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, b.maxRetries), ctx))
	if err != nil {
		return translateError(desc, err)
	}
	return nil
}

func isServerError(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	switch gerr.Code {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// translateError maps Drive API failures onto the platform error codes.
func translateError(desc string, err error) error {
	msg := "gdrive: " + desc
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return errors.Wrap(err, errors.CodeTimeout, msg)
		}
		return errors.Wrap(err, errors.CodeNetwork, msg)
	}

	switch {
	case gerr.Code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, storage.ErrNotFound)
	case gerr.Code == http.StatusUnauthorized:
		return errors.Wrap(err, errors.CodeUnauthorized, msg)
	case gerr.Code == http.StatusTooManyRequests:
		return errors.Wrap(err, errors.CodeRateLimit, msg)
	case gerr.Code == http.StatusForbidden && isQuotaError(gerr):
		return errors.Wrap(err, errors.CodeRateLimit, msg)
	case gerr.Code == http.StatusForbidden:
		return errors.Wrap(err, errors.CodeForbidden, msg)
	case gerr.Code >= http.StatusInternalServerError:
		return errors.Wrap(err, errors.CodeUnavailable, msg)
	default:
		return errors.Wrap(err, errors.CodeExecutionFailed, msg)
	}
}

func isQuotaError(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded", "storageQuotaExceeded":
			return true
		}
	}
	return strings.Contains(gerr.Message, "rateLimitExceeded") || strings.Contains(gerr.Message, "quotaExceeded")
}

func splitPath(p string) (dir, name string) {
	p = strings.Trim(strings.ReplaceAll(p, `\`, "/"), "/")
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

func cacheKey(parentID, name string) string {
	return parentID + "/" + name
}

// escape quotes a value for use inside a Drive query string literal.
func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
