package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/input-output-hk/planvault/config"
	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/storage"
	"github.com/input-output-hk/planvault/storage/gdrive"
	"github.com/input-output-hk/planvault/storage/minio"
	s3store "github.com/input-output-hk/planvault/storage/s3"
)

// NewRemote opens the store selected by cfg.Remote.Kind on the host.
//
//nolint:ireturn // the kind is chosen at runtime.
func NewRemote(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Backend, error) {
	r := cfg.Remote
	switch r.Kind {
	case config.RemoteMinio:
		client, err := minio.Dial(r.Endpoint, r.AccessKey, r.SecretKey, r.UseSSL)
		if err != nil {
			return nil, err
		}
		b := minio.New(client, r.Bucket, minio.WithPrefix(r.Prefix), minio.WithLogger(logger))
		if err := b.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return b, nil

	case config.RemoteS3:
		client, err := s3store.NewClient(ctx, r.Region, r.Endpoint)
		if err != nil {
			return nil, err
		}
		return s3store.New(client, r.Bucket, s3store.WithPrefix(r.Prefix), s3store.WithLogger(logger)), nil

	case config.RemoteGDrive:
		ts, err := driveTokenSource(ctx, osfs.New(""), r.CredentialsFile, r.TokenFile, logger)
		if err != nil {
			return nil, err
		}
		svc, err := gdrive.NewService(ctx, ts)
		if err != nil {
			return nil, err
		}
		return gdrive.New(svc, gdrive.WithBasePath(r.DriveFolder), gdrive.WithLogger(logger)), nil

	default:
		return nil, errors.Newf(errors.CodeInvalidConfig, "unknown remote kind %q", r.Kind)
	}
}

// driveTokenSource builds a refreshing token source from an OAuth client
// file and a previously obtained token. Refreshed tokens are written back
// to tokenFile.
//
//nolint:ireturn
func driveTokenSource(ctx context.Context, fsys billy.Filesystem, credentialsFile, tokenFile string, logger *slog.Logger) (oauth2.TokenSource, error) {
	creds, err := util.ReadFile(fsys, credentialsFile)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig, "failed to read OAuth client file",
			map[string]any{"path": credentialsFile})
	}
	oc, err := google.ConfigFromJSON(creds, drive.DriveFileScope)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to parse OAuth client file")
	}

	tok, err := readToken(fsys, tokenFile)
	if err != nil {
		return nil, err
	}

	return &savingTokenSource{
		src:    oc.TokenSource(ctx, tok),
		fsys:   fsys,
		path:   tokenFile,
		last:   tok,
		logger: logger,
	}, nil
}

func readToken(fsys billy.Filesystem, p string) (*oauth2.Token, error) {
	data, err := util.ReadFile(fsys, p)
	if err != nil {
		code := errors.CodeInternal
		if os.IsNotExist(err) {
			code = errors.CodeUnauthorized
		}
		return nil, errors.WrapWithContext(err, code, "failed to read OAuth token",
			map[string]any{"path": p})
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig, "failed to decode OAuth token",
			map[string]any{"path": p})
	}
	return tok, nil
}

// savingTokenSource persists a token whenever the wrapped source hands out
// a new one.
type savingTokenSource struct {
	src    oauth2.TokenSource
	fsys   billy.Filesystem
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil && tok.AccessToken == s.last.AccessToken && tok.RefreshToken == s.last.RefreshToken {
		return tok, nil
	}
	s.last = tok
	if err := writeToken(s.fsys, s.path, tok); err != nil {
		// The token is still usable for this run.
		s.logger.Warn("failed to save refreshed token", "path", s.path, "error", err)
	}
	return tok, nil
}

func writeToken(fsys billy.Filesystem, p string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return util.WriteFile(fsys, p, data, 0o600)
}
