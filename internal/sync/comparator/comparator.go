// Package comparator classifies the plan files held by a local and a remote
// backend by content hash.
package comparator

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary.
	"encoding/hex"
	"log/slog"
	"sort"
	"time"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/internal/sync/scanner"
	"github.com/input-output-hk/planvault/storage"
	"github.com/input-output-hk/planvault/synctypes"
)

// Option configures a Comparator.
type Option func(*Comparator)

// WithLogger sets a custom logger. Per-file faults are logged at Warn level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Comparator) {
		c.logger = logger
	}
}

// WithScanner sets the scanner that enumerates both sides.
func WithScanner(s *scanner.Scanner) Option {
	return func(c *Comparator) {
		c.scanner = s
	}
}

// WithModTimes makes Compare fill in modification times. Each present file
// then costs one Stat call per side.
func WithModTimes(enabled bool) Option {
	return func(c *Comparator) {
		c.modTimes = enabled
	}
}

// Comparator computes sync records. It processes one file at a time.
type Comparator struct {
	scanner  *scanner.Scanner
	logger   *slog.Logger
	modTimes bool
}

// New creates a Comparator.
func New(opts ...Option) *Comparator {
	c := &Comparator{
		scanner: scanner.New(),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// fingerprint is a file's MD5 and, when it had to be downloaded, its content.
type fingerprint struct {
	hash string
	data []byte
}

// Compare classifies the union of plan paths on both backends. A file whose
// hash, content or stats cannot be read is logged and left out of the result.
func (c *Comparator) Compare(ctx context.Context, local, cloud storage.Backend) (*synctypes.ComparisonResult, error) {
	localPaths, err := c.scanner.Scan(ctx, local)
	if err != nil {
		return nil, errors.Wrap(err, errors.GetCode(err), "scan local plans")
	}
	cloudPaths, err := c.scanner.Scan(ctx, cloud)
	if err != nil {
		return nil, errors.Wrap(err, errors.GetCode(err), "scan remote plans")
	}

	onLocal := toSet(localPaths)
	onCloud := toSet(cloudPaths)
	union := make([]string, 0, len(onLocal)+len(onCloud))
	for p := range onLocal {
		union = append(union, p)
	}
	for p := range onCloud {
		if _, ok := onLocal[p]; !ok {
			union = append(union, p)
		}
	}
	sort.Strings(union)

	res := &synctypes.ComparisonResult{Files: []synctypes.Record{}}
	for _, p := range union {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeTimeout, "compare cancelled")
		}
		_, l := onLocal[p]
		_, r := onCloud[p]

		rec, err := c.classify(ctx, local, cloud, p, l, r)
		if err != nil {
			c.logger.Warn("skipping file", "path", p, "error", err)
			continue
		}
		res.Add(rec)
	}

	c.logger.Info("comparison complete",
		"local_only", res.TotalLocalOnly,
		"cloud_only", res.TotalCloudOnly,
		"same", res.TotalSame,
		"different", res.TotalDifferent)
	return res, nil
}

func (c *Comparator) classify(ctx context.Context, local, cloud storage.Backend, p string, onLocal, onCloud bool) (synctypes.Record, error) {
	rec := synctypes.Record{RelativePath: p}

	var lf, cf fingerprint
	var err error
	if onLocal {
		if lf, err = c.fingerprint(ctx, local, p); err != nil {
			return rec, err
		}
		rec.LocalHash = lf.hash
		if rec.LocalModifiedAt, err = c.modTime(ctx, local, p); err != nil {
			return rec, err
		}
	}
	if onCloud {
		if cf, err = c.fingerprint(ctx, cloud, p); err != nil {
			return rec, err
		}
		rec.CloudHash = cf.hash
		if rec.CloudModifiedAt, err = c.modTime(ctx, cloud, p); err != nil {
			return rec, err
		}
	}

	switch {
	case !onCloud:
		rec.Status = synctypes.StatusLocalOnly
		rec.SuggestedAction = synctypes.ActionUpload
	case !onLocal:
		rec.Status = synctypes.StatusCloudOnly
		rec.SuggestedAction = synctypes.ActionDownload
	case lf.hash == cf.hash:
		rec.Status = synctypes.StatusSame
		rec.SuggestedAction = synctypes.ActionSkip
	default:
		localLines, err := c.lines(ctx, local, p, lf)
		if err != nil {
			return rec, err
		}
		cloudLines, err := c.lines(ctx, cloud, p, cf)
		if err != nil {
			return rec, err
		}
		stats := synctypes.NewDiffStats(localLines, cloudLines)
		rec.Status = synctypes.StatusDifferent
		rec.SuggestedAction = synctypes.ActionSkip
		rec.DiffStats = &stats
	}
	return rec, nil
}

// fingerprint asks the backend for a digest and falls back to hashing the
// downloaded content.
func (c *Comparator) fingerprint(ctx context.Context, b storage.Backend, p string) (fingerprint, error) {
	if h, ok := b.(storage.Hasher); ok {
		sum, err := h.MD5(ctx, p)
		if err != nil {
			return fingerprint{}, err
		}
		if sum != "" {
			return fingerprint{hash: sum}, nil
		}
	}
	data, err := b.Read(ctx, p)
	if err != nil {
		return fingerprint{}, err
	}
	return fingerprint{hash: Sum(data), data: data}, nil
}

func (c *Comparator) lines(ctx context.Context, b storage.Backend, p string, fp fingerprint) (int, error) {
	data := fp.data
	if data == nil {
		var err error
		if data, err = b.Read(ctx, p); err != nil {
			return 0, err
		}
	}
	return storage.CountLines(data), nil
}

func (c *Comparator) modTime(ctx context.Context, b storage.Backend, p string) (*time.Time, error) {
	if !c.modTimes {
		return nil, nil
	}
	st, err := b.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	t := st.ModifiedAt.UTC()
	return &t, nil
}

// Sum returns the MD5 hex digest of data.
func Sum(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // content fingerprint.
	return hex.EncodeToString(sum[:])
}

func toSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}
