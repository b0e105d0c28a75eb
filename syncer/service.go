// Package syncer reconciles the plans held by a local store and a remote
// store.
//
// A Service compares both sides, proposes transfers and executes them one
// at a time. Files that differ on both sides are never merged: they are
// skipped unless the caller picks a side.
package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/internal/sync/comparator"
	"github.com/input-output-hk/planvault/internal/sync/executor"
	"github.com/input-output-hk/planvault/internal/sync/planner"
	"github.com/input-output-hk/planvault/internal/sync/scanner"
	"github.com/input-output-hk/planvault/plan"
	"github.com/input-output-hk/planvault/storage"
	"github.com/input-output-hk/planvault/synctypes"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger shared by the comparator and the executor.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithCategories limits the comparison to the given categories.
func WithCategories(categories []plan.Category) Option {
	return func(s *Service) {
		s.categories = append([]plan.Category(nil), categories...)
	}
}

// WithModTimes includes modification times in comparison records.
func WithModTimes(enabled bool) Option {
	return func(s *Service) {
		s.modTimes = enabled
	}
}

// Service wires a comparator and an executor to a pair of backends.
type Service struct {
	local      storage.Backend
	cloud      storage.Backend
	categories []plan.Category
	modTimes   bool
	logger     *slog.Logger

	comparator *comparator.Comparator
	executor   *executor.Executor
}

// New creates a Service syncing local with cloud.
func New(local, cloud storage.Backend, opts ...Option) *Service {
	s := &Service{
		local:      local,
		cloud:      cloud,
		categories: plan.Categories(),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.comparator = comparator.New(
		comparator.WithLogger(s.logger),
		comparator.WithModTimes(s.modTimes),
		comparator.WithScanner(scanner.New(
			scanner.WithCategories(s.categories),
			scanner.WithLogger(s.logger),
		)),
	)
	s.executor = executor.New(executor.WithLogger(s.logger))
	return s
}

// Compare classifies every plan file found on either side.
func (s *Service) Compare(ctx context.Context) (*synctypes.ComparisonResult, error) {
	return s.comparator.Compare(ctx, s.local, s.cloud)
}

// Plan compares both sides and returns the transfers policy calls for,
// together with the comparison they were derived from.
func (s *Service) Plan(ctx context.Context, policy planner.Policy) ([]synctypes.Operation, *synctypes.ComparisonResult, error) {
	res, err := s.Compare(ctx)
	if err != nil {
		return nil, nil, err
	}
	return planner.Plan(res, policy), res, nil
}

// Execute runs ops in order. See executor.Executor.Execute for the batch
// semantics.
func (s *Service) Execute(ctx context.Context, ops []synctypes.Operation) (*synctypes.ExecuteResult, error) {
	return s.executor.Execute(ctx, s.local, s.cloud, ops)
}

// Diff returns both versions of a plan file for display.
func (s *Service) Diff(ctx context.Context, rel string) (*synctypes.FileDiff, error) {
	if _, _, err := plan.ParsePath(rel); err != nil {
		return nil, err
	}

	d := &synctypes.FileDiff{RelativePath: rel}
	localData, localOK, err := readOptional(ctx, s.local, rel)
	if err != nil {
		return nil, errors.Wrap(err, errors.GetCode(err), "read local version")
	}
	cloudData, cloudOK, err := readOptional(ctx, s.cloud, rel)
	if err != nil {
		return nil, errors.Wrap(err, errors.GetCode(err), "read remote version")
	}
	if !localOK && !cloudOK {
		return nil, errors.WrapWithContext(storage.ErrNotFound, errors.CodeNotFound,
			fmt.Sprintf("%s exists neither locally nor remotely", rel),
			map[string]any{"file_path": rel})
	}

	d.LocalContent, d.LocalExists = string(localData), localOK
	d.CloudContent, d.CloudExists = string(cloudData), cloudOK
	if localOK && cloudOK && d.LocalContent != d.CloudContent {
		stats := synctypes.NewDiffStats(storage.CountLines(localData), storage.CountLines(cloudData))
		d.DiffStats = &stats
	}
	return d, nil
}

func readOptional(ctx context.Context, b storage.Backend, p string) ([]byte, bool, error) {
	data, err := b.Read(ctx, p)
	switch {
	case err == nil:
		return data, true, nil
	case storage.IsNotFound(err):
		return nil, false, nil
	default:
		return nil, false, err
	}
}
