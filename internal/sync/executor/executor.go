// Package executor runs batches of transfers between a local and a remote
// backend.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/plan"
	"github.com/input-output-hk/planvault/storage"
	"github.com/input-output-hk/planvault/synctypes"
)

// ErrEmptyBatch is returned when Execute is called without operations.
var ErrEmptyBatch = errors.New(errors.CodeInvalidInput, "sync: no operations to execute")

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets a custom logger. Failed items are logged at Error level.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// Executor applies operations one at a time, in the order given. Remote
// stores are rate limited, so nothing runs in parallel.
type Executor struct {
	logger *slog.Logger
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates the whole batch before running any of it: an empty
// batch or an action other than upload or download rejects everything. Once
// running, a failing operation is recorded and the next one runs.
func (e *Executor) Execute(ctx context.Context, local, cloud storage.Backend, ops []synctypes.Operation) (*synctypes.ExecuteResult, error) {
	if err := Validate(ops); err != nil {
		return nil, err
	}

	res := &synctypes.ExecuteResult{Results: make([]synctypes.OperationResult, 0, len(ops))}
	for _, op := range ops {
		out := synctypes.OperationResult{RelativePath: op.RelativePath, Action: op.Action, Success: true}
		if err := e.apply(ctx, local, cloud, op); err != nil {
			e.logger.Error("sync operation failed", "path", op.RelativePath, "action", op.Action, "error", err)
			out.Success = false
			out.ErrorMessage = err.Error()
		} else {
			e.logger.Debug("sync operation done", "path", op.RelativePath, "action", op.Action)
		}
		res.Add(out)
	}

	e.logger.Info("sync batch complete", "total", res.Total, "succeeded", res.SuccessCount, "failed", res.FailedCount)
	return res, nil
}

// Validate checks a batch without running it.
func Validate(ops []synctypes.Operation) error {
	if len(ops) == 0 {
		return ErrEmptyBatch
	}
	for i, op := range ops {
		if !op.Action.Transfer() {
			return &errors.PlatformError{
				Code:    errors.CodeInvalidInput,
				Message: fmt.Sprintf("sync: operation %d on %q has invalid action %q", i, op.RelativePath, op.Action),
				Context: map[string]any{"index": i, "action": string(op.Action)},
			}
		}
	}
	return nil
}

func (e *Executor) apply(ctx context.Context, local, cloud storage.Backend, op synctypes.Operation) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.CodeTimeout, "sync cancelled")
	}
	if _, _, err := plan.ParsePath(op.RelativePath); err != nil {
		return err
	}

	src, dst := local, cloud
	if op.Action == synctypes.ActionDownload {
		src, dst = cloud, local
	}
	data, err := src.Read(ctx, op.RelativePath)
	if err != nil {
		return fmt.Errorf("read %q: %w", op.RelativePath, err)
	}
	if err := dst.Write(ctx, op.RelativePath, data); err != nil {
		return fmt.Errorf("write %q: %w", op.RelativePath, err)
	}
	return nil
}
