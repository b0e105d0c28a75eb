// Package scanner enumerates the plan files a storage backend holds.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/input-output-hk/planvault/plan"
	"github.com/input-output-hk/planvault/storage"
)

// Option configures a Scanner.
type Option func(*Scanner)

// WithCategories limits scanning to the given categories.
func WithCategories(categories []plan.Category) Option {
	return func(s *Scanner) {
		s.categories = append([]plan.Category(nil), categories...)
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// Scanner lists the ".md" files directly inside each category directory.
// Anything outside the category directories, such as settings stored next to
// the plans, is never visited.
type Scanner struct {
	categories []plan.Category
	logger     *slog.Logger
}

// New creates a Scanner covering every category by default.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		categories: plan.Categories(),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Categories returns the categories the scanner visits.
func (s *Scanner) Categories() []plan.Category {
	return append([]plan.Category(nil), s.categories...)
}

// Scan returns the sorted relative paths of the plan files held by b.
// A failed listing fails the scan, since a partial listing would be
// indistinguishable from missing files.
func (s *Scanner) Scan(ctx context.Context, b storage.Backend) ([]string, error) {
	var paths []string
	for _, c := range s.categories {
		names, err := b.List(ctx, string(c))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", c, err)
		}
		for _, name := range names {
			if !strings.HasSuffix(name, plan.Ext) {
				continue
			}
			paths = append(paths, string(c)+"/"+name)
		}
		s.logger.Debug("scanned category", "category", c, "entries", len(names))
	}
	sort.Strings(paths)
	return paths, nil
}
