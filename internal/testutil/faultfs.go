package testutil

import (
	"errors"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
)

// ErrInjected is the default error returned by FaultFS rules.
var ErrInjected = errors.New("injected fault")

// Fault operations understood by FaultFS.
const (
	OpOpen   = "open"   // Open and read-only OpenFile
	OpWrite  = "write"  // Create and OpenFile with write flags
	OpRemove = "remove" // Remove
	OpMkdir  = "mkdir"  // MkdirAll
	OpRename = "rename" // Rename (matched on the source path)
)

type faultRule struct {
	op        string
	path      string
	err       error
	remaining int
}

// FaultFS wraps a billy filesystem and fails selected operations on
// selected paths. Everything else is delegated unchanged.
type FaultFS struct {
	billy.Filesystem

	mu    sync.Mutex
	rules []*faultRule
	hits  map[string]int
}

// NewFaultFS wraps fsys.
func NewFaultFS(fsys billy.Filesystem) *FaultFS {
	return &FaultFS{Filesystem: fsys, hits: make(map[string]int)}
}

// FailOn makes op on p fail with err (ErrInjected when nil) every time.
func (f *FaultFS) FailOn(op, p string, err error) {
	f.FailTimes(op, p, err, 0)
}

// FailTimes makes op on p fail n times; n <= 0 means forever.
func (f *FaultFS) FailTimes(op, p string, err error, n int) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &faultRule{op: op, path: clean(p), err: err, remaining: n})
}

// Reset removes every rule.
func (f *FaultFS) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

// Hits returns how many times op on p was attempted.
func (f *FaultFS) Hits(op, p string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[op+" "+clean(p)]
}

func (f *FaultFS) check(op, p string) error {
	p = clean(p)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[op+" "+p]++
	for _, r := range f.rules {
		if r.op != op || r.path != p {
			continue
		}
		if r.remaining < 0 {
			continue
		}
		if r.remaining > 0 {
			r.remaining--
			if r.remaining == 0 {
				r.remaining = -1
			}
		}
		return &os.PathError{Op: op, Path: p, Err: r.err}
	}
	return nil
}

// Create implements billy.Filesystem.
//
//nolint:ireturn // billy API.
func (f *FaultFS) Create(filename string) (billy.File, error) {
	if err := f.check(OpWrite, filename); err != nil {
		return nil, err
	}
	return f.Filesystem.Create(filename)
}

// Open implements billy.Filesystem.
//
//nolint:ireturn // billy API.
func (f *FaultFS) Open(filename string) (billy.File, error) {
	if err := f.check(OpOpen, filename); err != nil {
		return nil, err
	}
	return f.Filesystem.Open(filename)
}

// OpenFile implements billy.Filesystem.
//
//nolint:ireturn // billy API.
func (f *FaultFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	op := OpOpen
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		op = OpWrite
	}
	if err := f.check(op, filename); err != nil {
		return nil, err
	}
	return f.Filesystem.OpenFile(filename, flag, perm)
}

// Remove implements billy.Filesystem.
func (f *FaultFS) Remove(filename string) error {
	if err := f.check(OpRemove, filename); err != nil {
		return err
	}
	return f.Filesystem.Remove(filename)
}

// MkdirAll implements billy.Filesystem.
func (f *FaultFS) MkdirAll(filename string, perm os.FileMode) error {
	if err := f.check(OpMkdir, filename); err != nil {
		return err
	}
	return f.Filesystem.MkdirAll(filename, perm)
}

// Rename implements billy.Filesystem.
func (f *FaultFS) Rename(from, to string) error {
	if err := f.check(OpRename, from); err != nil {
		return err
	}
	return f.Filesystem.Rename(from, to)
}

func clean(p string) string {
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, `\`, "/")), "/")
}
