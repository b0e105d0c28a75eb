package archive

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/plan"
)

// DefaultMaxSize is the largest archive accepted, in bytes.
const DefaultMaxSize int64 = 100 * 1024 * 1024

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithMaxSize sets the archive size ceiling. Archives strictly larger than
// n bytes are rejected.
func WithMaxSize(n int64) ValidatorOption {
	return func(v *Validator) {
		v.maxSize = n
	}
}

// WithRequiredCategories overrides the categories an archive must contain.
func WithRequiredCategories(categories []plan.Category) ValidatorOption {
	return func(v *Validator) {
		v.required = append([]plan.Category(nil), categories...)
	}
}

// Validator checks archive layout, filename grammar, calendar validity, the
// week anchor rule and entry path safety. It holds no mutable state and is
// safe for concurrent use.
type Validator struct {
	maxSize  int64
	required []plan.Category
}

// NewValidator creates a Validator with the given options.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		maxSize:  DefaultMaxSize,
		required: plan.Categories(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// MaxSize returns the configured size ceiling.
func (v *Validator) MaxSize() int64 {
	return v.maxSize
}

// CheckSize returns a SIZE issue when size exceeds the ceiling.
func (v *Validator) CheckSize(name string, size int64) *Issue {
	if size <= v.maxSize {
		return nil
	}
	return &Issue{
		Kind:     KindSize,
		Severity: SeverityError,
		Path:     name,
		Message: fmt.Sprintf("archive is too large: %s (limit %s)",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(v.maxSize))),
		Context: map[string]any{
			"size_bytes":     size,
			"max_size_bytes": v.maxSize,
		},
	}
}

// CheckRequiredCategories returns the required categories that do not
// appear as a path segment of any entry.
func (v *Validator) CheckRequiredCategories(entryPaths []string) []plan.Category {
	var missing []plan.Category
	for _, c := range v.required {
		found := false
		for _, p := range entryPaths {
			if plan.HasSegment(p, string(c)) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, c)
		}
	}
	return missing
}

// CheckFilename validates a plan file name against the grammar of c.
// A grammar mismatch is a FILENAME issue, an impossible date is a DATE issue.
func (v *Validator) CheckFilename(name string, c plan.Category) *Issue {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if !c.Valid() {
		return &Issue{
			Kind:     KindStructure,
			Severity: SeverityError,
			Path:     name,
			Message:  fmt.Sprintf("unknown category %q", c),
			Context:  map[string]any{"category": string(c)},
		}
	}

	token := plan.TrimExt(base)
	if !strings.HasSuffix(base, plan.Ext) || !plan.MatchesGrammar(c, token) {
		return &Issue{
			Kind:     KindFilename,
			Severity: SeverityError,
			Path:     name,
			Message:  fmt.Sprintf("invalid file name %q, expected %s%s", base, c.TokenPattern(), plan.Ext),
			Context:  map[string]any{"category": string(c), "filename": base},
		}
	}
	if _, err := plan.ParseToken(c, token); err != nil {
		return &Issue{
			Kind:     KindDate,
			Severity: SeverityError,
			Path:     name,
			Message:  fmt.Sprintf("%s matches %s but is not a valid date", token, c.TokenPattern()),
			Context:  map[string]any{"category": string(c), "filename": base},
		}
	}
	return nil
}

// CheckWeekAnchor requires a YYYYMMDD file name to fall on a Sunday. The
// message names the actual weekday on failure.
func (v *Validator) CheckWeekAnchor(name string) *Issue {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	token := plan.TrimExt(base)
	t, err := plan.ParseToken(plan.Week, token)
	if err != nil {
		return &Issue{
			Kind:     KindWeekday,
			Severity: SeverityError,
			Path:     name,
			Message:  fmt.Sprintf("cannot parse date %q", token),
			Context:  map[string]any{"filename": base},
		}
	}
	if plan.IsWeekAnchor(t) {
		return nil
	}
	return &Issue{
		Kind:     KindWeekday,
		Severity: SeverityError,
		Path:     name,
		Message: fmt.Sprintf("%s is a %s, week plans must be named after the %s that starts the week",
			token, t.Weekday(), plan.WeekStart),
		Context: map[string]any{"filename": base, "weekday": t.Weekday().String()},
	}
}

// CheckSecurity rejects entry names that could escape the extraction root:
// parent directory segments and absolute paths.
func (v *Validator) CheckSecurity(entryName string) error {
	return checkSecurity(entryName)
}

func checkSecurity(entryName string) error {
	switch {
	case entryName == "":
		return errors.New(errors.CodeSecurity, "unsafe archive entry: empty name")
	case strings.HasPrefix(entryName, "/"), strings.HasPrefix(entryName, `\`), hasVolumeName(entryName):
		return errors.WrapWithContext(errUnsafeEntry, errors.CodeSecurity,
			fmt.Sprintf("unsafe archive entry %q: absolute path", entryName),
			map[string]any{"path": entryName})
	case plan.HasSegment(entryName, ".."):
		return errors.WrapWithContext(errUnsafeEntry, errors.CodeSecurity,
			fmt.Sprintf("unsafe archive entry %q: parent directory segment", entryName),
			map[string]any{"path": entryName})
	case strings.ContainsRune(entryName, 0):
		return errors.WrapWithContext(errUnsafeEntry, errors.CodeSecurity,
			fmt.Sprintf("unsafe archive entry %q: NUL byte", entryName),
			map[string]any{"path": entryName})
	}
	return nil
}

// errUnsafeEntry is the root cause of every security rejection.
var errUnsafeEntry = errors.New(errors.CodeSecurity, "path traversal attempt")

func hasVolumeName(name string) bool {
	return len(name) >= 2 && name[1] == ':' &&
		(name[0] >= 'a' && name[0] <= 'z' || name[0] >= 'A' && name[0] <= 'Z')
}

// Validate runs every check against an in-memory archive.
func (v *Validator) Validate(data []byte) *ValidationResult {
	return v.ValidateReaderAt(bytes.NewReader(data), int64(len(data)))
}

// ValidateReaderAt runs every check against an archive of the given size.
// The size ceiling is checked before the archive is opened. Equal input
// always yields an equal result.
func (v *Validator) ValidateReaderAt(r io.ReaderAt, size int64) *ValidationResult {
	res := newValidationResult()

	if issue := v.CheckSize("", size); issue != nil {
		res.add(*issue)
		return res.finish()
	}

	zr, err := OpenZip(r, size)
	if err != nil {
		res.add(Issue{
			Kind:    KindStructure,
			Path:    "",
			Message: "not a valid zip archive",
			Context: map[string]any{"error": err.Error()},
		})
		return res.finish()
	}

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if missing := v.CheckRequiredCategories(names); len(missing) > 0 {
		res.add(missingCategoriesIssue(missing, v.required))
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		v.checkEntry(res, f.Name)
	}

	for _, target := range DuplicateTargets(names) {
		res.add(duplicateTargetIssue(target))
	}

	for _, name := range names {
		if err := checkSecurity(name); err != nil {
			res.add(Issue{
				Kind:    KindSecurity,
				Path:    name,
				Message: err.Error(),
				Context: map[string]any{"path": name},
			})
		}
	}

	return res.finish()
}

func (v *Validator) checkEntry(res *ValidationResult, name string) {
	if path.Ext(name) != plan.Ext {
		res.add(Issue{
			Kind:     KindFilename,
			Severity: SeverityWarning,
			Path:     name,
			Message:  fmt.Sprintf("ignoring non %s file %q", plan.Ext, path.Base(name)),
			Context:  map[string]any{"suffix": path.Ext(name)},
		})
		return
	}
	res.FileCount++

	c, ok := plan.CategoryIn(name)
	if !ok {
		res.add(Issue{
			Kind:    KindStructure,
			Path:    name,
			Message: fmt.Sprintf("file %q is not inside a category directory", name),
			Context: map[string]any{"path_parts": plan.Segments(name)},
		})
		return
	}

	if issue := v.CheckFilename(name, c); issue != nil {
		res.add(*issue)
		return
	}
	if c == plan.Week {
		if issue := v.CheckWeekAnchor(name); issue != nil {
			res.add(*issue)
		}
	}
}

// OpenZip opens a zip archive. Readers that flag insecure entry names still
// return the archive; names are vetted by the security checks instead.
func OpenZip(r io.ReaderAt, size int64) (*zip.Reader, error) {
	zr, err := zip.NewReader(r, size)
	if zr != nil {
		return zr, nil
	}
	if err == nil {
		err = zip.ErrFormat
	}
	return nil, err
}

func missingCategoriesIssue(missing, required []plan.Category) Issue {
	names := make([]string, len(missing))
	for i, c := range missing {
		names[i] = string(c)
	}
	req := make([]string, len(required))
	for i, c := range required {
		req[i] = string(c)
	}
	return Issue{
		Kind:    KindStructure,
		Path:    "",
		Message: "archive is missing required directories: " + strings.Join(names, ", "),
		Context: map[string]any{"missing_dirs": names, "required_dirs": req},
	}
}

func duplicateTargetIssue(target string) Issue {
	return Issue{
		Kind:    KindStructure,
		Path:    target,
		Message: fmt.Sprintf("archive holds more than one entry for %q", target),
		Context: map[string]any{"path": target},
	}
}
