package plan

import (
	"fmt"
	"path"
	"strings"

	"github.com/input-output-hk/planvault/errors"
)

// ErrInvalidPath is returned when a relative path is not of the form
// <category>/<token>.md.
var ErrInvalidPath = errors.New(errors.CodeInvalidInput, "plan: invalid plan path")

// PlanFile is one plan document.
type PlanFile struct {
	// RelativePath is always Category + "/" + Token + ".md".
	RelativePath string   `json:"relative_path"`
	Category     Category `json:"category"`
	Token        string   `json:"token"`
	Content      []byte   `json:"content"`
}

// RelativePath builds the storage path of a plan.
func RelativePath(c Category, token string) string {
	return string(c) + "/" + token + Ext
}

// ParsePath splits a storage path into category and token and validates the
// token against the category's grammar, the calendar and the week anchor rule.
func ParsePath(rel string) (Category, string, error) {
	dir, name := path.Split(rel)
	dir = strings.TrimSuffix(dir, "/")
	c, ok := ParseCategory(dir)
	if !ok || !strings.HasSuffix(name, Ext) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	token := TrimExt(name)
	if err := ValidateToken(c, token); err != nil {
		return "", "", err
	}
	return c, token, nil
}

// NewPlanFile validates rel and returns the plan document it names.
func NewPlanFile(rel string, content []byte) (*PlanFile, error) {
	c, token, err := ParsePath(rel)
	if err != nil {
		return nil, err
	}
	return &PlanFile{RelativePath: rel, Category: c, Token: token, Content: content}, nil
}

// Segments splits a slash separated path into its non-empty segments.
func Segments(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
}

// HasSegment reports whether seg appears as a whole segment of p.
func HasSegment(p, seg string) bool {
	for _, s := range Segments(p) {
		if s == seg {
			return true
		}
	}
	return false
}

// CategoryIn returns the category of the entry at p: the first of the
// canonical categories that appears as a directory segment of p. Entries
// may sit below a leading corpus-root segment ("data/Day/20250101.md") or
// in a nested folder of their category ("Day/sub/20250101.md").
func CategoryIn(p string) (Category, bool) {
	segs := Segments(p)
	if len(segs) < 2 {
		return "", false
	}
	dirs := segs[:len(segs)-1]
	for _, c := range Categories() {
		for _, s := range dirs {
			if s == string(c) {
				return c, true
			}
		}
	}
	return "", false
}
