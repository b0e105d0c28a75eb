package archive

import "time"

// IssueKind classifies a validation finding.
type IssueKind string

const (
	// KindStructure reports a malformed archive or misplaced entry.
	KindStructure IssueKind = "STRUCTURE"

	// KindFilename reports a token that does not match the category grammar.
	KindFilename IssueKind = "FILENAME"

	// KindDate reports a token that matches the grammar but is not a date.
	KindDate IssueKind = "DATE"

	// KindWeekday reports a Week token that is not a Sunday.
	KindWeekday IssueKind = "WEEKDAY"

	// KindSize reports an archive over the size ceiling.
	KindSize IssueKind = "SIZE"

	// KindSecurity reports an entry name that escapes the extraction root.
	KindSecurity IssueKind = "SECURITY"
)

// Severity tells whether an issue blocks an import.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Issues are values; they are never
// returned as errors.
type Issue struct {
	Kind     IssueKind      `json:"error_type"`
	Severity Severity       `json:"severity"`
	Path     string         `json:"file_path"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"details,omitempty"`
}

// ValidationResult is the outcome of a validate pass. IsValid is true iff
// Errors is empty.
type ValidationResult struct {
	IsValid   bool    `json:"is_valid"`
	Errors    []Issue `json:"errors"`
	Warnings  []Issue `json:"warnings"`
	FileCount int     `json:"file_count"`
}

func newValidationResult() *ValidationResult {
	return &ValidationResult{
		Errors:   []Issue{},
		Warnings: []Issue{},
	}
}

func (r *ValidationResult) add(issue Issue) {
	if issue.Severity == SeverityWarning {
		r.Warnings = append(r.Warnings, issue)
		return
	}
	issue.Severity = SeverityError
	r.Errors = append(r.Errors, issue)
}

func (r *ValidationResult) finish() *ValidationResult {
	r.IsValid = len(r.Errors) == 0
	return r
}

// HasKind reports whether any error issue has kind k.
func (r *ValidationResult) HasKind(k IssueKind) bool {
	for _, issue := range r.Errors {
		if issue.Kind == k {
			return true
		}
	}
	return false
}

// ExportResult describes an archive written by Builder.Build.
type ExportResult struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	FileCount int       `json:"file_count"`
}

// ImportResult describes a committed import.
type ImportResult struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	FileCount        int    `json:"file_count"`
	OverwrittenCount int    `json:"overwritten_count"`
}
