// Package synctypes holds the value objects exchanged by the sync
// components: comparison records, operations and their results.
package synctypes

import "time"

// Status classifies a path present on at least one side of a comparison.
type Status string

const (
	StatusLocalOnly Status = "LOCAL_ONLY"
	StatusCloudOnly Status = "CLOUD_ONLY"
	StatusSame      Status = "SAME"
	StatusDifferent Status = "DIFFERENT"
)

// Action is what should happen to a path.
type Action string

const (
	ActionUpload   Action = "upload"
	ActionDownload Action = "download"
	ActionSkip     Action = "skip"
)

// Transfer reports whether a moves content between the two stores.
func (a Action) Transfer() bool {
	return a == ActionUpload || a == ActionDownload
}

// DiffStats is a coarse size delta between two versions of a file. It
// compares line counts only and says nothing about which lines changed.
type DiffStats struct {
	LocalLines   int `json:"local_lines"`
	CloudLines   int `json:"cloud_lines"`
	AddedLines   int `json:"added_lines"`
	RemovedLines int `json:"removed_lines"`
}

// NewDiffStats derives the added and removed counts from two line counts.
func NewDiffStats(localLines, cloudLines int) DiffStats {
	return DiffStats{
		LocalLines:   localLines,
		CloudLines:   cloudLines,
		AddedLines:   max(0, cloudLines-localLines),
		RemovedLines: max(0, localLines-cloudLines),
	}
}

// Record is the comparison outcome for one path.
type Record struct {
	RelativePath    string     `json:"file_path"`
	Status          Status     `json:"status"`
	LocalHash       string     `json:"local_md5,omitempty"`
	CloudHash       string     `json:"cloud_md5,omitempty"`
	LocalModifiedAt *time.Time `json:"local_modified_at,omitempty"`
	CloudModifiedAt *time.Time `json:"cloud_modified_at,omitempty"`
	DiffStats       *DiffStats `json:"diff_stats,omitempty"`
	SuggestedAction Action     `json:"suggested_action"`
}

// ComparisonResult lists every compared path with per-status totals.
type ComparisonResult struct {
	Files          []Record `json:"files"`
	TotalLocalOnly int      `json:"total_local_only"`
	TotalCloudOnly int      `json:"total_cloud_only"`
	TotalSame      int      `json:"total_same"`
	TotalDifferent int      `json:"total_different"`
}

// Add appends rec and updates the totals.
func (r *ComparisonResult) Add(rec Record) {
	r.Files = append(r.Files, rec)
	switch rec.Status {
	case StatusLocalOnly:
		r.TotalLocalOnly++
	case StatusCloudOnly:
		r.TotalCloudOnly++
	case StatusSame:
		r.TotalSame++
	case StatusDifferent:
		r.TotalDifferent++
	}
}

// Operation is one requested transfer.
type Operation struct {
	RelativePath string `json:"file_path"`
	Action       Action `json:"action"`
}

// OperationResult is the outcome of one Operation.
type OperationResult struct {
	RelativePath string `json:"file_path"`
	Action       Action `json:"action"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ExecuteResult aggregates a batch in the order it was requested.
type ExecuteResult struct {
	Total        int               `json:"total"`
	SuccessCount int               `json:"success_count"`
	FailedCount  int               `json:"failed_count"`
	Results      []OperationResult `json:"results"`
}

// Add appends res and updates the counters.
func (r *ExecuteResult) Add(res OperationResult) {
	r.Results = append(r.Results, res)
	r.Total++
	if res.Success {
		r.SuccessCount++
	} else {
		r.FailedCount++
	}
}

// FileDiff carries both versions of a file for display. A side that does
// not hold the file has an empty content and Exists set to false.
type FileDiff struct {
	RelativePath string     `json:"file_path"`
	LocalContent string     `json:"local_content"`
	CloudContent string     `json:"cloud_content"`
	LocalExists  bool       `json:"local_exists"`
	CloudExists  bool       `json:"cloud_exists"`
	DiffStats    *DiffStats `json:"diff_stats,omitempty"`
}
