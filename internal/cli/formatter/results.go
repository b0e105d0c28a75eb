package formatter

import (
	"fmt"
	"path"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/input-output-hk/planvault/archive"
	"github.com/input-output-hk/planvault/internal/sync/planner"
	"github.com/input-output-hk/planvault/synctypes"
)

// FormatExport describes a written archive located in dir.
func FormatExport(res *archive.ExportResult, dir string) string {
	var b strings.Builder
	b.WriteString(OK(fmt.Sprintf("exported %d plan files", res.FileCount)) + "\n")
	fmt.Fprintf(&b, "  %s %s\n", Dim("archive:"), path.Join(dir, res.Filename))
	fmt.Fprintf(&b, "  %s %s\n", Dim("size:   "), humanize.IBytes(uint64(res.Size)))
	fmt.Fprintf(&b, "  %s %s\n", Dim("created:"), res.CreatedAt.Format("2006-01-02 15:04:05"))
	return b.String()
}

// FormatValidation lists the issues of a validation pass.
func FormatValidation(res *archive.ValidationResult) string {
	var b strings.Builder
	if res.IsValid {
		b.WriteString(OK(fmt.Sprintf("archive is valid (%d plan files)", res.FileCount)) + "\n")
	} else {
		b.WriteString(Fail(fmt.Sprintf("archive is invalid: %d error(s)", len(res.Errors))) + "\n")
	}

	issues := append(append([]archive.Issue{}, res.Errors...), res.Warnings...)
	if len(issues) == 0 {
		return b.String()
	}

	rows := make([][]string, 0, len(issues))
	for _, is := range issues {
		where := is.Path
		if where == "" {
			where = Dim("(archive)")
		}
		rows = append(rows, []string{
			SeverityStyle(is.Severity).Render(string(is.Severity)),
			string(is.Kind),
			where,
			is.Message,
		})
	}
	b.WriteString("\n")
	b.WriteString(RenderTable([]string{"SEVERITY", "KIND", "PATH", "MESSAGE"}, rows))
	return b.String()
}

// FormatImport describes a committed import.
func FormatImport(res *archive.ImportResult) string {
	return OK(fmt.Sprintf("imported %d plan files, %d overwritten", res.FileCount, res.OverwrittenCount)) + "\n"
}

// FormatComparison renders a comparison as a table with totals.
func FormatComparison(res *synctypes.ComparisonResult) string {
	var b strings.Builder
	b.WriteString(Header("sync status") + "\n")
	if len(res.Files) == 0 {
		b.WriteString(Dim("no plan files on either side") + "\n")
		return b.String()
	}

	rows := make([][]string, 0, len(res.Files))
	for _, r := range res.Files {
		rows = append(rows, []string{
			r.RelativePath,
			StatusStyle(r.Status).Render(string(r.Status)),
			string(r.SuggestedAction),
			diffCell(r.DiffStats),
		})
	}
	b.WriteString(RenderTable([]string{"FILE", "STATUS", "ACTION", "LINES"}, rows))
	fmt.Fprintf(&b, "\n%s local only, %s cloud only, %s same, %s different\n",
		Bold(humanize.Comma(int64(res.TotalLocalOnly))),
		Bold(humanize.Comma(int64(res.TotalCloudOnly))),
		Bold(humanize.Comma(int64(res.TotalSame))),
		Bold(humanize.Comma(int64(res.TotalDifferent))))
	return b.String()
}

func diffCell(d *synctypes.DiffStats) string {
	if d == nil {
		return ""
	}
	return StyleGreen.Render(fmt.Sprintf("+%d", d.AddedLines)) + " " +
		StyleRed.Render(fmt.Sprintf("-%d", d.RemovedLines))
}

// FormatOperations lists a planned batch.
func FormatOperations(ops []synctypes.Operation) string {
	if len(ops) == 0 {
		return Dim("nothing to do") + "\n"
	}
	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		rows = append(rows, []string{string(op.Action), op.RelativePath})
	}
	return RenderTable([]string{"ACTION", "FILE"}, rows) + "\n" + planner.Summary(ops) + "\n"
}

// FormatExecute renders per-item outcomes and the totals of a batch.
func FormatExecute(res *synctypes.ExecuteResult) string {
	var b strings.Builder
	for _, r := range res.Results {
		line := fmt.Sprintf("%-8s %s", r.Action, r.RelativePath)
		if r.Success {
			b.WriteString(OK(line) + "\n")
			continue
		}
		b.WriteString(Fail(line) + " " + StyleRed.Render(r.ErrorMessage) + "\n")
	}
	fmt.Fprintf(&b, "\n%d total, %s succeeded, %s failed\n", res.Total,
		StyleGreen.Render(fmt.Sprint(res.SuccessCount)),
		StyleRed.Render(fmt.Sprint(res.FailedCount)))
	return b.String()
}

// FormatDiff shows both versions of a file one after the other.
func FormatDiff(d *synctypes.FileDiff) string {
	var b strings.Builder
	side := func(title, content string, exists bool) {
		b.WriteString(Header(title) + "\n")
		if !exists {
			b.WriteString(Dim("(missing)") + "\n\n")
			return
		}
		b.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	side("local: "+d.RelativePath, d.LocalContent, d.LocalExists)
	side("cloud: "+d.RelativePath, d.CloudContent, d.CloudExists)
	if d.DiffStats != nil {
		fmt.Fprintf(&b, "%s local lines, %s cloud lines (%s)\n",
			Bold(fmt.Sprint(d.DiffStats.LocalLines)), Bold(fmt.Sprint(d.DiffStats.CloudLines)), diffCell(d.DiffStats))
	}
	return b.String()
}
