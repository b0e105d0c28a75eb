// Package formatter renders planvault results for the terminal.
package formatter

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/input-output-hk/planvault/archive"
	"github.com/input-output-hk/planvault/synctypes"
)

// Palette.
var (
	ColorGreen  = lipgloss.Color("#8ec07c")
	ColorYellow = lipgloss.Color("#fabd2f")
	ColorRed    = lipgloss.Color("#fb4934")
	ColorBlue   = lipgloss.Color("#83a598")
	ColorDim    = lipgloss.Color("#928374")
	ColorFg     = lipgloss.Color("#ebdbb2")
	ColorHeader = lipgloss.Color("#fe8019")
)

// Predefined lipgloss styles.
var (
	StyleGreen  = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleYellow = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleRed    = lipgloss.NewStyle().Foreground(ColorRed)
	StyleBlue   = lipgloss.NewStyle().Foreground(ColorBlue)
	StyleDim    = lipgloss.NewStyle().Foreground(ColorDim)
	StyleHeader = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
	StyleBold   = lipgloss.NewStyle().Foreground(ColorFg).Bold(true)
)

// StatusStyle returns the style used for a sync status.
func StatusStyle(s synctypes.Status) lipgloss.Style {
	switch s {
	case synctypes.StatusSame:
		return StyleGreen
	case synctypes.StatusDifferent:
		return StyleYellow
	case synctypes.StatusLocalOnly, synctypes.StatusCloudOnly:
		return StyleBlue
	default:
		return StyleDim
	}
}

// SeverityStyle returns the style used for a validation issue.
func SeverityStyle(s archive.Severity) lipgloss.Style {
	if s == archive.SeverityError {
		return StyleRed
	}
	return StyleYellow
}

// Header renders a section header with an underline.
func Header(text string) string {
	upper := strings.ToUpper(text)
	line := strings.Repeat("─", lipgloss.Width(upper))
	return fmt.Sprintf("%s\n%s", StyleHeader.Render(upper), StyleDim.Render(line))
}

// Dim renders text in the muted color.
func Dim(text string) string {
	return StyleDim.Render(text)
}

// Bold renders text in bold.
func Bold(text string) string {
	return StyleBold.Render(text)
}

// OK renders a success marker followed by text.
func OK(text string) string {
	return StyleGreen.Render("✓ ") + text
}

// Fail renders a failure marker followed by text.
func Fail(text string) string {
	return StyleRed.Render("✗ ") + text
}
