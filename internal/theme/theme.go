// Package theme holds the terminal styles of mailctl listings.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailctl/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for table headers.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorBlue).
	Padding(0, 1)

// CellStyle is the base style of table cells.
var CellStyle = lipgloss.NewStyle().
	Padding(0, 1)

// BorderStyle colors table borders.
var BorderStyle = lipgloss.NewStyle().
	Foreground(ColorBorder)

// IDStyle highlights envelope aliases.
var IDStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// RootStyle is used for the synthetic root of thread trees.
var RootStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// ErrorStyle is used for error messages on stderr.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// FlagMarker returns the one-character marker shown in front of an
// envelope, with its style.
func FlagMarker(flags model.Flags) string {
	switch {
	case flags.Contains(model.FlagFlagged):
		return lipgloss.NewStyle().Bold(true).Foreground(ColorRed).Render("!")
	case !flags.Contains(model.FlagSeen):
		return lipgloss.NewStyle().Bold(true).Foreground(ColorGreen).Render("*")
	case flags.Contains(model.FlagAnswered):
		return lipgloss.NewStyle().Foreground(ColorMagenta).Render("R")
	default:
		return " "
	}
}

// SubjectStyle returns the style of a subject cell: unseen messages are
// rendered bold.
func SubjectStyle(flags model.Flags) lipgloss.Style {
	base := lipgloss.NewStyle().Foreground(ColorWhite)
	if !flags.Contains(model.FlagSeen) {
		return base.Bold(true)
	}
	return base
}

// AttachmentMarker returns a marker for envelopes carrying attachments.
func AttachmentMarker(has bool) string {
	if !has {
		return ""
	}
	return lipgloss.NewStyle().Foreground(ColorYellow).Render("@")
}
