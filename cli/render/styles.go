package render

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// styles holds the lipgloss styles used by text output.
// With color disabled every style is a plain passthrough.
type styles struct {
	user      lipgloss.Style
	assistant lipgloss.Style
	notice    lipgloss.Style
	failure   lipgloss.Style
	muted     lipgloss.Style
	success   lipgloss.Style
	warning   lipgloss.Style
}

func newStyles(noColor bool) styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return styles{
			user: plain, assistant: plain, notice: plain, failure: plain,
			muted: plain, success: plain, warning: plain,
		}
	}
	return styles{
		user:      lipgloss.NewStyle().Bold(true).Foreground(highlightColor),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(primaryColor),
		notice:    lipgloss.NewStyle().Foreground(warningColor),
		failure:   lipgloss.NewStyle().Foreground(errorColor),
		muted:     lipgloss.NewStyle().Foreground(mutedColor),
		success:   lipgloss.NewStyle().Bold(true).Foreground(successColor),
		warning:   lipgloss.NewStyle().Bold(true).Foreground(warningColor),
	}
}

// status picks the style for a terminal session status.
func (s styles) status(status string) lipgloss.Style {
	switch status {
	case "completed":
		return s.success
	case "aborted":
		return s.warning
	default:
		return s.failure
	}
}
