package style

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/willwe-xyz/willwe-app/internal/notify"
)

// ToastStyles provides styling for lifecycle notifications
type ToastStyles struct {
	Container   lipgloss.Style
	Title       lipgloss.Style
	Description lipgloss.Style
	Link        lipgloss.Style
	Summary     lipgloss.Style
	Failure     lipgloss.Style
	Help        lipgloss.Style

	status map[notify.Status]lipgloss.Style
}

func NewToastStyles(palette Palette) ToastStyles {
	return ToastStyles{
		Container: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.TextMuted).
			Padding(0, 1).
			MarginBottom(1),

		Title: lipgloss.NewStyle().
			Foreground(palette.Text).
			Bold(true),

		Description: lipgloss.NewStyle().
			Foreground(palette.TextSecondary),

		Link: lipgloss.NewStyle().
			Foreground(palette.Info).
			Underline(true),

		Summary: lipgloss.NewStyle().
			Foreground(palette.Success).
			Bold(true),

		Failure: lipgloss.NewStyle().
			Foreground(palette.Error).
			Bold(true),

		Help: lipgloss.NewStyle().
			Foreground(palette.TextMuted).
			Italic(true),

		status: map[notify.Status]lipgloss.Style{
			notify.StatusInfo:    lipgloss.NewStyle().Foreground(palette.Info).Bold(true),
			notify.StatusPending: lipgloss.NewStyle().Foreground(palette.Primary).Bold(true),
			notify.StatusSuccess: lipgloss.NewStyle().Foreground(palette.Success).Bold(true),
			notify.StatusWarning: lipgloss.NewStyle().Foreground(palette.Warning).Bold(true),
			notify.StatusError:   lipgloss.NewStyle().Foreground(palette.Error).Bold(true),
		},
	}
}

// Status returns the accent style for a notification status.
func (s ToastStyles) Status(st notify.Status) lipgloss.Style {
	if style, ok := s.status[st]; ok {
		return style
	}
	return s.Title
}

// Border returns the container tinted for st.
func (s ToastStyles) Border(st notify.Status) lipgloss.Style {
	return s.Container.BorderForeground(s.Status(st).GetForeground())
}

// Icon is the glyph shown before a title. Pending notifications use a
// spinner instead.
func Icon(st notify.Status) string {
	switch st {
	case notify.StatusSuccess:
		return "✓"
	case notify.StatusWarning:
		return "!"
	case notify.StatusError:
		return "✗"
	case notify.StatusPending:
		return "…"
	default:
		return "i"
	}
}
