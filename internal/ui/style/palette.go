package style

import "github.com/charmbracelet/lipgloss"

var (
	Cyan    = lipgloss.Color("#00E5FF")
	Magenta = lipgloss.Color("#FF1B6B")
	Yellow  = lipgloss.Color("#FFB500")
	Green   = lipgloss.Color("#2AFFAA")
	Red     = lipgloss.Color("#FF5555")
	Blue    = lipgloss.Color("#3B82F6")

	Base01 = lipgloss.Color("#6C7280") // muted text
	Base1  = lipgloss.Color("#B4BCC8") // secondary text
	Base2  = lipgloss.Color("#ECEFF4") // primary text
)

// Palette provides a centralized color management
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Info      lipgloss.Color

	Text          lipgloss.Color
	TextMuted     lipgloss.Color
	TextSecondary lipgloss.Color
}

// DefaultPalette returns the default color palette
func DefaultPalette() Palette {
	return Palette{
		Primary:   Cyan,
		Secondary: Magenta,
		Success:   Green,
		Error:     Red,
		Warning:   Yellow,
		Info:      Blue,

		Text:          Base2,
		TextMuted:     Base01,
		TextSecondary: Base1,
	}
}
