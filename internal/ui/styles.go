package ui

import "github.com/charmbracelet/lipgloss"

// 256-color palette for the terminal UI. A single warm amber accent
// keeps the display readable on both dark and light backgrounds; red
// and gold are reserved for errors and warnings.
const (
	ColorAccent    = "214" // amber, the primary accent
	ColorAccentDim = "136" // muted amber for inactive stages
	ColorText      = "255" // bright text
	ColorMuted     = "245" // labels and secondary text
	ColorFrame     = "238" // borders and separators
	ColorError     = "196"
	ColorWarn      = "220"
)

// Styles bundles every lipgloss style the renderers use.
type Styles struct {
	Header   lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Dim      lipgloss.Style
	Stage    lipgloss.Style
	Active   lipgloss.Style
	Progress lipgloss.Style

	Border    lipgloss.Style
	Panel     lipgloss.Style
	Sparkline lipgloss.Style
	Speed     lipgloss.Style
	Label     lipgloss.Style
}

// DefaultStyles returns the amber-accented styles used in TUI mode.
func DefaultStyles() Styles {
	fg := func(color string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
	}

	return Styles{
		Header:   fg(ColorAccent).Bold(true),
		Success:  fg(ColorAccent),
		Warning:  fg(ColorWarn),
		Error:    fg(ColorError),
		Dim:      fg(ColorFrame),
		Stage:    fg(ColorAccentDim),
		Active:   fg(ColorAccent).Bold(true),
		Progress: fg(ColorAccent),

		Border: fg(ColorFrame),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorFrame)).
			Padding(0, 1),
		Sparkline: fg(ColorAccent),
		Speed:     fg(ColorMuted),
		Label:     fg(ColorMuted),
	}
}

// NoColorStyles returns pass-through styles for plain output.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:    plain,
		Success:   plain,
		Warning:   plain,
		Error:     plain,
		Dim:       plain,
		Stage:     plain,
		Active:    plain,
		Progress:  plain,
		Border:    plain,
		Panel:     plain,
		Sparkline: plain,
		Speed:     plain,
		Label:     plain,
	}
}

// GetStyles picks the styled or plain set based on the color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
