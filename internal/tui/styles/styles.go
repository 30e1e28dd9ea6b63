package styles

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	Primary    = lipgloss.Color("#7C3AED") // Purple
	Secondary  = lipgloss.Color("#10B981") // Green
	Accent     = lipgloss.Color("#F59E0B") // Amber
	Danger     = lipgloss.Color("#EF4444") // Red
	MutedColor = lipgloss.Color("#6B7280") // Gray

	Muted = lipgloss.NewStyle().
		Foreground(MutedColor)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	// Console line markers
	Marker = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true)

	WarnMsg = lipgloss.NewStyle().
		Foreground(Accent)

	ErrorMsg = lipgloss.NewStyle().
			Foreground(Danger).
			Bold(true)

	SuccessMsg = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	// Stage status indicators
	StageDone = lipgloss.NewStyle().
			Foreground(Secondary).
			SetString("✓")

	StagePending = lipgloss.NewStyle().
			Foreground(MutedColor).
			SetString("○")

	StageSkipped = lipgloss.NewStyle().
			Foreground(MutedColor).
			SetString("–")

	StageFailed = lipgloss.NewStyle().
			Foreground(Danger).
			SetString("✗")

	StageName = lipgloss.NewStyle().
			Width(20)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(Primary)

	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	HelpKey = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true)
)

// FormatHelp formats help text with highlighted keys
func FormatHelp(pairs ...string) string {
	var result string
	for i := 0; i < len(pairs); i += 2 {
		if i > 0 {
			result += "  "
		}
		result += HelpKey.Render(pairs[i]) + " " + pairs[i+1]
	}
	return HelpBar.Render(result)
}
