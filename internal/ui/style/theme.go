package style

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

// Theme holds the colors and styles shared by the console reporter and the
// progress view.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color
	Muted     lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Success   lipgloss.Color

	BgMedium lipgloss.Color

	TextPrimary   lipgloss.Color
	TextSecondary lipgloss.Color
	TextMuted     lipgloss.Color

	GradientStart lipgloss.Color
	GradientEnd   lipgloss.Color

	Title       lipgloss.Style
	Label       lipgloss.Style
	PathText    lipgloss.Style
	DeletedText lipgloss.Style
	DryRunText  lipgloss.Style
	WarningText lipgloss.Style
	ErrorText   lipgloss.Style
	MutedText   lipgloss.Style
	StatText    lipgloss.Style
	SpinnerDot  lipgloss.Style
	HelpKey     lipgloss.Style
	HelpDesc    lipgloss.Style
	BoxStyle    lipgloss.Style
}

// DefaultTheme returns the default dark theme.
func DefaultTheme() Theme {
	t := Theme{
		Primary:   lipgloss.Color("#7B2FBE"),
		Secondary: lipgloss.Color("#00D4AA"),
		Accent:    lipgloss.Color("#61AFEF"),
		Muted:     lipgloss.Color("#5C6370"),
		Error:     lipgloss.Color("#E06C75"),
		Warning:   lipgloss.Color("#E5C07B"),
		Success:   lipgloss.Color("#98C379"),

		BgMedium: lipgloss.Color("#282A36"),

		TextPrimary:   lipgloss.Color("#CDD6F4"),
		TextSecondary: lipgloss.Color("#BAC2DE"),
		TextMuted:     lipgloss.Color("#6C7086"),

		GradientStart: lipgloss.Color("#7B2FBE"),
		GradientEnd:   lipgloss.Color("#00D4AA"),
	}

	t.Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.Primary)

	t.Label = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.TextPrimary)

	t.PathText = lipgloss.NewStyle().
		Foreground(t.Accent)

	t.DeletedText = lipgloss.NewStyle().
		Foreground(t.Success)

	t.DryRunText = lipgloss.NewStyle().
		Foreground(t.Secondary)

	t.WarningText = lipgloss.NewStyle().
		Foreground(t.Warning)

	t.ErrorText = lipgloss.NewStyle().
		Foreground(t.Error)

	t.MutedText = lipgloss.NewStyle().
		Foreground(t.TextMuted)

	t.StatText = lipgloss.NewStyle().
		Foreground(t.TextSecondary)

	t.SpinnerDot = lipgloss.NewStyle().
		Foreground(t.Secondary)

	t.HelpKey = lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true)

	t.HelpDesc = lipgloss.NewStyle().
		Foreground(t.TextMuted)

	t.BoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Primary).
		Padding(0, 1)

	return t
}

// GradientColor returns a color interpolated between gradient start and end.
func (t Theme) GradientColor(ratio float64) lipgloss.Color {
	if ratio <= 0 {
		return t.GradientStart
	}
	if ratio >= 1 {
		return t.GradientEnd
	}

	c1, _ := colorful.Hex(string(t.GradientStart))
	c2, _ := colorful.Hex(string(t.GradientEnd))
	blended := c1.BlendLab(c2, ratio)
	return lipgloss.Color(blended.Hex())
}

// GradientText renders s with each rune colored along the theme gradient.
// Spaces are left unstyled.
func (t Theme) GradientText(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return ""
	}

	var buf strings.Builder
	buf.Grow(len(runes) * 20) // rough estimate with ANSI codes

	for i, r := range runes {
		if r == ' ' {
			buf.WriteRune(r)
			continue
		}
		color := t.GradientColor(float64(i) / float64(max(len(runes)-1, 1)))
		buf.WriteString(lipgloss.NewStyle().Bold(true).Foreground(color).Render(string(r)))
	}
	return buf.String()
}
