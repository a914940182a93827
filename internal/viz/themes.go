package viz

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors used for tables, charts and progress output.
type Theme struct {
	Name     string
	Primary  lipgloss.Color
	Text     lipgloss.Color
	Muted    lipgloss.Color
	Border   lipgloss.Color
	Positive lipgloss.Color
	Negative lipgloss.Color
	Warning  lipgloss.Color
}

var (
	ThemeLedger = Theme{
		Name:     "ledger",
		Primary:  lipgloss.Color("#00ccff"),
		Text:     lipgloss.Color("#ffffff"),
		Muted:    lipgloss.Color("#888899"),
		Border:   lipgloss.Color("#444466"),
		Positive: lipgloss.Color("#00ff88"),
		Negative: lipgloss.Color("#ff4444"),
		Warning:  lipgloss.Color("#ffcc00"),
	}

	ThemeMinimal = Theme{
		Name:     "minimal",
		Primary:  lipgloss.Color("#ffffff"),
		Text:     lipgloss.Color("#ffffff"),
		Muted:    lipgloss.Color("#888888"),
		Border:   lipgloss.Color("#444444"),
		Positive: lipgloss.Color("#00ff00"),
		Negative: lipgloss.Color("#ff0000"),
		Warning:  lipgloss.Color("#ffaa00"),
	}

	ThemeOcean = Theme{
		Name:     "ocean",
		Primary:  lipgloss.Color("#0077be"),
		Text:     lipgloss.Color("#e0f0ff"),
		Muted:    lipgloss.Color("#4488aa"),
		Border:   lipgloss.Color("#00a8cc"),
		Positive: lipgloss.Color("#00ff88"),
		Negative: lipgloss.Color("#ff4444"),
		Warning:  lipgloss.Color("#ffd700"),
	}

	CurrentTheme = ThemeLedger

	Themes = []Theme{
		ThemeLedger,
		ThemeMinimal,
		ThemeOcean,
	}
)

// GetTheme returns a theme by name, falling back to the ledger theme.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return ThemeLedger
}

// SetTheme changes the current theme and restyles the package output.
func SetTheme(name string) {
	CurrentTheme = GetTheme(name)
	applyTheme(CurrentTheme)
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}
