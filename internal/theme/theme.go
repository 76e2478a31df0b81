package theme

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the TUI color palette plus the glamour style used for page
// bodies.
type Theme struct {
	Name    string
	Glamour string

	Primary     lipgloss.Color
	Accent      lipgloss.Color
	Text        lipgloss.Color
	TextDim     lipgloss.Color
	TextBright  lipgloss.Color
	Background  lipgloss.Color
	Surface     lipgloss.Color
	Border      lipgloss.Color
	BorderFocus lipgloss.Color
	Selection   lipgloss.Color
	Link        lipgloss.Color
	Error       lipgloss.Color
	Success     lipgloss.Color
	Warning     lipgloss.Color
}

var Default = Theme{
	Name:        "default",
	Glamour:     "dark",
	Primary:     lipgloss.Color("#7C3AED"),
	Accent:      lipgloss.Color("#F59E0B"),
	Text:        lipgloss.Color("#E2E8F0"),
	TextDim:     lipgloss.Color("#64748B"),
	TextBright:  lipgloss.Color("#F8FAFC"),
	Background:  lipgloss.Color("#0F172A"),
	Surface:     lipgloss.Color("#1E293B"),
	Border:      lipgloss.Color("#334155"),
	BorderFocus: lipgloss.Color("#7C3AED"),
	Selection:   lipgloss.Color("#4C1D95"),
	Link:        lipgloss.Color("#38BDF8"),
	Error:       lipgloss.Color("#EF4444"),
	Success:     lipgloss.Color("#22C55E"),
	Warning:     lipgloss.Color("#F59E0B"),
}

var Light = Theme{
	Name:        "light",
	Glamour:     "light",
	Primary:     lipgloss.Color("#6D28D9"),
	Accent:      lipgloss.Color("#B45309"),
	Text:        lipgloss.Color("#1E293B"),
	TextDim:     lipgloss.Color("#64748B"),
	TextBright:  lipgloss.Color("#020617"),
	Background:  lipgloss.Color("#F8FAFC"),
	Surface:     lipgloss.Color("#E2E8F0"),
	Border:      lipgloss.Color("#CBD5E1"),
	BorderFocus: lipgloss.Color("#6D28D9"),
	Selection:   lipgloss.Color("#DDD6FE"),
	Link:        lipgloss.Color("#0369A1"),
	Error:       lipgloss.Color("#B91C1C"),
	Success:     lipgloss.Color("#15803D"),
	Warning:     lipgloss.Color("#B45309"),
}

var Nord = Theme{
	Name:        "nord",
	Glamour:     "dark",
	Primary:     lipgloss.Color("#88C0D0"),
	Accent:      lipgloss.Color("#EBCB8B"),
	Text:        lipgloss.Color("#D8DEE9"),
	TextDim:     lipgloss.Color("#4C566A"),
	TextBright:  lipgloss.Color("#ECEFF4"),
	Background:  lipgloss.Color("#2E3440"),
	Surface:     lipgloss.Color("#3B4252"),
	Border:      lipgloss.Color("#434C5E"),
	BorderFocus: lipgloss.Color("#88C0D0"),
	Selection:   lipgloss.Color("#5E81AC"),
	Link:        lipgloss.Color("#81A1C1"),
	Error:       lipgloss.Color("#BF616A"),
	Success:     lipgloss.Color("#A3BE8C"),
	Warning:     lipgloss.Color("#D08770"),
}

var Dracula = Theme{
	Name:        "dracula",
	Glamour:     "dracula",
	Primary:     lipgloss.Color("#BD93F9"),
	Accent:      lipgloss.Color("#FFB86C"),
	Text:        lipgloss.Color("#F8F8F2"),
	TextDim:     lipgloss.Color("#6272A4"),
	TextBright:  lipgloss.Color("#FFFFFF"),
	Background:  lipgloss.Color("#282A36"),
	Surface:     lipgloss.Color("#44475A"),
	Border:      lipgloss.Color("#44475A"),
	BorderFocus: lipgloss.Color("#FF79C6"),
	Selection:   lipgloss.Color("#6272A4"),
	Link:        lipgloss.Color("#8BE9FD"),
	Error:       lipgloss.Color("#FF5555"),
	Success:     lipgloss.Color("#50FA7B"),
	Warning:     lipgloss.Color("#F1FA8C"),
}

var themes = map[string]Theme{
	Default.Name: Default,
	Light.Name:   Light,
	Nord.Name:    Nord,
	Dracula.Name: Dracula,
}

// Current is the active theme.
var Current = Default

// Set changes the active theme by name.
func Set(name string) bool {
	t, ok := themes[name]
	if ok {
		Current = t
	}
	return ok
}

// Names returns the available theme names, sorted.
func Names() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
