package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/vidyasagar/surfshell/internal/theme"
)

// StatusBar shows the page title, a load progress bar, the history-saving
// state and the scroll position.
type StatusBar struct {
	bar        progress.Model
	title      string
	host       string
	loading    bool
	percent    float64
	saving     bool
	scrollInfo string
	message    string
	width      int
}

func NewStatusBar() StatusBar {
	t := theme.Current
	bar := progress.New(
		progress.WithGradient(string(t.Primary), string(t.Accent)),
		progress.WithoutPercentage(),
	)
	bar.Width = 20
	return StatusBar{bar: bar, saving: true}
}

func (s *StatusBar) SetWidth(w int) { s.width = w }

func (s *StatusBar) SetPage(title, host string) {
	s.title, s.host = title, host
}

// SetProgress updates the loading indicator. The bar is only drawn while
// loading is true.
func (s *StatusBar) SetProgress(loading bool, percent float64) {
	s.loading, s.percent = loading, percent
}

func (s *StatusBar) SetSaving(on bool) { s.saving = on }

func (s *StatusBar) SetScrollInfo(info string) { s.scrollInfo = info }

// SetMessage sets a transient message shown instead of the title.
func (s *StatusBar) SetMessage(msg string) { s.message = msg }

func (s *StatusBar) View() string {
	t := theme.Current
	base := lipgloss.NewStyle().Background(t.Surface).Padding(0, 1)

	var left string
	switch {
	case s.message != "":
		left = base.Foreground(t.Warning).Render(s.message)
	case s.title != "":
		text := s.title
		if s.host != "" {
			text += "  " + s.host
		}
		left = base.Foreground(t.Text).Render(text)
	}

	var right []string
	if s.loading {
		right = append(right, base.Render(s.bar.ViewAs(s.percent)))
	}
	if s.saving {
		right = append(right, base.Foreground(t.Success).Render("history on"))
	} else {
		right = append(right, base.Foreground(t.TextDim).Render("history off"))
	}
	if s.scrollInfo != "" {
		right = append(right, base.Bold(true).Foreground(t.Primary).Render(s.scrollInfo))
	}
	r := strings.Join(right, "")

	gap := max(s.width-lipgloss.Width(left)-lipgloss.Width(r), 0)
	spacer := lipgloss.NewStyle().Background(t.Surface).Render(strings.Repeat(" ", gap))
	return left + spacer + r
}
