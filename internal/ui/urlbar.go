package ui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vidyasagar/surfshell/internal/theme"
)

// URLBar is the address input at the top of the screen. When it is not
// focused it shows the current URL.
type URLBar struct {
	input  textinput.Model
	active bool
	width  int
	err    string
}

func NewURLBar() URLBar {
	ti := textinput.New()
	ti.Placeholder = "Enter URL..."
	ti.CharLimit = 2048
	ti.Width = 60
	return URLBar{input: ti}
}

func (u *URLBar) SetWidth(w int) {
	u.width = w
	u.input.Width = max(w-8, 10)
}

// Focus activates the bar and selects its content for editing.
func (u *URLBar) Focus() tea.Cmd {
	u.active = true
	u.err = ""
	u.input.CursorEnd()
	return u.input.Focus()
}

func (u *URLBar) Blur() {
	u.active = false
	u.input.Blur()
}

func (u *URLBar) IsActive() bool { return u.active }

func (u *URLBar) Value() string { return u.input.Value() }

// SetValue shows s unless the user is editing.
func (u *URLBar) SetValue(s string) {
	if !u.active {
		u.input.SetValue(s)
	}
}

// SetError flags the current input as rejected.
func (u *URLBar) SetError(msg string) { u.err = msg }

func (u *URLBar) Update(msg tea.Msg) tea.Cmd {
	if !u.active {
		return nil
	}
	var cmd tea.Cmd
	u.input, cmd = u.input.Update(msg)
	return cmd
}

func (u *URLBar) View() string {
	t := theme.Current

	border := t.Border
	fg := t.TextDim
	if u.active {
		border, fg = t.BorderFocus, t.Text
	}
	if u.err != "" {
		border = t.Error
	}

	bar := lipgloss.NewStyle().
		Foreground(fg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(max(u.width-2, 1))

	prompt := lipgloss.NewStyle().Foreground(t.Primary).Bold(true).Render(">")
	content := prompt + " " + u.input.View()
	if u.err != "" {
		content += lipgloss.NewStyle().Foreground(t.Error).Render("  " + u.err)
	}
	return bar.Render(content)
}
