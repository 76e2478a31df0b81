package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vidyasagar/surfshell/internal/theme"
)

// PageViewport wraps bubbles/viewport for the rendered page.
type PageViewport struct {
	viewport   viewport.Model
	ready      bool
	contentSet bool
}

// NewPageViewport creates a viewport; dimensions arrive with the first
// WindowSizeMsg.
func NewPageViewport() PageViewport {
	return PageViewport{}
}

// SetSize updates the viewport dimensions.
func (pv *PageViewport) SetSize(width, height int) {
	if !pv.ready {
		pv.viewport = viewport.New(width, height)
		pv.viewport.MouseWheelEnabled = true
		pv.viewport.MouseWheelDelta = 3
		pv.ready = true
		return
	}
	pv.viewport.Width = width
	pv.viewport.Height = height
}

// SetContent replaces the content and scrolls to the top.
func (pv *PageViewport) SetContent(content string) {
	if !pv.ready {
		return
	}
	pv.viewport.SetContent(content)
	pv.viewport.GotoTop()
	pv.contentSet = true
}

// Update forwards messages to the viewport.
func (pv *PageViewport) Update(msg tea.Msg) tea.Cmd {
	if !pv.ready {
		return nil
	}
	var cmd tea.Cmd
	pv.viewport, cmd = pv.viewport.Update(msg)
	return cmd
}

// View renders the viewport.
func (pv *PageViewport) View() string {
	if !pv.ready {
		return "\n  Initializing..."
	}
	if !pv.contentSet {
		return welcome()
	}
	return pv.viewport.View()
}

// ScrollInfo returns "TOP", "BOT" or a percentage.
func (pv *PageViewport) ScrollInfo() string {
	if !pv.ready {
		return ""
	}
	pct := pv.viewport.ScrollPercent()
	switch {
	case pct <= 0:
		return "TOP"
	case pct >= 1:
		return "BOT"
	default:
		return fmt.Sprintf("%d%%", int(pct*100))
	}
}

func (pv *PageViewport) LineDown(n int) {
	if pv.ready {
		pv.viewport.LineDown(n)
	}
}

func (pv *PageViewport) LineUp(n int) {
	if pv.ready {
		pv.viewport.LineUp(n)
	}
}

func (pv *PageViewport) HalfPageDown() {
	if pv.ready {
		pv.viewport.HalfViewDown()
	}
}

func (pv *PageViewport) HalfPageUp() {
	if pv.ready {
		pv.viewport.HalfViewUp()
	}
}

func (pv *PageViewport) GotoTop() {
	if pv.ready {
		pv.viewport.GotoTop()
	}
}

func (pv *PageViewport) GotoBottom() {
	if pv.ready {
		pv.viewport.GotoBottom()
	}
}

func welcome() string {
	t := theme.Current
	title := lipgloss.NewStyle().Bold(true).Foreground(t.Primary)
	dim := lipgloss.NewStyle().Foreground(t.TextDim)
	key := lipgloss.NewStyle().Foreground(t.Accent)
	desc := lipgloss.NewStyle().Foreground(t.Text)

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(title.Render("  surfshell"))
	sb.WriteString("\n")
	sb.WriteString(dim.Render("  a small browsing shell with history"))
	sb.WriteString("\n\n")

	for _, k := range [][2]string{
		{"o", "open URL"},
		{"H / L", "back / forward"},
		{"r", "reload"},
		{"h", "history"},
		{"S", "toggle history saving"},
		{"q", "quit"},
	} {
		sb.WriteString(key.Render(fmt.Sprintf("  %-8s", k[0])))
		sb.WriteString(desc.Render(k[1]))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Width is the current content width, or 0 before the first resize.
func (pv *PageViewport) Width() int {
	if !pv.ready {
		return 0
	}
	return pv.viewport.Width
}
