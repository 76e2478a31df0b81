package ui

import (
	"fmt"
	"image"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/vidyasagar/surfshell/internal/favicon"
	"github.com/vidyasagar/surfshell/internal/history"
	"github.com/vidyasagar/surfshell/internal/theme"
)

// HistoryPanel is a scrollable list of visit records, newest first. Each
// row starts with a glyph tinted by the site's favicon.
type HistoryPanel struct {
	records []history.VisitRecord
	cursor  int
	offset  int
	width   int
	height  int
	visible bool
}

func NewHistoryPanel() HistoryPanel {
	return HistoryPanel{}
}

// SetRecords replaces the rows, keeping the cursor in range.
func (hp *HistoryPanel) SetRecords(records []history.VisitRecord) {
	hp.records = records
	if hp.cursor >= len(records) {
		hp.cursor = max(len(records)-1, 0)
	}
	hp.ensureVisible()
}

func (hp *HistoryPanel) SetSize(w, h int) {
	hp.width, hp.height = w, h
	hp.ensureVisible()
}

func (hp *HistoryPanel) Show() {
	hp.visible = true
	hp.cursor, hp.offset = 0, 0
}

func (hp *HistoryPanel) Hide() { hp.visible = false }

func (hp *HistoryPanel) IsVisible() bool { return hp.visible }

func (hp *HistoryPanel) CursorUp() {
	if hp.cursor > 0 {
		hp.cursor--
		hp.ensureVisible()
	}
}

func (hp *HistoryPanel) CursorDown() {
	if hp.cursor < len(hp.records)-1 {
		hp.cursor++
		hp.ensureVisible()
	}
}

func (hp *HistoryPanel) GotoTop() {
	hp.cursor, hp.offset = 0, 0
}

func (hp *HistoryPanel) GotoBottom() {
	if len(hp.records) > 0 {
		hp.cursor = len(hp.records) - 1
		hp.ensureVisible()
	}
}

// Selected returns the record under the cursor.
func (hp *HistoryPanel) Selected() (history.VisitRecord, bool) {
	if hp.cursor < 0 || hp.cursor >= len(hp.records) {
		return history.VisitRecord{}, false
	}
	return hp.records[hp.cursor], true
}

// each row is two lines; the header takes two more
func (hp *HistoryPanel) visibleCount() int {
	return max((hp.height-3)/2, 1)
}

func (hp *HistoryPanel) ensureVisible() {
	n := hp.visibleCount()
	if hp.cursor < hp.offset {
		hp.offset = hp.cursor
	}
	if hp.cursor >= hp.offset+n {
		hp.offset = hp.cursor - n + 1
	}
	hp.offset = max(hp.offset, 0)
}

func (hp *HistoryPanel) View() string {
	if !hp.visible {
		return ""
	}
	t := theme.Current

	header := lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1)
	sep := lipgloss.NewStyle().Foreground(t.Border)
	dim := lipgloss.NewStyle().Foreground(t.TextDim).Padding(0, 1)
	row := lipgloss.NewStyle().Foreground(t.Text).Width(hp.width).Padding(0, 1)
	sub := lipgloss.NewStyle().Foreground(t.TextDim).Width(hp.width).Padding(0, 1)
	selRow := row.Foreground(t.TextBright).Background(t.Selection).Bold(true)
	selSub := sub.Foreground(t.Link).Background(t.Selection)

	var sb strings.Builder
	sb.WriteString(header.Render(fmt.Sprintf("History (%d)", len(hp.records))))
	sb.WriteString("\n")
	sb.WriteString(sep.Render(strings.Repeat("─", max(hp.width-2, 1))))
	sb.WriteString("\n")

	if len(hp.records) == 0 {
		sb.WriteString(dim.Render("No history yet."))
		sb.WriteString("\n")
		return lipgloss.NewStyle().Width(hp.width).Height(hp.height).Render(sb.String())
	}

	limit := max(hp.width-6, 10)
	end := min(hp.offset+hp.visibleCount(), len(hp.records))
	for i := hp.offset; i < end; i++ {
		r := hp.records[i]
		title := r.Title
		if title == "" {
			title = r.URL
		}
		line1 := Glyph(r.Favicon) + " " + truncate(title, limit)
		line2 := "  " + truncate(r.URL, limit-14) + "  " + humanize.Time(r.VisitedAt)

		if i == hp.cursor {
			sb.WriteString(selRow.Render(line1))
			sb.WriteString("\n")
			sb.WriteString(selSub.Render(line2))
		} else {
			sb.WriteString(row.Render(line1))
			sb.WriteString("\n")
			sb.WriteString(sub.Render(line2))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(dim.Italic(true).Render("enter:open  d:delete  D:clear  esc:close"))
	return lipgloss.NewStyle().Width(hp.width).Height(hp.height).Render(sb.String())
}

// Glyph renders a one-cell marker colored like img, or like the placeholder
// when img is nil.
func Glyph(img image.Image) string {
	c := favicon.AverageColor(favicon.OrPlaceholder(img))
	hex := fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
	return lipgloss.NewStyle().Foreground(lipgloss.Color(hex)).Render("●")
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
