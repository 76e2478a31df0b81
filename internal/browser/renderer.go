package browser

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/glamour"
)

// Page is a rendered, terminal-ready document.
type Page struct {
	URL     string
	Title   string
	Host    string
	Content string // ANSI-styled text
	Links   []Link
}

var (
	termRenderers   = map[rendererKey]*glamour.TermRenderer{}
	termRenderersMu sync.Mutex
)

type rendererKey struct {
	width int
	style string
}

// Render converts an article's HTML into styled terminal text. style is a
// glamour standard style name; empty means auto-detect.
func Render(article *Article, width int, style string) *Page {
	if width <= 0 {
		width = 80
	}
	contentWidth := min(width-4, 100)

	page := &Page{URL: article.FinalURL, Title: article.Title}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		page.Content = article.TextContent
		return page
	}

	conv := &mdConverter{}
	var md strings.Builder
	if article.Title != "" {
		md.WriteString("# " + article.Title + "\n\n")
	}
	if article.Byline != "" {
		md.WriteString("*" + article.Byline + "*\n\n")
	}
	md.WriteString("---\n\n")

	doc.Find("body").Children().Each(func(_ int, s *goquery.Selection) {
		md.WriteString(conv.block(s, 0))
	})

	out, err := glamourize(md.String(), contentWidth, style)
	if err != nil {
		out = md.String()
	}
	page.Content = out
	page.Links = conv.links
	return page
}

func glamourize(markdown string, width int, style string) (string, error) {
	termRenderersMu.Lock()
	defer termRenderersMu.Unlock()

	key := rendererKey{width: width, style: style}
	r, ok := termRenderers[key]
	if !ok {
		styleOpt := glamour.WithAutoStyle()
		if style != "" {
			styleOpt = glamour.WithStandardStyle(style)
		}
		var err error
		r, err = glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
		if err != nil {
			return "", err
		}
		termRenderers[key] = r
	}
	return r.Render(markdown)
}

// mdConverter turns goquery nodes into markdown, numbering links as it goes.
type mdConverter struct {
	links []Link
}

func (c *mdConverter) block(s *goquery.Selection, depth int) string {
	switch tag := goquery.NodeName(s); tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return ""
		}
		return strings.Repeat("#", int(tag[1]-'0')) + " " + text + "\n\n"
	case "p":
		var sb strings.Builder
		c.inline(s, &sb)
		if text := strings.TrimSpace(sb.String()); text != "" {
			return text + "\n\n"
		}
		return ""
	case "ul", "ol":
		return c.list(s, tag == "ol", depth)
	case "blockquote":
		var sb strings.Builder
		s.Children().Each(func(_ int, child *goquery.Selection) {
			for _, line := range strings.Split(strings.TrimRight(c.block(child, 0), "\n"), "\n") {
				sb.WriteString("> " + line + "\n")
			}
		})
		if sb.Len() == 0 {
			sb.WriteString("> " + strings.TrimSpace(s.Text()) + "\n")
		}
		return sb.String() + "\n"
	case "pre":
		return c.codeBlock(s)
	case "table":
		return table(s)
	case "hr":
		return "\n---\n\n"
	case "img":
		alt, _ := s.Attr("alt")
		if alt == "" {
			alt = "image"
		}
		src, _ := s.Attr("src")
		return fmt.Sprintf("![%s](%s)\n\n", alt, src)
	case "div", "article", "section", "main", "header", "footer", "figure", "span", "body":
		var sb strings.Builder
		s.Children().Each(func(_ int, child *goquery.Selection) {
			sb.WriteString(c.block(child, depth))
		})
		return sb.String()
	case "script", "style", "noscript":
		return ""
	default:
		var sb strings.Builder
		c.inline(s, &sb)
		if text := strings.TrimSpace(sb.String()); text != "" {
			return text + "\n\n"
		}
		return ""
	}
}

func (c *mdConverter) inline(s *goquery.Selection, sb *strings.Builder) {
	s.Contents().Each(func(_ int, child *goquery.Selection) {
		switch goquery.NodeName(child) {
		case "#text":
			sb.WriteString(child.Text())
		case "a":
			sb.WriteString(c.link(child))
		case "strong", "b":
			sb.WriteString("**")
			c.inline(child, sb)
			sb.WriteString("**")
		case "em", "i":
			sb.WriteString("*")
			c.inline(child, sb)
			sb.WriteString("*")
		case "code":
			sb.WriteString("`" + child.Text() + "`")
		case "br":
			sb.WriteString("  \n")
		case "ul", "ol", "script", "style":
			// nested lists are emitted by list()
		default:
			c.inline(child, sb)
		}
	})
}

func (c *mdConverter) link(s *goquery.Selection) string {
	href, ok := s.Attr("href")
	text := strings.TrimSpace(s.Text())
	if text == "" {
		text = href
	}
	if !ok || href == "" {
		return text
	}
	idx := len(c.links) + 1
	c.links = append(c.links, Link{Index: idx, Text: text, URL: href})
	return fmt.Sprintf("[%s](%s) **[%d]**", text, href, idx)
}

func (c *mdConverter) list(s *goquery.Selection, ordered bool, depth int) string {
	var sb strings.Builder
	indent := strings.Repeat("  ", depth)
	s.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", i+1)
		}
		var item strings.Builder
		c.inline(li, &item)
		sb.WriteString(indent + marker + strings.TrimSpace(item.String()) + "\n")

		li.ChildrenFiltered("ul, ol").Each(func(_ int, nested *goquery.Selection) {
			sb.WriteString(c.list(nested, goquery.NodeName(nested) == "ol", depth+1))
		})
	})
	if depth == 0 {
		sb.WriteString("\n")
	}
	return sb.String()
}

func (c *mdConverter) codeBlock(s *goquery.Selection) string {
	code := s.Find("code").First()
	lang := ""
	text := s.Text()
	if code.Length() > 0 {
		text = code.Text()
		if class, _ := code.Attr("class"); strings.Contains(class, "language-") {
			if fields := strings.Fields(strings.SplitN(class, "language-", 2)[1]); len(fields) > 0 {
				lang = fields[0]
			}
		}
	}
	return "```" + lang + "\n" + strings.TrimRight(text, "\n") + "\n```\n\n"
}

func table(s *goquery.Selection) string {
	var rows [][]string
	s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			row = append(row, strings.TrimSpace(cell.Text()))
		})
		if len(row) > 0 {
			rows = append(rows, row)
		}
	})
	if len(rows) == 0 {
		return ""
	}

	cols := 0
	for _, r := range rows {
		cols = max(cols, len(r))
	}

	var sb strings.Builder
	for i, r := range rows {
		for len(r) < cols {
			r = append(r, "")
		}
		sb.WriteString("| " + strings.Join(r, " | ") + " |\n")
		if i == 0 {
			sb.WriteString("|" + strings.Repeat(" --- |", cols) + "\n")
		}
	}
	return sb.String() + "\n"
}
