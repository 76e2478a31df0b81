package browser

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Article holds the extracted readable content from a page.
type Article struct {
	Title       string
	Byline      string
	Content     string // cleaned HTML
	TextContent string // plain text
	Excerpt     string
	SiteName    string
	URL         string
	FinalURL    string
	StatusCode  int
	FetchTime   time.Duration
}

// Link represents a hyperlink found in the page content.
type Link struct {
	Index int
	Text  string
	URL   string
}

// Extract pulls the readable article out of a fetched page. Pages that
// readability cannot handle still produce an Article from the raw body.
func Extract(result *FetchResult) (*Article, error) {
	a := &Article{
		URL:        result.URL,
		FinalURL:   result.FinalURL,
		StatusCode: result.StatusCode,
		FetchTime:  result.Duration,
	}

	if !IsHTML(result.ContentType) {
		a.Title = result.FinalURL
		a.Content = "<pre>" + html.EscapeString(string(result.Body)) + "</pre>"
		a.TextContent = string(result.Body)
		return a, nil
	}

	parsedURL, err := url.Parse(result.FinalURL)
	if err != nil {
		return nil, fmt.Errorf("parsing URL: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(result.Body), parsedURL)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		a.Title = article.Title
		a.Byline = article.Byline
		a.Content = article.Content
		a.TextContent = article.TextContent
		a.Excerpt = article.Excerpt
		a.SiteName = article.SiteName
	} else {
		a.Content = string(result.Body)
	}

	if a.Title == "" || a.TextContent == "" {
		doc, derr := goquery.NewDocumentFromReader(bytes.NewReader(result.Body))
		if derr == nil {
			if a.Title == "" {
				a.Title = strings.TrimSpace(doc.Find("head > title").First().Text())
			}
			if a.TextContent == "" {
				a.TextContent = strings.TrimSpace(doc.Find("body").Text())
			}
		}
	}
	return a, nil
}
