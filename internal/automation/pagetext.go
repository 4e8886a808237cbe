package automation

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	. "drover/internal/logging"
)

// PageContent is the readable extraction of the bound view's document.
type PageContent struct {
	Title  string `json:"title"`
	Byline string `json:"byline,omitempty"`
	Text   string `json:"text"`
}

// PageText extracts the main article content from the bound view.
// When readability cannot find an article the raw visible text is
// returned instead, so the caller always gets something.
func (c *Context) PageText(ctx context.Context) (*PageContent, error) {
	meta, err := c.ActiveViewMeta(ctx)
	if err != nil {
		return nil, err
	}
	htmlVal, err := c.EvaluateScript(ctx, "document.documentElement.outerHTML", nil)
	if err != nil {
		return nil, err
	}
	html, _ := htmlVal.(string)
	if html == "" {
		return nil, errCommandFailed(fmt.Errorf("page has no document"))
	}

	pageURL, _ := url.Parse(meta.URL)
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		if err != nil {
			L_debug("readability extraction failed, falling back to raw text: %v", err)
		}
		return c.rawPageText(ctx, meta.Title)
	}

	title := article.Title
	if title == "" {
		title = meta.Title
	}
	return &PageContent{
		Title:  title,
		Byline: article.Byline,
		Text:   strings.TrimSpace(article.TextContent),
	}, nil
}

func (c *Context) rawPageText(ctx context.Context, title string) (*PageContent, error) {
	textVal, err := c.EvaluateScript(ctx, "document.body ? document.body.innerText : ''", nil)
	if err != nil {
		return nil, err
	}
	text, _ := textVal.(string)
	return &PageContent{Title: title, Text: strings.TrimSpace(text)}, nil
}
