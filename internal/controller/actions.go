package controller

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/browser"
)

const maxExtractedChars = 20000

type DoneParams struct {
	Text string `json:"text"`
}

type URLParams struct {
	URL string `json:"url"`
}

type SearchParams struct {
	Query string `json:"query"`
}

type IndexParams struct {
	Index int `json:"index"`
}

type InputTextParams struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type ScrollParams struct {
	Amount *int `json:"amount,omitempty"`
}

type SendKeysParams struct {
	Keys string `json:"keys"`
}

type SwitchTabParams struct {
	PageID int `json:"page_id"`
}

type NoParams struct{}

// New returns a registry with the default browser actions.
func New(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)

	r.Register(Action{
		Name:        "done",
		Description: "Complete task - with return text and if the task is finished",
		Params:      `{"text": string}`,
		Handler: Typed(func(_ context.Context, _ browser.Driver, p DoneParams) (ActionResult, error) {
			return ActionResult{IsDone: true, ExtractedContent: p.Text, IncludeInMemory: true}, nil
		}),
	})

	r.Register(Action{
		Name:        "search_google",
		Description: "Search the query in Google in the current tab, the query should be a search query like humans search in Google, concrete and not vague or super long",
		Params:      `{"query": string}`,
		Handler: Typed(func(ctx context.Context, d browser.Driver, p SearchParams) (ActionResult, error) {
			q := strings.TrimSpace(p.Query)
			if q == "" {
				return ActionResult{}, fmt.Errorf("query is empty")
			}
			if err := d.Navigate(ctx, "https://www.google.com/search?udm=14&q="+url.QueryEscape(q)); err != nil {
				return ActionResult{}, err
			}
			return ActionResult{ExtractedContent: fmt.Sprintf("Searched for %q in Google", q), IncludeInMemory: true}, nil
		}),
	})

	r.Register(Action{
		Name:        "go_to_url",
		Description: "Navigate to URL in the current tab",
		Params:      `{"url": string}`,
		Handler: Typed(func(ctx context.Context, d browser.Driver, p URLParams) (ActionResult, error) {
			target, err := normalizeURL(p.URL)
			if err != nil {
				return ActionResult{}, err
			}
			if err := d.Navigate(ctx, target); err != nil {
				return ActionResult{}, err
			}
			return ActionResult{ExtractedContent: "Navigated to " + target, IncludeInMemory: true}, nil
		}),
	})

	r.Register(Action{
		Name:        "go_back",
		Description: "Go back",
		Handler: Typed(func(ctx context.Context, d browser.Driver, _ NoParams) (ActionResult, error) {
			if err := d.GoBack(ctx); err != nil {
				return ActionResult{}, err
			}
			return ActionResult{ExtractedContent: "Navigated back", IncludeInMemory: true}, nil
		}),
	})

	r.Register(Action{
		Name:        "click_element",
		Description: "Click element",
		Params:      `{"index": int}`,
		Handler: Typed(func(ctx context.Context, d browser.Driver, p IndexParams) (ActionResult, error) {
			if p.Index <= 0 {
				return ActionResult{}, fmt.Errorf("index must be a positive element index, got %d", p.Index)
			}
			if err := d.Click(ctx, p.Index); err != nil {
				return ActionResult{}, err
			}
			return ActionResult{ExtractedContent: fmt.Sprintf("Clicked element with index %d", p.Index), IncludeInMemory: true}, nil
		}),
	})

	r.Register(Action{
		Name:        "input_text",
		Description: "Input text into a input interactive element",
		Params:      `{"index": int, "text": string}`,
		Handler: Typed(func(ctx context.Context, d browser.Driver, p InputTextParams) (ActionResult, error) {
			if p.Index <= 0 {
				return ActionResult{}, fmt.Errorf("index must be a positive element index, got %d", p.Index)
			}
			if err := d.InputText(ctx, p.Index, p.Text); err != nil {
				return ActionResult{}, err
			}
			return ActionResult{ExtractedContent: fmt.Sprintf("Input %q into index %d", p.Text, p.Index), IncludeInMemory: true}, nil
		}),
	})

	r.Register(Action{
		Name:        "switch_tab",
		Description: "Switch tab",
		Params:      `{"page_id": int}`,
		Handler: Typed(func(ctx context.Context, d browser.Driver, p SwitchTabParams) (ActionResult, error) {
			if err := d.SwitchTab(ctx, p.PageID); err != nil {
				return ActionResult{}, err
			}
			return ActionResult{ExtractedContent: fmt.Sprintf("Switched to tab %d", p.PageID), IncludeInMemory: true}, nil
		}),
	})

	r.Register(Action{
		Name:        "open_tab",
		Description: "Open url in new tab",
		Params:      `{"url": string}`,
		Handler: Typed(func(ctx context.Context, d browser.Driver, p URLParams) (ActionResult, error) {
			target, err := normalizeURL(p.URL)
			if err != nil {
				return ActionResult{}, err
			}
			if err := d.OpenTab(ctx, target); err != nil {
				return ActionResult{}, err
			}
			return ActionResult{ExtractedContent: "Opened new tab with " + target, IncludeInMemory: true}, nil
		}),
	})

	r.Register(Action{
		Name:        "extract_content",
		Description: "Extract page content to get the text or markdown of the current page",
		Handler: Typed(func(ctx context.Context, d browser.Driver, _ NoParams) (ActionResult, error) {
			html, err := d.HTML(ctx)
			if err != nil {
				return ActionResult{}, err
			}
			md, err := htmltomarkdown.ConvertString(html)
			if err != nil {
				return ActionResult{}, fmt.Errorf("convert page to markdown: %w", err)
			}
			md = strings.TrimSpace(md)
			if runes := []rune(md); len(runes) > maxExtractedChars {
				md = string(runes[:maxExtractedChars]) + "\n...[TRUNCATED]"
			}
			return ActionResult{ExtractedContent: "Extracted page content as markdown:\n" + md, IncludeInMemory: true}, nil
		}),
	})

	r.Register(Action{
		Name:        "scroll_down",
		Description: "Scroll down the page by pixel amount - if no amount is specified, scroll down one page",
		Params:      `{"amount": int|null}`,
		Handler: Typed(func(ctx context.Context, d browser.Driver, p ScrollParams) (ActionResult, error) {
			return scroll(ctx, d, true, p.Amount)
		}),
	})

	r.Register(Action{
		Name:        "scroll_up",
		Description: "Scroll up the page by pixel amount - if no amount is specified, scroll up one page",
		Params:      `{"amount": int|null}`,
		Handler: Typed(func(ctx context.Context, d browser.Driver, p ScrollParams) (ActionResult, error) {
			return scroll(ctx, d, false, p.Amount)
		}),
	})

	r.Register(Action{
		Name:        "send_keys",
		Description: "Send strings of special keys like Escape, Backspace, Enter, PageDown",
		Params:      `{"keys": string}`,
		Handler: Typed(func(ctx context.Context, d browser.Driver, p SendKeysParams) (ActionResult, error) {
			if p.Keys == "" {
				return ActionResult{}, fmt.Errorf("keys is empty")
			}
			if err := d.SendKeys(ctx, p.Keys); err != nil {
				return ActionResult{}, err
			}
			return ActionResult{ExtractedContent: "Sent keys: " + p.Keys, IncludeInMemory: true}, nil
		}),
	})

	return r
}

func scroll(ctx context.Context, d browser.Driver, down bool, amount *int) (ActionResult, error) {
	px := 0
	if amount != nil {
		px = *amount
		if px < 0 {
			px = -px
		}
	}
	if err := d.Scroll(ctx, down, px); err != nil {
		return ActionResult{}, err
	}

	dir := "down"
	if !down {
		dir = "up"
	}
	what := "one page"
	if px > 0 {
		what = fmt.Sprintf("%d pixels", px)
	}
	return ActionResult{ExtractedContent: fmt.Sprintf("Scrolled %s the page by %s", dir, what), IncludeInMemory: true}, nil
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + raw)
		if err != nil {
			return "", fmt.Errorf("invalid url %q: %w", raw, err)
		}
	}
	return u.String(), nil
}
