package browser

import (
	"fmt"
	"strconv"
	"strings"
)

// Element is one line of the indexed page view. Index 0 marks text that
// gives context but cannot be targeted by an action.
type Element struct {
	Index      int               `json:"index"`
	Tag        string            `json:"tag"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attrs,omitempty"`
}

func (e Element) Interactive() bool {
	return e.Index > 0
}

type TabInfo struct {
	PageID int    `json:"page_id"`
	URL    string `json:"url"`
	Title  string `json:"title"`

	// driver-specific handle (CDP target id for chromedp)
	id string
}

// State is the snapshot the agent sees at the start of every step.
type State struct {
	URL        string
	Title      string
	Tabs       []TabInfo
	Elements   []Element
	Screenshot string // base64 PNG, empty when vision is off
}

// ClickableElementsToString renders the element list as
//
//	33[:]<button>Submit Form</button>
//	_[:] Non-interactive text
//
// Attributes are rendered only for names listed in includeAttributes, in that order.
func (s *State) ClickableElementsToString(includeAttributes []string) string {
	if s == nil || len(s.Elements) == 0 {
		return ""
	}

	lines := make([]string, 0, len(s.Elements))
	for _, el := range s.Elements {
		text := strings.TrimSpace(el.Text)
		if !el.Interactive() {
			if text == "" {
				continue
			}
			lines = append(lines, "_[:] "+text)
			continue
		}

		var sb strings.Builder
		sb.WriteString(strconv.Itoa(el.Index))
		sb.WriteString("[:]<")
		sb.WriteString(el.Tag)
		for _, name := range includeAttributes {
			if v, ok := el.Attributes[name]; ok && v != "" {
				fmt.Fprintf(&sb, " %s=%q", name, v)
			}
		}
		sb.WriteString(">")
		sb.WriteString(text)
		sb.WriteString("</")
		sb.WriteString(el.Tag)
		sb.WriteString(">")
		lines = append(lines, sb.String())
	}
	return strings.Join(lines, "\n")
}

func (s *State) TabsString() string {
	if s == nil || len(s.Tabs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(s.Tabs))
	for _, t := range s.Tabs {
		lines = append(lines, fmt.Sprintf("[%d] %s - %s", t.PageID, t.Title, t.URL))
	}
	return strings.Join(lines, "\n")
}

// HasElement reports whether index is present as an interactive element.
func (s *State) HasElement(index int) bool {
	if s == nil || index <= 0 {
		return false
	}
	for _, el := range s.Elements {
		if el.Index == index {
			return true
		}
	}
	return false
}
