package llm

import (
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nbenliogludev/go-browser-use/internal/browser"
	"github.com/nbenliogludev/go-browser-use/internal/controller"
)

const (
	DefaultMaxErrorLength = 400

	cutOffMarker = "... Cut off - use extract content or scroll to get more ..."
	emptyPage    = "empty page"
)

type StepInfo struct {
	StepNumber int
	MaxSteps   int
}

// AgentMessagePrompt turns a browser state and the previous step's action
// results into the per-step user message.
type AgentMessagePrompt struct {
	State             *browser.State
	Results           []controller.ActionResult
	IncludeAttributes []string
	MaxErrorLength    int
	StepInfo          *StepInfo
}

// Text renders the state description. It depends only on the prompt's
// fields, so equal inputs produce equal output.
func (p AgentMessagePrompt) Text() string {
	stepLine := ""
	if p.StepInfo != nil {
		stepLine = fmt.Sprintf("Current step: %d/%d", p.StepInfo.StepNumber+1, p.StepInfo.MaxSteps)
	}

	state := p.State
	if state == nil {
		state = &browser.State{}
	}

	elements := state.ClickableElementsToString(p.IncludeAttributes)
	if elements != "" {
		elements = cutOffMarker + "\n" + elements + "\n" + cutOffMarker
	} else {
		elements = emptyPage
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s\nCurrent url: %s\nAvailable tabs:\n%s\nInteractive elements from current page view:\n%s\n",
		stepLine, state.URL, state.TabsString(), elements)

	n := len(p.Results)
	for i, r := range p.Results {
		if r.ExtractedContent != "" {
			fmt.Fprintf(&sb, "\nAction result %d/%d: %s", i+1, n, r.ExtractedContent)
		}
		if r.Error != "" {
			fmt.Fprintf(&sb, "\nAction error %d/%d: ...%s", i+1, n, TailRunes(r.Error, p.maxErrorLength()))
		}
	}
	return sb.String()
}

// UserMessage returns the text message, or a text+image message when the
// state carries a screenshot.
func (p AgentMessagePrompt) UserMessage() openai.ChatCompletionMessage {
	text := p.Text()
	if p.State == nil || p.State.Screenshot == "" {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
	}

	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: text},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:image/png;base64," + p.State.Screenshot,
				},
			},
		},
	}
}

func (p AgentMessagePrompt) maxErrorLength() int {
	if p.MaxErrorLength <= 0 {
		return DefaultMaxErrorLength
	}
	return p.MaxErrorLength
}

// TailRunes returns the last n characters of s.
func TailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
