package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nbenliogludev/go-browser-use/internal/browser"
	"github.com/nbenliogludev/go-browser-use/internal/browser/browsertest"
	"github.com/nbenliogludev/go-browser-use/internal/config"
	"github.com/nbenliogludev/go-browser-use/internal/controller"
	"github.com/nbenliogludev/go-browser-use/internal/llm"
	"github.com/nbenliogludev/go-browser-use/internal/llm/llmtest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// reply builds a model step response; each action is "name" or "name:{json}".
func reply(goal string, actions ...string) string {
	items := make([]map[string]json.RawMessage, 0, len(actions))
	for _, a := range actions {
		name, params, found := strings.Cut(a, ":")
		if !found {
			params = "{}"
		}
		items = append(items, map[string]json.RawMessage{name: json.RawMessage(params)})
	}
	b, _ := json.Marshal(map[string]any{
		"current_state": map[string]string{
			"evaluation_previous_goal": "Unknown",
			"memory":                   "",
			"next_goal":                goal,
		},
		"action": items,
	})
	return string(b)
}

func flightsPage() *browser.State {
	return &browser.State{
		URL:   "https://www.google.com/travel/flights",
		Title: "Google Flights",
		Tabs:  []browser.TabInfo{{PageID: 0, URL: "https://www.google.com/travel/flights", Title: "Google Flights"}},
		Elements: []browser.Element{
			{Index: 1, Tag: "button", Text: "One-way"},
			{Index: 2, Tag: "input", Text: "Where from?"},
			{Index: 5, Tag: "button", Text: "Search"},
		},
		Screenshot: "iVBORw0KGgo=",
	}
}

func testOptions() Options {
	return Options{
		AgentConfig: config.AgentConfig{
			MaxSteps:          10,
			MaxActionsPerStep: 1,
			MaxFailures:       3,
			MaxErrorLength:    400,
			UseVision:         true,
			LoopThreshold:     3,
			MemoryLines:       10,
		},
		Now: func() time.Time { return time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC) },
	}
}

func lastUserText(t *testing.T, msgs []openai.ChatCompletionMessage) string {
	t.Helper()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	if len(last.MultiContent) > 0 {
		return last.MultiContent[0].Text
	}
	return last.Content
}

func TestAgent_RunUntilDone(t *testing.T) {
	client := llmtest.New(
		reply("Select one-way", `click_element:{"index":1}`),
		reply("Report", `done:{"text":"Cheapest: CA925 at ¥2300"}`),
	)
	driver := browsertest.New(flightsPage())
	var out bytes.Buffer
	opts := testOptions()
	opts.Reporter = NewReporter("find flights", &out, nil)

	h, err := NewAgent("find flights", client, driver, controller.New(nil), opts).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, h.IsDone())
	assert.Equal(t, "Cheapest: CA925 at ¥2300", h.FinalResult())
	assert.Equal(t, ReasonDone, h.ExitReason)
	assert.Len(t, h.Steps, 2)
	assert.NotEmpty(t, h.RunID)
	assert.Equal(t, []string{"State", "Click", "State"}, driver.Methods())

	require.Equal(t, 2, client.Calls())
	first := client.Requests[0]
	assert.True(t, first.Options.JSON)
	require.Len(t, first.Messages, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, first.Messages[0].Role)
	assert.Contains(t, first.Messages[0].Content, "Current date and time: 2025-04-02 09:30")
	assert.Contains(t, first.Messages[0].Content, "{click_element: {\"index\": int}}")
	assert.Contains(t, first.Messages[1].Content, "Your ultimate task is: find flights.")

	state := first.Messages[2]
	require.Len(t, state.MultiContent, 2)
	assert.Contains(t, state.MultiContent[0].Text, "Current step: 1/10")
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", state.MultiContent[1].ImageURL.URL)

	second := client.Requests[1].Messages
	require.Len(t, second, 4)
	assert.Contains(t, second[2].Content, `action=click_element{"index":1} -> ok`)
	assert.Contains(t, lastUserText(t, second), "Current step: 2/10")
	assert.Contains(t, lastUserText(t, second), "Action result 1/1: Clicked element with index 1")

	report := out.String()
	assert.Contains(t, report, "===== EXECUTION REPORT =====")
	assert.Contains(t, report, "Final result: Cheapest: CA925 at ¥2300")
	assert.Contains(t, report, `ACTION=click_element{"index":1}`)
}

func TestAgent_NoVision(t *testing.T) {
	client := llmtest.New(reply("finish", `done:{"text":"ok"}`))
	opts := testOptions()
	opts.UseVision = false

	_, err := NewAgent("t", client, browsertest.New(flightsPage()), controller.New(nil), opts).Run(context.Background())
	require.NoError(t, err)

	msgs := client.Requests[0].Messages
	assert.Empty(t, msgs[len(msgs)-1].MultiContent)
	assert.Contains(t, msgs[len(msgs)-1].Content, "1[:]<button>One-way</button>")
}

func TestAgent_MaxSteps(t *testing.T) {
	client := llmtest.New(
		reply("scroll", "scroll_down"),
		reply("scroll back", "scroll_up"),
	)
	opts := testOptions()
	opts.MaxSteps = 2

	h, err := NewAgent("t", client, browsertest.New(flightsPage()), controller.New(nil), opts).Run(context.Background())
	assert.ErrorIs(t, err, ErrMaxSteps)
	assert.Equal(t, ReasonMaxSteps, h.ExitReason)
	assert.Len(t, h.Steps, 2)
	assert.False(t, h.IsDone())
	assert.Empty(t, h.FinalResult())
}

func TestAgent_TooManyFailures(t *testing.T) {
	client := llmtest.New("not json", "still not json", "```nope```")

	h, err := NewAgent("t", client, browsertest.New(flightsPage()), controller.New(nil), testOptions()).Run(context.Background())
	assert.ErrorIs(t, err, ErrTooManyFailures)
	assert.Equal(t, ReasonTooManyFailures, h.ExitReason)
	require.Len(t, h.Steps, 3)
	for _, s := range h.Steps {
		assert.Contains(t, s.Error, "could not parse model output")
	}
	assert.Len(t, h.Errors(), 3)

	// the parse failure is echoed into the next prompt
	assert.Contains(t, lastUserText(t, client.Requests[1].Messages), "Action error 1/1: ...invalid model output")
}

func TestAgent_FailuresResetAfterSuccess(t *testing.T) {
	client := llmtest.New(
		"bad", "bad",
		reply("click", `click_element:{"index":2}`),
		"bad", "bad",
		reply("done", `done:{"text":"finished"}`),
	)

	h, err := NewAgent("t", client, browsertest.New(flightsPage()), controller.New(nil), testOptions()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "finished", h.FinalResult())
	assert.Len(t, h.Steps, 6)
}

func TestAgent_LLMAndStateErrors(t *testing.T) {
	client := (&llmtest.Client{}).Push(
		llmtest.Reply{Err: errors.New("upstream 500")},
		llmtest.Reply{Content: reply("done", `done:{"text":"ok"}`)},
	)
	driver := browsertest.New(flightsPage())

	h, err := NewAgent("t", client, driver, controller.New(nil), testOptions()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "upstream 500", h.Steps[0].Error)

	driver = browsertest.New()
	driver.Errors["State"] = errors.New("target closed")
	h, err = NewAgent("t", llmtest.New(), driver, controller.New(nil), testOptions()).Run(context.Background())
	assert.ErrorIs(t, err, ErrTooManyFailures)
	assert.ErrorContains(t, err, "target closed")
	assert.Len(t, h.Steps, 3)
}

func TestAgent_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := llmtest.New(reply("x", "go_back"))
	h, err := NewAgent("t", client, browsertest.New(flightsPage()), controller.New(nil), testOptions()).Run(ctx)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, ReasonInterrupted, h.ExitReason)
	assert.Empty(t, h.Steps)
	assert.Zero(t, client.Calls())
}

type cancellingClient struct {
	*llmtest.Client
	cancel context.CancelFunc
}

func (c cancellingClient) Chat(ctx context.Context, msgs []openai.ChatCompletionMessage, opts llm.ChatOptions) (string, error) {
	c.cancel()
	return c.Client.Chat(ctx, msgs, opts)
}

func TestAgent_InterruptedMidStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := cancellingClient{Client: llmtest.New(reply("x", "go_back")), cancel: cancel}
	h, err := NewAgent("t", client, browsertest.New(flightsPage()), controller.New(nil), testOptions()).Run(ctx)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, ReasonInterrupted, h.ExitReason)
	require.Len(t, h.Steps, 1)
	assert.Contains(t, h.Steps[0].Error, "context canceled")
}

func TestAgent_LoopGuard(t *testing.T) {
	click := reply("search", `click_element:{"index":5}`)
	client := llmtest.New(click, click, click, reply("give up", `done:{"text":"no results"}`))
	driver := browsertest.New(flightsPage())
	opts := testOptions()
	opts.LoopThreshold = 2

	a := NewAgent("t", client, driver, controller.New(nil), opts)
	h, err := a.Run(context.Background())
	require.NoError(t, err)

	clicks := 0
	for _, m := range driver.Methods() {
		if m == "Click" {
			clicks++
		}
	}
	assert.Equal(t, 2, clicks)
	assert.True(t, a.Memory().LoopTriggered())
	require.Len(t, h.Steps[2].Results, 1)
	assert.Contains(t, h.Steps[2].Results[0].Error, "SYSTEM NOTE: The same action")

	fourth := client.Requests[3].Messages
	assert.Contains(t, fourth[2].Content, "SYSTEM NOTE: The same action")
	assert.Contains(t, lastUserText(t, fourth), "Action error 1/1: ...SYSTEM NOTE")

	// the second click left the page unchanged
	assert.Contains(t, client.Requests[2].Messages[2].Content, noEffectNote)
}

func TestAgent_MaxActionsPerStep(t *testing.T) {
	client := llmtest.New(
		reply("fill", `input_text:{"index":2,"text":"Beijing"}`, `click_element:{"index":5}`, `done:{"text":"early"}`),
		reply("done", `done:{"text":"late"}`),
	)
	driver := browsertest.New(flightsPage())
	opts := testOptions()
	opts.MaxActionsPerStep = 2

	h, err := NewAgent("t", client, driver, controller.New(nil), opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", h.FinalResult())
	assert.Len(t, h.Steps[0].Results, 2)
	assert.Equal(t, []string{"State", "InputText", "Click", "State"}, driver.Methods())
	assert.Contains(t, client.Requests[0].Messages[0].Content, "up to 2 actions")
}

func TestAgent_ActionErrorStopsSequence(t *testing.T) {
	client := llmtest.New(
		reply("click", `click_element:{"index":5}`, `done:{"text":"too early"}`),
		reply("done", `done:{"text":"recovered"}`),
	)
	driver := browsertest.New(flightsPage())
	driver.Errors["Click"] = errors.New("node is detached from document")
	opts := testOptions()
	opts.MaxActionsPerStep = 5

	h, err := NewAgent("t", client, driver, controller.New(nil), opts).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, h.Steps[0].Results, 1)
	assert.Contains(t, h.Steps[0].Results[0].Error, "node is detached")
	assert.Equal(t, "recovered", h.FinalResult())
	assert.Contains(t, lastUserText(t, client.Requests[1].Messages),
		"Action error 1/1: ...click_element failed: node is detached from document")
}

func TestAgent_StaleIndexNeverReachesDriver(t *testing.T) {
	client := llmtest.New(
		reply("click", `input_text:{"index":9,"text":"Tokyo"}`),
		reply("done", `done:{"text":"ok"}`),
	)
	driver := browsertest.New(flightsPage())

	h, err := NewAgent("t", client, driver, controller.New(nil), testOptions()).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, h.Steps[0].Results, 1)
	assert.Equal(t,
		"input_text failed: element with index 9 does not exist - retry or use alternative actions",
		h.Steps[0].Results[0].Error)
	assert.Equal(t, []string{"State", "State"}, driver.Methods())
}

func TestAgent_UnknownActionIsReported(t *testing.T) {
	client := llmtest.New(
		reply("fly", `teleport:{"to":"Tokyo"}`),
		reply("done", `done:{"text":"ok"}`),
	)
	h, err := NewAgent("t", client, browsertest.New(flightsPage()), controller.New(nil), testOptions()).Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, h.Steps[0].Results[0].Error, `unknown action "teleport"`)
}

func TestAgent_TokenBudgetDisabledByDefault(t *testing.T) {
	a := NewAgent("t", llmtest.New(), browsertest.New(), controller.New(nil), testOptions())
	state := flightsPage()
	msgs := a.messages(state, 0)
	assert.Contains(t, lastUserText(t, msgs), "5[:]<button>Search</button>")
	assert.Len(t, state.Elements, 3, fmt.Sprintf("state must not be mutated: %v", state.Elements))
}

func TestAgent_TokenBudgetElidesElements(t *testing.T) {
	state := &browser.State{URL: "https://www.jd.com", Title: "京东"}
	for i := 1; i <= 400; i++ {
		state.Elements = append(state.Elements, browser.Element{Index: i, Tag: "a", Text: fmt.Sprintf("item %d", i)})
	}
	// one token per rendered element keeps the budget arithmetic exact
	countElements := func(_ string, msgs []openai.ChatCompletionMessage) int {
		last := msgs[len(msgs)-1]
		if len(last.MultiContent) > 0 {
			return strings.Count(last.MultiContent[0].Text, "[:]<")
		}
		return strings.Count(last.Content, "[:]<")
	}

	tests := []struct {
		budget   int
		wantKept int
	}{
		{budget: 400, wantKept: 400},
		{budget: 150, wantKept: 100},
		{budget: 100, wantKept: 100},
		{budget: 1, wantKept: 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("budget %d", tt.budget), func(t *testing.T) {
			opts := testOptions()
			opts.MaxInputTokens = tt.budget
			a := NewAgent("t", llmtest.New(), browsertest.New(), controller.New(nil), opts)
			a.countTokens = countElements

			text := lastUserText(t, a.messages(state, 0))
			assert.Equal(t, tt.wantKept, strings.Count(text, "[:]<"))
			assert.Contains(t, text, "1[:]<a>item 1</a>")
			assert.NotContains(t, text, "empty page")
		})
	}
	assert.Len(t, state.Elements, 400)
}
