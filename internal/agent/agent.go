package agent

import (
	"context"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/browser"
	"github.com/nbenliogludev/go-browser-use/internal/config"
	"github.com/nbenliogludev/go-browser-use/internal/controller"
	"github.com/nbenliogludev/go-browser-use/internal/llm"
)

type Options struct {
	config.AgentConfig

	// Model is used for token estimates when MaxInputTokens is set.
	Model string
	// PostActionWait is the pause between steps, giving the page time to settle.
	PostActionWait time.Duration

	Logger   *zap.Logger
	Reporter *Reporter
	// Now is the clock used for the system prompt date.
	Now func() time.Time
}

// Agent drives one browser session towards one task.
type Agent struct {
	task     string
	llm      llm.Client
	driver   browser.Driver
	registry *controller.Registry
	opts     Options
	logger   *zap.Logger
	reporter *Reporter
	mem      *StepMemory

	system  openai.ChatCompletionMessage
	taskMsg openai.ChatCompletionMessage

	countTokens func(model string, msgs []openai.ChatCompletionMessage) int

	lastResults  []controller.ActionResult
	prevElements string
	expectChange bool
	failures     int
}

func NewAgent(task string, client llm.Client, d browser.Driver, registry *controller.Registry, opts Options) *Agent {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 100
	}
	if opts.MaxActionsPerStep <= 0 {
		opts.MaxActionsPerStep = 1
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 3
	}
	if opts.MaxErrorLength <= 0 {
		opts.MaxErrorLength = llm.DefaultMaxErrorLength
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = NewReporter(task, io.Discard, logger)
	}

	return &Agent{
		task:     task,
		llm:      client,
		driver:   d,
		registry: registry,
		opts:     opts,
		logger:   logger.Named("agent"),
		reporter: reporter,
		mem:      NewStepMemory(opts.MemoryLines, opts.LoopThreshold),

		countTokens: llm.EstimateTokens,
		system: llm.SystemPrompt{
			ActionDescription: registry.Description(),
			CurrentDate:       opts.Now(),
			MaxActionsPerStep: opts.MaxActionsPerStep,
		}.Message(),
		taskMsg: openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			Content: fmt.Sprintf("Your ultimate task is: %s. If you achieved your ultimate task, stop everything and use the done action in the next step to complete the task. If not, continue as usual.",
				task),
		},
	}
}

// Memory exposes the loop guard state, mainly for reporting.
func (a *Agent) Memory() *StepMemory {
	return a.mem
}

// messages builds the conversation for one step: system rules, the task,
// the rolling action log and the current page.
func (a *Agent) messages(state *browser.State, step int) []openai.ChatCompletionMessage {
	build := func(s *browser.State) []openai.ChatCompletionMessage {
		msgs := []openai.ChatCompletionMessage{a.system, a.taskMsg}
		if h := a.mem.HistoryString(); h != "" {
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: "Previous steps (most recent last):\n" + h,
			})
		}
		return append(msgs, llm.AgentMessagePrompt{
			State:             s,
			Results:           a.lastResults,
			IncludeAttributes: a.opts.IncludeAttributes,
			MaxErrorLength:    a.opts.MaxErrorLength,
			StepInfo:          &llm.StepInfo{StepNumber: step, MaxSteps: a.opts.MaxSteps},
		}.UserMessage())
	}

	msgs := build(state)
	if a.opts.MaxInputTokens <= 0 {
		return msgs
	}

	// at least one element survives so a non-empty page is never shown as empty
	trimmed := *state
	for len(trimmed.Elements) > 1 {
		tokens := a.countTokens(a.opts.Model, msgs)
		if tokens <= a.opts.MaxInputTokens {
			break
		}
		trimmed.Elements = trimmed.Elements[:len(trimmed.Elements)/2]
		a.logger.Debug("Prompt over token budget, eliding elements",
			zap.Int("tokens", tokens),
			zap.Int("budget", a.opts.MaxInputTokens),
			zap.Int("elements_kept", len(trimmed.Elements)),
		)
		msgs = build(&trimmed)
	}
	return msgs
}

func (a *Agent) wait(ctx context.Context) {
	if a.opts.PostActionWait <= 0 {
		return
	}
	t := time.NewTimer(a.opts.PostActionWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
