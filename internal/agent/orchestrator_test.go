package agent

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbenliogludev/go-browser-use/internal/browser/browsertest"
	"github.com/nbenliogludev/go-browser-use/internal/controller"
	"github.com/nbenliogludev/go-browser-use/internal/llm/llmtest"
	"github.com/nbenliogludev/go-browser-use/internal/planner"
)

const taobaoJDPlan = `{"is_valid_task": true, "invalid_reason": "", "task_plan": "1. Open https://www.taobao.com\n2. Open https://www.jd.com in a new tab"}`

func newTestOrchestrator(client *llmtest.Client, driver *browsertest.Driver, cfg OrchestratorConfig) *Orchestrator {
	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent = testOptions()
	}
	return NewOrchestrator(planner.NewTaskPlanner(client, planner.Options{}), client, driver, controller.New(nil), cfg)
}

func TestOrchestrator_PlanThenRun(t *testing.T) {
	client := llmtest.New(
		taobaoJDPlan,
		reply("open taobao", `go_to_url:{"url":"https://www.taobao.com"}`),
		reply("open jd", `open_tab:{"url":"https://www.jd.com"}`),
		reply("finish", `done:{"text":"Opened Taobao and JD"}`),
	)
	driver := browsertest.New(flightsPage())
	var out bytes.Buffer

	h, err := newTestOrchestrator(client, driver, OrchestratorConfig{PlanFirst: true, Out: &out}).
		Run(context.Background(), "打开淘宝和京东")
	require.NoError(t, err)

	assert.Equal(t, "Opened Taobao and JD", h.FinalResult())
	assert.Equal(t, []string{"State", "Navigate", "State", "OpenTab", "State"}, driver.Methods())
	assert.Contains(t, out.String(), "📋 PLAN:\n1. Open https://www.taobao.com")
	assert.Contains(t, out.String(), "Task: 打开淘宝和京东")

	require.Equal(t, 4, client.Calls())
	assert.Equal(t, "打开淘宝和京东", client.Requests[0].Messages[1].Content)
	taskMsg := client.Requests[1].Messages[1].Content
	assert.Contains(t, taskMsg, "Your ultimate task is: 打开淘宝和京东\n\nFollow this step-by-step plan:\n1. Open https://www.taobao.com")
}

func TestOrchestrator_InvalidTask(t *testing.T) {
	client := llmtest.New(`{"is_valid_task": false, "invalid_reason": "Cooking is not a browser task.", "task_plan": ""}`)
	driver := browsertest.New()
	var out bytes.Buffer

	h, err := newTestOrchestrator(client, driver, OrchestratorConfig{PlanFirst: true, Out: &out}).
		Run(context.Background(), "cook dinner")
	assert.Nil(t, h)

	var invalid *planner.InvalidTaskError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Cooking is not a browser task.", invalid.Reason)
	assert.Empty(t, driver.Methods())
	assert.Contains(t, out.String(), "Task rejected: Cooking is not a browser task.")
	assert.Equal(t, 1, client.Calls())
}

func TestOrchestrator_PlanErrors(t *testing.T) {
	client := llmtest.New("Sure! Here is your plan: 1. open taobao")
	_, err := newTestOrchestrator(client, browsertest.New(), OrchestratorConfig{PlanFirst: true}).
		Run(context.Background(), "打开淘宝和京东")
	assert.ErrorContains(t, err, "build plan failed")

	_, err = newTestOrchestrator(llmtest.New(), browsertest.New(), OrchestratorConfig{PlanFirst: true}).
		Run(context.Background(), "  ")
	assert.ErrorIs(t, err, planner.ErrEmptyTask)
}

func TestOrchestrator_NoPlanStartURLAndCredentials(t *testing.T) {
	t.Setenv("TAOBAO_NAME", "alice")

	client := llmtest.New(reply("finish", `done:{"text":"logged in"}`))
	driver := browsertest.New(flightsPage())

	h, err := newTestOrchestrator(client, driver, OrchestratorConfig{StartURL: "https://www.taobao.com"}).
		Run(context.Background(), "log in as ${TAOBAO_NAME}")
	require.NoError(t, err)
	assert.True(t, h.IsDone())

	require.Equal(t, 1, client.Calls())
	taskMsg := client.Requests[0].Messages[1].Content
	assert.Contains(t, taskMsg, "You are working on the site www.taobao.com.")
	assert.Contains(t, taskMsg, "User task: log in as alice")
	assert.NotContains(t, h.Task, "${TAOBAO_NAME}")

	require.NotEmpty(t, driver.Calls)
	assert.Equal(t, "Navigate", driver.Calls[0].Method)
	assert.Equal(t, []any{"https://www.taobao.com"}, driver.Calls[0].Args)
}

func TestOrchestrator_StartURLFailure(t *testing.T) {
	driver := browsertest.New()
	driver.Errors["Navigate"] = errors.New("net::ERR_NAME_NOT_RESOLVED")

	_, err := newTestOrchestrator(llmtest.New(), driver, OrchestratorConfig{StartURL: "https://nowhere.invalid"}).
		Run(context.Background(), "anything")
	assert.ErrorContains(t, err, "failed to open start url")
}

func TestReporter_Summary(t *testing.T) {
	var out bytes.Buffer
	summarizer := llmtest.New("The agent opened both sites.")
	r := NewReporter("打开淘宝和京东", &out, nil).WithSummary(summarizer)

	mem := NewStepMemory(10, 3)
	mem.MarkLoopTriggered()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Report(ctx, sampleHistory(), mem)

	report := out.String()
	assert.Contains(t, report, "Exit reason: model explicitly finished the task with the done action")
	assert.Contains(t, report, "Loop guard: triggered")
	assert.Contains(t, report, "(no actions recorded)")
	assert.Contains(t, report, "--- LLM SUMMARY ---\nThe agent opened both sites.")
	assert.Contains(t, summarizer.Requests[0].Messages[1].Content, "FINAL_URL:\nhttps://www.jd.com")
}

func TestReporter_SummaryFailure(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter("t", &out, nil).WithSummary(llmtest.New())
	r.StepError(1, errors.New("llm error: boom"))
	r.Report(context.Background(), sampleHistory(), nil)

	assert.Contains(t, out.String(), "STEP 1 | FAILED=llm error: boom")
	assert.Contains(t, out.String(), "(failed to generate summary)")
}
