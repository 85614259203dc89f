package e2e

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbenliogludev/go-browser-use/internal/agent"
	"github.com/nbenliogludev/go-browser-use/internal/browser"
	"github.com/nbenliogludev/go-browser-use/internal/config"
	"github.com/nbenliogludev/go-browser-use/internal/controller"
	"github.com/nbenliogludev/go-browser-use/internal/llm"
	"github.com/nbenliogludev/go-browser-use/internal/observability"
	"github.com/nbenliogludev/go-browser-use/internal/planner"
)

// This test is real: it starts Chrome, plans "打开淘宝和京东" with the
// configured model and lets the agent open both sites.
func TestTaobaoAndJD(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("OPENAI_API_KEY not set, skipping e2e test")
	}

	cfg := config.NewDefaultConfig()
	cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.LLM.BaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.Browser.Headless = true
	cfg.Agent.MaxSteps = 15

	observability.InitializeLogger(cfg.Logger)
	logger := observability.GetLogger()
	defer observability.Sync()

	client, err := llm.NewOpenAIClient(cfg.LLM, logger)
	require.NoError(t, err)

	driver, err := browser.NewDriver(cfg.Browser, logger)
	require.NoError(t, err)
	defer driver.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var out strings.Builder
	orch := agent.NewOrchestrator(
		planner.NewTaskPlanner(client, planner.Options{Model: cfg.LLM.PlannerModel, Logger: logger}),
		client, driver, controller.New(logger),
		agent.OrchestratorConfig{
			PlanFirst: true,
			Agent: agent.Options{
				AgentConfig:    cfg.Agent,
				Model:          cfg.LLM.Model,
				PostActionWait: cfg.Browser.PostActionWait,
				Logger:         logger,
			},
			Out: &out,
		},
	)

	history, err := orch.Run(ctx, "打开淘宝和京东")
	t.Log(out.String())
	require.NoError(t, err)
	assert.True(t, history.IsDone())

	tabs, err := driver.Tabs(ctx)
	require.NoError(t, err)
	var urls []string
	for _, tab := range tabs {
		urls = append(urls, tab.URL)
	}
	joined := strings.Join(urls, " ")
	assert.Contains(t, joined, "taobao.com")
	assert.Contains(t, joined, "jd.com")
}
