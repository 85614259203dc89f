package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbenliogludev/go-browser-use/internal/config"
)

func fakeOpenAI(t *testing.T, content string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/v1"
}

func execute(t *testing.T, args ...string) (*app, string, error) {
	t.Helper()
	var out bytes.Buffer
	a := newApp(&out)
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return a, out.String(), err
}

func TestPlanCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", fakeOpenAI(t,
		`{"is_valid_task": true, "invalid_reason": "", "task_plan": ["Open https://www.taobao.com", "Open https://www.jd.com"]}`))

	_, out, err := execute(t, "plan", "--task", "打开淘宝和京东")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, true, got["is_valid_task"])
	assert.Equal(t, "", got["invalid_reason"])
	assert.Equal(t, "1. Open https://www.taobao.com\n2. Open https://www.jd.com", got["task_plan"])
}

func TestPlanCommand_RequiresAPIKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")

	_, _, err := execute(t, "plan", "--task", "打开淘宝和京东")
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}

func TestConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", fakeOpenAI(t, `{"is_valid_task": false, "invalid_reason": "nope", "task_plan": ""}`))
	t.Setenv("AGENT_AGENT_MAX_FAILURES", "7")

	cfgPath := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
llm:
  model: gpt-4o-mini
agent:
  max_steps: 20
browser:
  driver: chromedp
`), 0o644))

	a, out, err := execute(t, "plan", "--config", cfgPath, "--task", "cook dinner",
		"--max-steps", "5", "--driver", "Playwright", "--headless", "--no-plan", "--start-url", "https://www.taobao.com")
	require.NoError(t, err)
	assert.Contains(t, out, `"is_valid_task": false`)

	require.NotNil(t, a.cfg)
	assert.Equal(t, "gpt-4o-mini", a.cfg.LLM.Model)
	assert.Equal(t, 5, a.cfg.Agent.MaxSteps)
	assert.Equal(t, 7, a.cfg.Agent.MaxFailures)
	assert.Equal(t, config.DriverPlaywright, a.cfg.Browser.Driver)
	assert.True(t, a.cfg.Browser.Headless)
	assert.False(t, a.cfg.Agent.PlanFirst)
	assert.Equal(t, "cook dinner", a.cfg.Run.Task)
	assert.Equal(t, "https://www.taobao.com", a.cfg.Run.StartURL)
}

func TestDefaultTask(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", fakeOpenAI(t, `{"is_valid_task": true, "invalid_reason": "", "task_plan": "1. Open Google Flights."}`))

	a, _, err := execute(t, "plan")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultTask, a.cfg.Run.Task)
	assert.True(t, a.cfg.Agent.PlanFirst)
}

func TestInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := execute(t, "plan", "--driver", "selenium")
	assert.ErrorContains(t, err, "browser.driver")
}
