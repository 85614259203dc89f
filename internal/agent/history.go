package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nbenliogludev/go-browser-use/internal/controller"
	"github.com/nbenliogludev/go-browser-use/internal/llm"
)

// StepRecord is one iteration of the agent loop.
type StepRecord struct {
	Step    int                       `yaml:"step"`
	URL     string                    `yaml:"url,omitempty"`
	Output  *llm.AgentOutput          `yaml:"model_output,omitempty"`
	Results []controller.ActionResult `yaml:"results,omitempty"`
	// Error is set when the step failed before any action ran.
	Error string `yaml:"error,omitempty"`
}

// History is the record of a whole run.
type History struct {
	RunID      string        `yaml:"run_id"`
	Task       string        `yaml:"task"`
	StartedAt  time.Time     `yaml:"started_at"`
	Duration   time.Duration `yaml:"duration"`
	ExitReason string        `yaml:"exit_reason"`
	Steps      []StepRecord  `yaml:"steps"`
}

func newHistory(task string) *History {
	return &History{
		RunID:     uuid.NewString(),
		Task:      task,
		StartedAt: time.Now(),
	}
}

func (h *History) lastResult() (controller.ActionResult, bool) {
	if h == nil || len(h.Steps) == 0 {
		return controller.ActionResult{}, false
	}
	results := h.Steps[len(h.Steps)-1].Results
	if len(results) == 0 {
		return controller.ActionResult{}, false
	}
	return results[len(results)-1], true
}

// IsDone reports whether the run ended with the done action.
func (h *History) IsDone() bool {
	r, ok := h.lastResult()
	return ok && r.IsDone
}

// FinalResult is the text the model passed to done, or "" if it never did.
func (h *History) FinalResult() string {
	if !h.IsDone() {
		return ""
	}
	r, _ := h.lastResult()
	return r.ExtractedContent
}

func (h *History) FinalURL() string {
	if h == nil {
		return ""
	}
	for i := len(h.Steps) - 1; i >= 0; i-- {
		if h.Steps[i].URL != "" {
			return h.Steps[i].URL
		}
	}
	return ""
}

// Errors lists every step and action error in order.
func (h *History) Errors() []string {
	if h == nil {
		return nil
	}
	var errs []string
	for _, s := range h.Steps {
		if s.Error != "" {
			errs = append(errs, fmt.Sprintf("step %d: %s", s.Step, s.Error))
		}
		for _, r := range s.Results {
			if r.Error != "" {
				errs = append(errs, fmt.Sprintf("step %d: %s", s.Step, r.Error))
			}
		}
	}
	return errs
}

// Save writes the history as YAML, creating parent directories.
func (h *History) Save(path string) error {
	data, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// LoadHistory reads a history written by Save.
func LoadHistory(path string) (*History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var h History
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	return &h, nil
}
