package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/llm"
)

var (
	ErrEmptyTask = errors.New("task description is empty")
	// ErrPlanContract means the model answered with JSON that does not
	// follow the {is_valid_task, invalid_reason, task_plan} contract.
	ErrPlanContract = errors.New("task plan breaks the response contract")
)

// InvalidTaskError carries the model's reason for rejecting a task.
type InvalidTaskError struct {
	Reason string
}

func (e *InvalidTaskError) Error() string {
	return "task rejected: " + e.Reason
}

// TaskPlan is the planner's answer. Exactly one of TaskPlan and
// InvalidReason is meaningful, selected by IsValidTask.
type TaskPlan struct {
	IsValidTask   bool     `json:"is_valid_task" yaml:"is_valid_task"`
	InvalidReason string   `json:"invalid_reason" yaml:"invalid_reason"`
	TaskPlan      PlanText `json:"task_plan" yaml:"task_plan"`
}

// PlanText accepts task_plan either as a string or as a list of steps.
// Lists are rendered as numbered lines.
type PlanText string

// PlanStep is the object form of a list entry.
type PlanStep struct {
	Index int    `json:"index"`
	Goal  string `json:"goal"`
}

func (p *PlanText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*p = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PlanText(strings.TrimSpace(s))
		return nil
	case data[0] == '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		lines := make([]string, 0, len(items))
		for _, item := range items {
			step, err := decodeStep(item)
			if err != nil {
				return err
			}
			if step == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("%d. %s", len(lines)+1, step))
		}
		*p = PlanText(strings.Join(lines, "\n"))
		return nil
	default:
		return fmt.Errorf("task_plan must be a string or a list, got %s", data)
	}
}

func decodeStep(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var step PlanStep
	if err := json.Unmarshal(raw, &step); err != nil {
		return "", fmt.Errorf("task_plan step must be a string or {index, goal}: %w", err)
	}
	return strings.TrimSpace(step.Goal), nil
}

// Validate checks the response contract.
func (p *TaskPlan) Validate() error {
	if p.IsValidTask {
		if strings.TrimSpace(string(p.TaskPlan)) == "" {
			return fmt.Errorf("%w: valid task without task_plan", ErrPlanContract)
		}
		return nil
	}
	if strings.TrimSpace(p.InvalidReason) == "" {
		return fmt.Errorf("%w: invalid task without invalid_reason", ErrPlanContract)
	}
	return nil
}

// AgentTask is the instruction handed to the browser agent.
func (p *TaskPlan) AgentTask(rawTask string) string {
	return fmt.Sprintf("%s\n\nFollow this step-by-step plan:\n%s", strings.TrimSpace(rawTask), p.TaskPlan)
}

type Options struct {
	// Model overrides the client's default model for the planning call.
	Model  string
	Logger *zap.Logger
}

type TaskPlanner struct {
	client llm.Client
	opts   Options
	logger *zap.Logger
}

func NewTaskPlanner(client llm.Client, opts Options) *TaskPlanner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskPlanner{client: client, opts: opts, logger: logger.Named("planner")}
}

const planSystemPrompt = `
You are an automated browser-operating agent. Convert my task descriptions into step-by-step execution sequences for easier processing by other agents.
First decide whether the task can be completed by operating a web browser. Tasks that need physical actions, offline knowledge the browser cannot reach, or that are not tasks at all are invalid.

Always answer with a single JSON object with exactly these keys:
{
  "is_valid_task": true or false,
  "invalid_reason": "why the task cannot be done in a browser; empty string when valid",
  "task_plan": "numbered steps separated by newlines; empty string when invalid"
}

Example:
Input: "Find a one-way flight from Beijing to Tokyo on 15 Feb 2025 on Google Flights. Return me the cheapest option."
Output:
{
  "is_valid_task": true,
  "invalid_reason": "",
  "task_plan": "1. Open Google Flights.\n2. Select \"One-way\" trip.\n3. Enter \"Beijing\" as the departure and \"Tokyo\" as the destination.\n4. Set the departure date to \"Feb 15, 2025\".\n5. Click the search button.\n6. Sort results by price (low to high).\n7. Retrieve the cheapest flight's details (airline, times, stopovers).\n8. Output the flight details."
}

Input: "Make me a cup of coffee."
Output:
{
  "is_valid_task": false,
  "invalid_reason": "Making coffee is a physical action that cannot be performed in a web browser.",
  "task_plan": ""
}

Answer in the language of the task.
`

// planKeys must all be present in the model answer, even when empty.
var planKeys = []string{"is_valid_task", "invalid_reason", "task_plan"}

// GetTaskPlan makes one LLM call and decodes its JSON answer. Malformed
// answers are returned as errors; there is no retry and no fallback.
func (p *TaskPlanner) GetTaskPlan(ctx context.Context, rawTask string) (*TaskPlan, error) {
	task := strings.TrimSpace(rawTask)
	if task == "" {
		return nil, ErrEmptyTask
	}

	content, err := p.client.Chat(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: planSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: task},
	}, llm.ChatOptions{Model: p.opts.Model, Temperature: llm.Temperature(0), JSON: true})
	if err != nil {
		return nil, fmt.Errorf("task plan request failed: %w", err)
	}

	content = llm.StripCodeFence(content)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return nil, fmt.Errorf("task plan JSON parse error: %w | content: %s", err, content)
	}
	for _, key := range planKeys {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrPlanContract, key)
		}
	}

	var plan TaskPlan
	if err := json.Unmarshal([]byte(content), &plan); err != nil {
		return nil, fmt.Errorf("task plan JSON parse error: %w | content: %s", err, content)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if !plan.IsValidTask {
		plan.TaskPlan = ""
	}

	p.logger.Info("Task plan generated",
		zap.Bool("is_valid_task", plan.IsValidTask),
		zap.Int("plan_chars", len(plan.TaskPlan)),
	)
	return &plan, nil
}
