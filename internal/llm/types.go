package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

// ChatOptions tunes a single chat call. Zero values fall back to the
// client's configured defaults; a nil Temperature uses llm.temperature.
type ChatOptions struct {
	Model       string
	Temperature *float32
	MaxTokens   int
	// JSON asks the model for a JSON object response.
	JSON bool
}

// Temperature returns a pointer for ChatOptions.Temperature.
func Temperature(v float32) *float32 {
	return &v
}

// Client is the one LLM capability the planner and the agent need.
type Client interface {
	Chat(ctx context.Context, messages []openai.ChatCompletionMessage, opts ChatOptions) (string, error)
}

// AgentBrain is the model's self-assessment for a step.
type AgentBrain struct {
	EvaluationPreviousGoal string `json:"evaluation_previous_goal" yaml:"evaluation_previous_goal"`
	Memory                 string `json:"memory" yaml:"memory"`
	NextGoal               string `json:"next_goal" yaml:"next_goal"`
}

// AgentOutput is the JSON object the model returns on every step.
type AgentOutput struct {
	CurrentState AgentBrain    `json:"current_state" yaml:"current_state"`
	Action       []ActionModel `json:"action" yaml:"action"`
}

// ActionModel is a single {"action_name": {params}} entry.
type ActionModel map[string]json.RawMessage

func (a ActionModel) Name() string {
	for name := range a {
		return name
	}
	return ""
}

func (a ActionModel) Params() json.RawMessage {
	for _, params := range a {
		return params
	}
	return nil
}

// String renders the action compactly, e.g. click_element{"index":5}.
func (a ActionModel) String() string {
	params := bytes.TrimSpace(a.Params())
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		params = []byte("{}")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, params); err != nil {
		return a.Name() + string(params)
	}
	return a.Name() + buf.String()
}

// MarshalYAML keeps parameters readable in saved histories.
func (a ActionModel) MarshalYAML() (interface{}, error) {
	out := make(map[string]interface{}, len(a))
	for name, raw := range a {
		var v interface{}
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("action %s: %w", name, err)
			}
		}
		out[name] = v
	}
	return out, nil
}

func (a *ActionModel) UnmarshalYAML(value *yaml.Node) error {
	var decoded map[string]interface{}
	if err := value.Decode(&decoded); err != nil {
		return err
	}
	out := make(ActionModel, len(decoded))
	for name, v := range decoded {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("action %s: %w", name, err)
		}
		out[name] = raw
	}
	*a = out
	return nil
}
