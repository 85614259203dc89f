package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoAction is returned when the model answered without any action.
var ErrNoAction = errors.New("model output contains no action")

// fenceRegex matches a markdown code block, with or without a json tag.
// \x60 is a backtick.
var fenceRegex = regexp.MustCompile("(?s)^\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60$")

// StripCodeFence removes a surrounding markdown code block, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRegex.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// ParseAgentOutput decodes the model's step response.
func ParseAgentOutput(raw string) (*AgentOutput, error) {
	content := StripCodeFence(raw)

	var out AgentOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("could not parse model output as JSON: %w | content: %s", err, content)
	}
	if len(out.Action) == 0 {
		return nil, ErrNoAction
	}
	for i, a := range out.Action {
		if len(a) != 1 {
			return nil, fmt.Errorf("action %d must have exactly one action name, got %d", i+1, len(a))
		}
	}
	return &out, nil
}
