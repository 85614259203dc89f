package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/browser"
)

// ActionResult is what one executed action reports back to the next prompt.
type ActionResult struct {
	IsDone           bool   `json:"is_done,omitempty" yaml:"is_done,omitempty"`
	ExtractedContent string `json:"extracted_content,omitempty" yaml:"extracted_content,omitempty"`
	Error            string `json:"error,omitempty" yaml:"error,omitempty"`
	IncludeInMemory  bool   `json:"include_in_memory,omitempty" yaml:"include_in_memory,omitempty"`
}

type HandlerFunc func(ctx context.Context, d browser.Driver, params json.RawMessage) (ActionResult, error)

// Action is one capability the model may call by name.
type Action struct {
	Name        string
	Description string
	// Params documents the parameter object for the prompt, e.g. {"index": int}.
	Params  string
	Handler HandlerFunc
}

// Typed wraps fn so that its parameter object is decoded from JSON first.
func Typed[P any](fn func(ctx context.Context, d browser.Driver, p P) (ActionResult, error)) HandlerFunc {
	return func(ctx context.Context, d browser.Driver, raw json.RawMessage) (ActionResult, error) {
		var p P
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			if err := json.Unmarshal(raw, &p); err != nil {
				return ActionResult{}, fmt.Errorf("invalid parameters: %w", err)
			}
		}
		return fn(ctx, d, p)
	}
}

// Registry holds the actions the agent can execute.
type Registry struct {
	actions map[string]Action
	order   []string
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		actions: make(map[string]Action),
		logger:  logger.Named("controller"),
	}
}

// Register adds or replaces an action.
func (r *Registry) Register(a Action) {
	if _, exists := r.actions[a.Name]; !exists {
		r.order = append(r.order, a.Name)
	}
	r.actions[a.Name] = a
}

func (r *Registry) Has(name string) bool {
	_, ok := r.actions[name]
	return ok
}

func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Description renders every action for the system prompt, in registration order.
func (r *Registry) Description() string {
	var sb strings.Builder
	for _, name := range r.order {
		a := r.actions[name]
		params := a.Params
		if params == "" {
			params = "{}"
		}
		fmt.Fprintf(&sb, "%s:\n{%s: %s}\n", a.Description, a.Name, params)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Execute runs one action. Failures are reported in ActionResult.Error so
// the model can react to them on the next step.
func (r *Registry) Execute(ctx context.Context, d browser.Driver, name string, params json.RawMessage) ActionResult {
	a, ok := r.actions[name]
	if !ok {
		return ActionResult{Error: fmt.Sprintf("unknown action %q, available actions: %s", name, strings.Join(r.Names(), ", "))}
	}

	res, err := a.Handler(ctx, d, params)
	if err != nil {
		r.logger.Warn("Action failed", zap.String("action", name), zap.Error(err))
		return ActionResult{Error: fmt.Sprintf("%s failed: %v", name, err)}
	}

	r.logger.Debug("Action executed",
		zap.String("action", name),
		zap.Bool("is_done", res.IsDone),
		zap.Int("content_len", len(res.ExtractedContent)),
	)
	return res
}
