package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/browser"
	"github.com/nbenliogludev/go-browser-use/internal/controller"
	"github.com/nbenliogludev/go-browser-use/internal/llm"
)

const noEffectNote = "SYSTEM ALERT: Last action had NO VISIBLE EFFECT."

// readOnlyActions never change the page, so an unchanged page after them
// is expected.
var readOnlyActions = map[string]bool{
	"done":            true,
	"extract_content": true,
}

func (a *Agent) executeStep(ctx context.Context, step int) (StepRecord, error) {
	rec := StepRecord{Step: step + 1}
	a.logger.Debug("Step started", zap.Int("step", rec.Step))

	state, err := a.driver.State(ctx, a.opts.UseVision)
	if err != nil {
		rec.Error = err.Error()
		return rec, fmt.Errorf("%w: %v", ErrState, err)
	}
	rec.URL = state.URL
	a.noteNoEffect(state)

	content, err := a.llm.Chat(ctx, a.messages(state, step), llm.ChatOptions{JSON: true})
	if err != nil {
		rec.Error = err.Error()
		return rec, fmt.Errorf("%w: %v", ErrLLM, err)
	}

	out, err := llm.ParseAgentOutput(content)
	if err != nil {
		rec.Error = err.Error()
		return rec, fmt.Errorf("%w: %v", ErrModelOutput, err)
	}
	rec.Output = out
	a.reporter.LogDecision(rec.Step, state.URL, out)

	actions := out.Action
	if len(actions) > a.opts.MaxActionsPerStep {
		a.logger.Warn("Model returned more actions than allowed, truncating",
			zap.Int("returned", len(actions)),
			zap.Int("max", a.opts.MaxActionsPerStep),
		)
		actions = actions[:a.opts.MaxActionsPerStep]
	}

	results := make([]controller.ActionResult, 0, len(actions))
	for _, action := range actions {
		if blocked, note := a.mem.ShouldBlock(state.URL, action); blocked {
			a.logger.Warn("Loop guard blocked action", zap.Stringer("action", action))
			a.mem.MarkLoopTriggered()
			a.mem.AddSystemNote(note)
			results = append(results, controller.ActionResult{Error: note})
			break
		}

		res := a.execute(ctx, state, action)
		if !readOnlyActions[action.Name()] {
			a.expectChange = true
		}
		a.mem.Add(rec.Step, state.URL, action, res)
		a.reporter.LogResult(rec.Step, action, res)
		results = append(results, res)

		if res.IsDone || res.Error != "" {
			break
		}
	}

	rec.Results = results
	a.lastResults = results
	return rec, nil
}

// execute runs one action. Element indexes are checked against the state the
// model was shown before the driver is touched.
func (a *Agent) execute(ctx context.Context, state *browser.State, action llm.ActionModel) controller.ActionResult {
	if a.registry.Has(action.Name()) {
		if idx, ok := elementIndex(action); ok && !state.HasElement(idx) {
			return controller.ActionResult{Error: fmt.Sprintf(
				"%s failed: element with index %d does not exist - retry or use alternative actions",
				action.Name(), idx)}
		}
	}
	return a.registry.Execute(ctx, a.driver, action.Name(), action.Params())
}

func elementIndex(action llm.ActionModel) (int, bool) {
	var p struct {
		Index *int `json:"index"`
	}
	if err := json.Unmarshal(action.Params(), &p); err != nil || p.Index == nil {
		return 0, false
	}
	return *p.Index, true
}

// noteNoEffect tells the model when the page looks the same as before its
// last successful action.
func (a *Agent) noteNoEffect(state *browser.State) {
	current := state.URL + "\n" + state.ClickableElementsToString(nil)
	defer func() {
		a.prevElements = current
		a.expectChange = false
	}()

	if !a.expectChange || a.prevElements == "" || current != a.prevElements {
		return
	}
	for _, r := range a.lastResults {
		if r.Error != "" {
			return
		}
	}
	a.mem.AddSystemNote(noEffectNote)
}
