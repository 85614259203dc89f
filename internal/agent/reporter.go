package agent

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/controller"
	"github.com/nbenliogludev/go-browser-use/internal/llm"
)

const summaryTimeout = time.Minute

// Reporter prints the step-by-step decisions and the final execution
// report for a human watching the run.
type Reporter struct {
	task   string
	out    io.Writer
	logger *zap.Logger
	trace  []string

	summarizer llm.Client
}

func NewReporter(task string, out io.Writer, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		task:   task,
		out:    out,
		logger: logger.Named("reporter"),
	}
}

// WithSummary enables an LLM-written summary at the end of the report.
func (r *Reporter) WithSummary(c llm.Client) *Reporter {
	r.summarizer = c
	return r
}

func (r *Reporter) LogDecision(step int, url string, out *llm.AgentOutput) {
	actions := make([]string, len(out.Action))
	for i, a := range out.Action {
		actions[i] = a.String()
	}

	fmt.Fprintln(r.out, strings.Repeat("-", 40))
	fmt.Fprintf(r.out, "📍 STEP %d: %s\n", step, url)
	fmt.Fprintf(r.out, "👀 EVAL:      %s\n", out.CurrentState.EvaluationPreviousGoal)
	fmt.Fprintf(r.out, "🧠 MEMORY:    %s\n", out.CurrentState.Memory)
	fmt.Fprintf(r.out, "🎯 NEXT GOAL: %s\n", out.CurrentState.NextGoal)
	fmt.Fprintf(r.out, "⚡ ACTION:    %s\n", strings.Join(actions, ", "))
	fmt.Fprintln(r.out, strings.Repeat("-", 40))

	r.logger.Debug("Model decision",
		zap.Int("step", step),
		zap.String("url", url),
		zap.String("next_goal", out.CurrentState.NextGoal),
		zap.Strings("actions", actions),
	)

	r.trace = append(r.trace, fmt.Sprintf(
		"STEP %d | URL=%s | GOAL=%s | ACTION=%s",
		step, url, out.CurrentState.NextGoal, strings.Join(actions, ", "),
	))
}

func (r *Reporter) LogResult(step int, action llm.ActionModel, res controller.ActionResult) {
	switch {
	case res.Error != "":
		fmt.Fprintf(r.out, "❌ %s: %s\n", action.Name(), res.Error)
		r.trace = append(r.trace, fmt.Sprintf("STEP %d | ERROR=%s", step, res.Error))
	case res.IsDone:
		fmt.Fprintf(r.out, "✅ Task completed: %s\n", res.ExtractedContent)
	case res.ExtractedContent != "":
		fmt.Fprintf(r.out, "📄 %s\n", firstLine(res.ExtractedContent, 200))
	}
}

func (r *Reporter) StepError(step int, err error) {
	fmt.Fprintf(r.out, "⚠️ Step %d error: %v\n", step, err)
	r.logger.Warn("Step failed", zap.Int("step", step), zap.Error(err))
	r.trace = append(r.trace, fmt.Sprintf("STEP %d | FAILED=%v", step, err))
}

// Report prints the execution report. It runs after cancellation too, so
// the optional summary call gets its own deadline.
func (r *Reporter) Report(ctx context.Context, h *History, mem *StepMemory) {
	fmt.Fprintln(r.out, "\n===== EXECUTION REPORT =====")
	fmt.Fprintf(r.out, "Run ID: %s\n", h.RunID)
	fmt.Fprintf(r.out, "Task: %s\n", r.task)
	fmt.Fprintf(r.out, "Duration: %s\n", h.Duration)
	fmt.Fprintf(r.out, "Steps: %d\n", len(h.Steps))
	fmt.Fprintf(r.out, "Exit reason: %s\n", humanizeReason(h.ExitReason))
	if mem != nil && mem.LoopTriggered() {
		fmt.Fprintln(r.out, "Loop guard: triggered")
	}
	if h.IsDone() {
		fmt.Fprintf(r.out, "Final result: %s\n", h.FinalResult())
	}

	fmt.Fprintln(r.out, "\n--- RAW STEP TRACE ---")
	if len(r.trace) == 0 {
		fmt.Fprintln(r.out, "(no actions recorded)")
	}
	for _, line := range r.trace {
		fmt.Fprintln(r.out, line)
	}

	if r.summarizer != nil {
		fmt.Fprintln(r.out, "\n--- LLM SUMMARY ---")
		summary, err := r.summarize(ctx, h, mem)
		if err != nil {
			r.logger.Warn("Failed to generate run summary", zap.Error(err))
			fmt.Fprintln(r.out, "(failed to generate summary)")
		} else {
			fmt.Fprintln(r.out, summary)
		}
	}

	fmt.Fprintln(r.out, "===== END OF REPORT =====")
}

func (r *Reporter) summarize(ctx context.Context, h *History, mem *StepMemory) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
	defer cancel()

	var steps []string
	if mem != nil {
		steps = mem.FullHistory()
	}
	return llm.SummarizeRun(ctx, r.summarizer, llm.SummaryInput{
		Task:       r.task,
		ExitReason: humanizeReason(h.ExitReason),
		Duration:   h.Duration.String(),
		FinalURL:   h.FinalURL(),
		Steps:      steps,
	})
}
