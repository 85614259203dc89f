package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/controller"
)

var (
	ErrInterrupted     = errors.New("execution interrupted")
	ErrMaxSteps        = errors.New("max steps reached")
	ErrTooManyFailures = errors.New("too many consecutive failures")
	ErrState           = errors.New("browser state error")
	ErrLLM             = errors.New("llm error")
	ErrModelOutput     = errors.New("invalid model output")
)

// Run executes steps until the model calls done, the step budget runs out,
// too many steps fail in a row, or ctx is cancelled. The returned History
// is never nil; the execution report is printed in every case.
func (a *Agent) Run(ctx context.Context) (*History, error) {
	h := newHistory(a.task)
	a.logger.Info("Starting task",
		zap.String("run_id", h.RunID),
		zap.Int("max_steps", a.opts.MaxSteps),
	)

	err := a.run(ctx, h)

	h.Duration = time.Since(h.StartedAt).Truncate(time.Millisecond)
	a.logger.Info("Run finished",
		zap.String("run_id", h.RunID),
		zap.String("exit_reason", h.ExitReason),
		zap.Int("steps", len(h.Steps)),
		zap.Duration("duration", h.Duration),
	)
	a.reporter.Report(ctx, h, a.mem)
	return h, err
}

func (a *Agent) run(ctx context.Context, h *History) error {
	for step := 0; step < a.opts.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			h.ExitReason = ReasonInterrupted
			return fmt.Errorf("%w: %v", ErrInterrupted, err)
		}

		rec, err := a.executeStep(ctx, step)
		h.Steps = append(h.Steps, rec)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				h.ExitReason = ReasonInterrupted
				return fmt.Errorf("%w: %v", ErrInterrupted, ctxErr)
			}

			a.failures++
			a.reporter.StepError(rec.Step, err)
			a.lastResults = []controller.ActionResult{{Error: err.Error()}}
			if a.failures >= a.opts.MaxFailures {
				h.ExitReason = ReasonTooManyFailures
				return fmt.Errorf("%w: %d in a row, last: %v", ErrTooManyFailures, a.failures, err)
			}
			continue
		}
		a.failures = 0

		if h.IsDone() {
			h.ExitReason = ReasonDone
			return nil
		}

		a.wait(ctx)
	}

	h.ExitReason = ReasonMaxSteps
	return ErrMaxSteps
}
