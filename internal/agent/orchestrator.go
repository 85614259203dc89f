package agent

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/browser"
	"github.com/nbenliogludev/go-browser-use/internal/controller"
	"github.com/nbenliogludev/go-browser-use/internal/llm"
	"github.com/nbenliogludev/go-browser-use/internal/planner"
)

// Orchestrator turns a raw task into a plan and hands the plan to an
// Agent running against one browser session.
type Orchestrator struct {
	planner  *planner.TaskPlanner
	llm      llm.Client
	driver   browser.Driver
	registry *controller.Registry

	planFirst bool
	startURL  string
	opts      Options

	out    io.Writer
	logger *zap.Logger
}

type OrchestratorConfig struct {
	// PlanFirst runs the task planner before the agent; when false the raw
	// task goes to the agent unchanged.
	PlanFirst bool
	StartURL  string
	Agent     Options
	Out       io.Writer
}

func NewOrchestrator(p *planner.TaskPlanner, client llm.Client, d browser.Driver, registry *controller.Registry, cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Agent.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	return &Orchestrator{
		planner:   p,
		llm:       client,
		driver:    d,
		registry:  registry,
		planFirst: cfg.PlanFirst,
		startURL:  cfg.StartURL,
		opts:      cfg.Agent,
		out:       out,
		logger:    logger.Named("orchestrator"),
	}
}

// Run plans rawTask and executes it. A task the model rejects yields a
// *planner.InvalidTaskError and no browser activity.
func (o *Orchestrator) Run(ctx context.Context, rawTask string) (*History, error) {
	rawTask = strings.TrimSpace(rawTask)
	if rawTask == "" {
		return nil, planner.ErrEmptyTask
	}

	task := rawTask
	if o.planFirst {
		plan, err := o.planner.GetTaskPlan(ctx, rawTask)
		if err != nil {
			return nil, fmt.Errorf("build plan failed: %w", err)
		}
		if !plan.IsValidTask {
			fmt.Fprintf(o.out, "🚫 Task rejected: %s\n", plan.InvalidReason)
			return nil, &planner.InvalidTaskError{Reason: plan.InvalidReason}
		}

		fmt.Fprintf(o.out, "📋 PLAN:\n%s\n", plan.TaskPlan)
		task = plan.AgentTask(rawTask)
	}

	task = BuildTaskWithEnvironment(task, o.startURL)

	// Credentials are substituted only now so they never reach the planner.
	task, missing := ExpandCredentials(task)
	if len(missing) > 0 {
		o.logger.Warn("Task references unset environment variables", zap.Strings("vars", missing))
	}

	if o.startURL != "" {
		if err := o.driver.Navigate(ctx, o.startURL); err != nil {
			return nil, fmt.Errorf("failed to open start url: %w", err)
		}
	}

	opts := o.opts
	reporter := NewReporter(rawTask, o.out, opts.Logger)
	if opts.Summarize {
		reporter.WithSummary(o.llm)
	}
	opts.Reporter = reporter

	return NewAgent(task, o.llm, o.driver, o.registry, opts).Run(ctx)
}
