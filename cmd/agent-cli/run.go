package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/agent"
	"github.com/nbenliogludev/go-browser-use/internal/browser"
	"github.com/nbenliogludev/go-browser-use/internal/controller"
	"github.com/nbenliogludev/go-browser-use/internal/llm"
	"github.com/nbenliogludev/go-browser-use/internal/planner"
)

func (a *app) newPlanner(client llm.Client) *planner.TaskPlanner {
	return planner.NewTaskPlanner(client, planner.Options{
		Model:  a.cfg.LLM.PlannerModel,
		Logger: a.logger,
	})
}

func (a *app) runTask(cmd *cobra.Command, _ []string) error {
	ctx, stop := agent.WithInterrupt(cmd.Context())
	defer stop()

	client, err := llm.NewOpenAIClient(a.cfg.LLM, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	driver, err := browser.NewDriver(a.cfg.Browser, a.logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer driver.Close()

	orch := agent.NewOrchestrator(a.newPlanner(client), client, driver, controller.New(a.logger), agent.OrchestratorConfig{
		PlanFirst: a.cfg.Agent.PlanFirst,
		StartURL:  a.cfg.Run.StartURL,
		Agent: agent.Options{
			AgentConfig:    a.cfg.Agent,
			Model:          a.cfg.LLM.Model,
			PostActionWait: a.cfg.Browser.PostActionWait,
			Logger:         a.logger,
		},
		Out: a.out,
	})

	history, err := orch.Run(ctx, a.cfg.Run.Task)

	var invalid *planner.InvalidTaskError
	if errors.As(err, &invalid) {
		a.logger.Info("Task rejected by planner", zap.String("reason", invalid.Reason))
		return nil
	}

	if history != nil {
		if path := a.cfg.Run.SaveHistory; path != "" {
			if saveErr := history.Save(path); saveErr != nil {
				a.logger.Error("Failed to save history", zap.String("path", path), zap.Error(saveErr))
			} else {
				a.logger.Info("History saved", zap.String("path", path), zap.String("run_id", history.RunID))
			}
		}
		if history.IsDone() {
			fmt.Fprintf(a.out, "\nResult: %s\n", history.FinalResult())
		}
	}
	return err
}
