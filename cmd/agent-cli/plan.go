package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nbenliogludev/go-browser-use/internal/llm"
)

func (a *app) planTask(cmd *cobra.Command, _ []string) error {
	client, err := llm.NewOpenAIClient(a.cfg.LLM, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	plan, err := a.newPlanner(client).GetTaskPlan(cmd.Context(), a.cfg.Run.Task)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(data))
	return nil
}
