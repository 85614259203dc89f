package llm

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type SummaryInput struct {
	Task       string
	ExitReason string
	Duration   string
	FinalURL   string
	Steps      []string
}

func (in SummaryInput) prompt() string {
	var sb strings.Builder
	sb.WriteString("TASK:\n" + in.Task + "\n\n")
	sb.WriteString("EXIT_REASON:\n" + in.ExitReason + "\n\n")
	sb.WriteString("DURATION:\n" + in.Duration + "\n\n")

	if in.FinalURL != "" {
		sb.WriteString("FINAL_URL:\n" + in.FinalURL + "\n\n")
	}

	if len(in.Steps) > 0 {
		sb.WriteString("STEPS:\n")
		for _, s := range in.Steps {
			sb.WriteString(s + "\n")
		}
	}
	return sb.String()
}

// SummarizeRun asks the model for a short human-readable report of a run.
func SummarizeRun(ctx context.Context, c Client, in SummaryInput) (string, error) {
	return c.Chat(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: in.prompt()},
	}, ChatOptions{Temperature: Temperature(0.2), MaxTokens: 600})
}
