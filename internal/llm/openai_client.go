package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/config"
)

// OpenAIClient talks to the OpenAI chat completions API or any compatible
// gateway configured through llm.base_url.
type OpenAIClient struct {
	client *openai.Client
	cfg    config.LLMConfig
	logger *zap.Logger

	retryInterval time.Duration
}

func NewOpenAIClient(cfg config.LLMConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &OpenAIClient{
		client:        openai.NewClientWithConfig(oc),
		cfg:           cfg,
		logger:        logger.Named("llm.openai"),
		retryInterval: 3 * time.Second,
	}, nil
}

// Chat sends messages and returns the content of the first choice.
// Rate-limited calls are retried with exponential backoff until
// llm.max_retry_elapsed; any other failure is returned immediately.
func (c *OpenAIClient) Chat(ctx context.Context, messages []openai.ChatCompletionMessage, opts ChatOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	// go-openai omits a zero temperature and the API default is 1.0
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	if opts.MaxTokens != 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	if c.cfg.MaxRetryElapsed > 0 {
		b.MaxElapsedTime = c.cfg.MaxRetryElapsed
	}

	var content string
	attempt := 0

	operation := func() error {
		attempt++
		start := time.Now()
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if isRateLimited(err) {
				c.logger.Warn("Rate limited by LLM API, retrying...",
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				return err
			}
			return backoff.Permanent(fmt.Errorf("OpenAI error: %w", err))
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("no response choices"))
		}

		c.logger.Debug("LLM call complete",
			zap.String("model", req.Model),
			zap.Duration("duration", time.Since(start)),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		)
		content = resp.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return content, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

var _ Client = (*OpenAIClient)(nil)
