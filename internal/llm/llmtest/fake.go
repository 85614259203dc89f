// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nbenliogludev/go-browser-use/internal/llm"
)

// ErrExhausted is returned once every scripted reply has been used.
var ErrExhausted = errors.New("llmtest: no scripted replies left")

// Reply is one scripted answer.
type Reply struct {
	Content string
	Err     error
}

// Request is one recorded call.
type Request struct {
	Messages []openai.ChatCompletionMessage
	Options  llm.ChatOptions
}

type Client struct {
	mu       sync.Mutex
	replies  []Reply
	Requests []Request
}

// New returns a client answering with contents in order.
func New(contents ...string) *Client {
	c := &Client{}
	for _, content := range contents {
		c.replies = append(c.replies, Reply{Content: content})
	}
	return c
}

// Push appends scripted replies.
func (c *Client) Push(replies ...Reply) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, replies...)
	return c
}

func (c *Client) Chat(ctx context.Context, messages []openai.ChatCompletionMessage, opts llm.ChatOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Requests = append(c.Requests, Request{
		Messages: append([]openai.ChatCompletionMessage(nil), messages...),
		Options:  opts,
	})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(c.replies) == 0 {
		return "", ErrExhausted
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r.Content, r.Err
}

// Calls returns how many requests were made.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

var _ llm.Client = (*Client)(nil)
