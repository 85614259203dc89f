package llm

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
)

const (
	perMessageOverhead = 4
	// imageTokens approximates a low-detail image part.
	imageTokens = 85
)

var (
	encodersMu sync.Mutex
	encoders   = map[string]*tiktoken.Tiktoken{}
)

// EstimateTokens approximates the prompt size of messages for model. It
// falls back to cl100k_base for unknown models and to a character heuristic
// when no encoding is available at all.
func EstimateTokens(model string, messages []openai.ChatCompletionMessage) int {
	enc := encodingForModel(model)

	total := 0
	for _, m := range messages {
		total += perMessageOverhead + tokenCount(enc, m.Content)
		for _, part := range m.MultiContent {
			switch part.Type {
			case openai.ChatMessagePartTypeText:
				total += tokenCount(enc, part.Text)
			case openai.ChatMessagePartTypeImageURL:
				total += imageTokens
			}
		}
	}
	return total
}

func encodingForModel(model string) *tiktoken.Tiktoken {
	encodersMu.Lock()
	defer encodersMu.Unlock()

	if enc, ok := encoders[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
	}
	encoders[model] = enc
	return enc
}

func tokenCount(enc *tiktoken.Tiktoken, text string) int {
	if text == "" {
		return 0
	}
	if enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	// roughly four characters per token
	return (utf8.RuneCountInString(text) + 3) / 4
}
