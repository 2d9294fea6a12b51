// Package tokens counts prompt tokens with a tiktoken codec.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens of prompt fragments. Every provider is approximated
// with the GPT-4 encoding.
type Counter struct {
	codec tokenizer.Codec
}

func NewCounter() (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("create tokenizer codec: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text. Without a codec, or when
// encoding fails, it falls back to four characters per token.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return len(text) / 4
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// Fit returns the longest prefix of parts whose summed token count stays
// within budget. A budget <= 0 keeps everything.
func (c *Counter) Fit(parts []string, budget int) []string {
	if budget <= 0 {
		return parts
	}
	used := 0
	for i, p := range parts {
		used += c.Count(p)
		if used > budget {
			return parts[:i]
		}
	}
	return parts
}
