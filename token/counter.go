// Package token estimates the token cost of text.
//
// The counter prefers a real model encoding and falls back to a
// character-count heuristic, so counting never fails.
package token

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// Counter counts tokens for context-budget arithmetic.
// Counts are deterministic within a process: the encoding is resolved once
// and either used for every call or never.
type Counter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewCounter returns a counter. Encoding setup is deferred to first use.
func NewCounter() *Counter {
	return &Counter{}
}

// Count returns the token count for text. It never fails: if the encoding
// cannot be loaded, the character-count fallback is used instead.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			c.enc = enc
		}
	})
	if c.enc == nil {
		return fallbackCount(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// fallbackCount approximates tokens as ceil(len/4).
func fallbackCount(text string) int {
	return (len(text) + 3) / 4
}
