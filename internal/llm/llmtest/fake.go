// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"
)

// Call records one prompt sent to the fake
type Call struct {
	Text        string
	Instruction string
}

// Client answers prompts with a responder function and records every call
type Client struct {
	Respond func(text, instruction string) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Queue returns a client that answers successive prompts with responses in order
func Queue(responses ...string) *Client {
	var mu sync.Mutex
	next := 0
	return &Client{Respond: func(text, _ string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(responses) {
			return "", fmt.Errorf("llmtest: no scripted response for %q", text)
		}
		out := responses[next]
		next++
		return out, nil
	}}
}

// Prompt implements llm.Client
func (c *Client) Prompt(ctx context.Context, text string) (string, error) {
	return c.PromptWithSystemInstruction(ctx, text, "")
}

// PromptWithSystemInstruction implements llm.Client
func (c *Client) PromptWithSystemInstruction(ctx context.Context, text, instruction string) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Text: text, Instruction: instruction})
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.Respond(text, instruction)
}

// Calls returns a copy of the recorded calls
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}
