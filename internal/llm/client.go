// Package llm provides the text-completion client used by fact
// extraction, sentiment analysis, and fact reconciliation, plus the
// defensive parsing helpers for model output.
package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// CompletionClient abstracts the text-completion service. Implementations
// can target OpenAI, a local endpoint, or a test double.
type CompletionClient interface {
	// Complete sends a system instruction plus a user prompt and returns
	// the model's text response.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Client is an OpenAI-compatible CompletionClient.
type Client struct {
	client  *openai.Client
	model   string
	verbose bool
}

// Config holds connection settings for the completion service.
type Config struct {
	Endpoint string // base URL, e.g. "https://api.openai.com/v1"
	Model    string // e.g. "gpt-4o-mini"
	APIKey   string // optional for local endpoints
	Verbose  bool
}

// NewClient creates a client for an OpenAI-compatible endpoint.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}
	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		verbose: cfg.Verbose,
	}, nil
}

// Complete implements CompletionClient.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	if c.verbose {
		log.Printf("[llm] %s: %d prompt chars -> %d response chars in %v",
			c.model, len(system)+len(prompt), len(content), time.Since(start).Round(time.Millisecond))
	}
	return content, nil
}
