package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fabfab/knowledge-copilot/config"
)

type openAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIClient(opts Options) Client {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}

	return &openAIClient{
		client:  openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		timeout: timeout,
	}
}

func (c *openAIClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: openai chat completion timed out after %s", ErrUnavailable, c.timeout)
		}
		return "", fmt.Errorf("%w: create openai chat completion: %v", ErrUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai chat completion returned no choices", ErrUnavailable)
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) Probe(ctx context.Context) (ProbeResult, error) {
	start := time.Now()
	if _, err := c.Generate(ctx, "ping", 1); err != nil {
		return ProbeResult{}, err
	}
	return ProbeResult{Model: c.model, Latency: time.Since(start)}, nil
}

func (c *openAIClient) Provider() string {
	return config.ProviderOpenAI
}

func (c *openAIClient) Model() string {
	return c.model
}

var _ Client = (*openAIClient)(nil)
