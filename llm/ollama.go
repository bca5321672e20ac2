package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fabfab/knowledge-copilot/config"
)

const defaultOllamaTimeout = 60 * time.Second

type ollamaClient struct {
	host    string
	model   string
	timeout time.Duration
	client  *http.Client
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func NewOllamaClient(opts Options) Client {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}

	return &ollamaClient{
		host:    host,
		model:   opts.Model,
		timeout: timeout,
		client:  &http.Client{},
	}
}

func (c *ollamaClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	}
	if maxTokens > 0 {
		payload.Options = &ollamaOptions{NumPredict: maxTokens}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", fmt.Errorf("%w: ollama generate timed out after %s", ErrUnavailable, c.timeout)
		}
		return "", fmt.Errorf("%w: call ollama generate API: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, readErr := io.ReadAll(resp.Body)
		if readErr == nil && len(data) > 0 {
			return "", fmt.Errorf("%w: ollama generate API error: %s", ErrUnavailable, string(data))
		}
		return "", fmt.Errorf("%w: ollama generate API returned status %s", ErrUnavailable, resp.Status)
	}

	var parsed ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode ollama response: %v", ErrUnavailable, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: ollama generate error: %s", ErrUnavailable, parsed.Error)
	}

	return parsed.Response, nil
}

func (c *ollamaClient) Probe(ctx context.Context) (ProbeResult, error) {
	start := time.Now()
	if _, err := c.Generate(ctx, "ping", 1); err != nil {
		return ProbeResult{}, err
	}
	return ProbeResult{Model: c.model, Latency: time.Since(start)}, nil
}

func (c *ollamaClient) Provider() string {
	return config.ProviderOllama
}

func (c *ollamaClient) Model() string {
	return c.model
}

var _ Client = (*ollamaClient)(nil)
