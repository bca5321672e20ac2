// Package llm provides text-generation backends behind one adapter
// interface. The provider set is closed at construction time: the
// registry builds every configured client once, and callers resolve a
// client by provider id instead of dispatching per call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fabfab/knowledge-copilot/config"
)

// ErrUnavailable reports a generation backend timeout or fault. The
// caller never receives partial output alongside it.
var ErrUnavailable = errors.New("generation unavailable")

// ErrUnknownProvider reports a provider id outside the configured set.
var ErrUnknownProvider = errors.New("unknown provider")

// ProbeResult is the outcome of a liveness round trip against a
// backend: a minimal one-token generation that confirms the model
// answers without materially spending quota.
type ProbeResult struct {
	Model   string
	Latency time.Duration
}

// Client generates text from a prompt. Generate blocks until the
// backend answers or the adapter's timeout expires; on timeout or
// backend fault it fails with ErrUnavailable.
type Client interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	Probe(ctx context.Context) (ProbeResult, error)
	Provider() string
	Model() string
}

type Options struct {
	Model   string
	Timeout time.Duration

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// Registry holds the closed set of generation clients built from
// configuration.
type Registry struct {
	clients         map[string]Client
	defaultProvider string
}

// NewRegistry constructs every provider the configuration supports.
// The Ollama client needs no credentials and is always present; the
// OpenAI client joins the set when an API key is configured. The
// configured default provider must be constructable.
func NewRegistry(cfg config.Config) (*Registry, error) {
	opts := Options{
		Model:         cfg.LLM.Model,
		Timeout:       cfg.LLM.Timeout,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	clients := map[string]Client{
		config.ProviderOllama: NewOllamaClient(opts),
	}
	if opts.OpenAIAPIKey != "" {
		clients[config.ProviderOpenAI] = NewOpenAIClient(opts)
	}

	if _, ok := clients[cfg.LLM.Provider]; !ok {
		return nil, fmt.Errorf("default llm provider %q is not configured", cfg.LLM.Provider)
	}

	return &Registry{clients: clients, defaultProvider: cfg.LLM.Provider}, nil
}

// NewRegistryFromClients builds a registry from pre-constructed
// clients, keyed by their Provider id. defaultProvider must name one
// of them.
func NewRegistryFromClients(defaultProvider string, clients ...Client) (*Registry, error) {
	set := make(map[string]Client, len(clients))
	for _, client := range clients {
		set[client.Provider()] = client
	}
	if _, ok := set[defaultProvider]; !ok {
		return nil, fmt.Errorf("default llm provider %q is not configured", defaultProvider)
	}
	return &Registry{clients: set, defaultProvider: defaultProvider}, nil
}

// Get resolves a provider id; the empty string selects the default.
func (r *Registry) Get(provider string) (Client, error) {
	if provider == "" {
		provider = r.defaultProvider
	}
	client, ok := r.clients[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return client, nil
}

// Providers lists the configured provider ids.
func (r *Registry) Providers() []string {
	providers := make([]string, 0, len(r.clients))
	for provider := range r.clients {
		providers = append(providers, provider)
	}
	return providers
}

// DefaultProvider returns the provider used when requests omit one.
func (r *Registry) DefaultProvider() string {
	return r.defaultProvider
}
