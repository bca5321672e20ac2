package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State classifies a backend connection.
type State string

const (
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
	StateDisconnected State = "disconnected"
)

// Status is the last-known condition of one provider's backend.
type Status struct {
	Provider  string    `json:"provider"`
	State     State     `json:"status"`
	Model     string    `json:"model,omitempty"`
	Detail    string    `json:"details,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

const (
	defaultStatusTTL         = 30 * time.Second
	defaultDegradedThreshold = 2 * time.Second
)

// Monitor probes generation backends and memoizes the result per
// provider, bounding probe frequency to one per TTL window. Callers
// needing an up-to-date answer use Refresh.
type Monitor struct {
	registry          *Registry
	ttl               time.Duration
	degradedThreshold time.Duration
	now               func() time.Time

	mu    sync.Mutex
	cache map[string]Status
}

func NewMonitor(registry *Registry, ttl time.Duration) *Monitor {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &Monitor{
		registry:          registry,
		ttl:               ttl,
		degradedThreshold: defaultDegradedThreshold,
		now:               time.Now,
		cache:             make(map[string]Status),
	}
}

// Status returns the memoized status for the provider, probing only
// when the cached entry is missing or older than the TTL. Probe
// failures produce a disconnected status, not an error; the only error
// is an unknown provider.
func (m *Monitor) Status(ctx context.Context, provider string) (Status, error) {
	client, err := m.registry.Get(provider)
	if err != nil {
		return Status{}, err
	}

	m.mu.Lock()
	cached, ok := m.cache[client.Provider()]
	m.mu.Unlock()
	if ok && m.now().Sub(cached.CheckedAt) < m.ttl {
		return cached, nil
	}

	return m.probe(ctx, client), nil
}

// Refresh forces a probe regardless of the cached entry's age.
func (m *Monitor) Refresh(ctx context.Context, provider string) (Status, error) {
	client, err := m.registry.Get(provider)
	if err != nil {
		return Status{}, err
	}
	return m.probe(ctx, client), nil
}

func (m *Monitor) probe(ctx context.Context, client Client) Status {
	status := Status{
		Provider:  client.Provider(),
		Model:     client.Model(),
		CheckedAt: m.now(),
	}

	result, err := client.Probe(ctx)
	switch {
	case err != nil:
		status.State = StateDisconnected
		status.Detail = err.Error()
	case result.Latency > m.degradedThreshold:
		status.State = StateDegraded
		status.Detail = fmt.Sprintf("probe latency %s exceeds %s", result.Latency.Round(time.Millisecond), m.degradedThreshold)
	default:
		status.State = StateConnected
	}

	m.mu.Lock()
	m.cache[status.Provider] = status
	m.mu.Unlock()
	return status
}
