package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// Strategy selects the order in which registered providers are tried.
type Strategy string

const (
	StrategyPriority          Strategy = "priority"
	StrategyRoundRobin        Strategy = "round_robin"
	StrategyLeastRecentlyUsed Strategy = "least_recently_used"
	StrategyRandom            Strategy = "random"
)

// ParseStrategy converts a config string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyPriority, StrategyRoundRobin, StrategyLeastRecentlyUsed, StrategyRandom:
		return Strategy(s), nil
	case "":
		return StrategyPriority, nil
	default:
		return "", fmt.Errorf("unknown provider strategy %q", s)
	}
}

// Registration couples a provider with its manager-level settings.
type Registration struct {
	Provider Provider

	// Priority orders providers under StrategyPriority; lower tries first.
	Priority int

	// MaxRequests allowed per Window; <= 0 disables rate limiting.
	MaxRequests int
	Window      time.Duration

	// Timeout bounds each call to this provider; <= 0 leaves the
	// caller's context deadline in effect.
	Timeout time.Duration
}

type managed struct {
	provider Provider
	priority int
	order    int
	limiter  *rateLimiter
	timeout  time.Duration

	stats    Stats
	lastUsed time.Time
	lastErr  error
}

// Manager fans generation requests out to registered providers, falling
// through to the next candidate on failure. Registration order breaks
// priority ties. The manager is safe for concurrent use; the providers
// themselves must be too.
type Manager struct {
	mu       sync.Mutex
	entries  []*managed
	strategy Strategy
	rrNext   int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStrategy sets the provider selection strategy.
func WithStrategy(s Strategy) ManagerOption {
	return func(m *Manager) { m.strategy = s }
}

// NewManager creates an empty manager using StrategyPriority unless
// overridden.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{strategy: StrategyPriority}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a provider. Names must be unique within the manager.
func (m *Manager) Register(reg Registration) error {
	if reg.Provider == nil {
		return errors.New("cannot register a nil provider")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	name := reg.Provider.Name()
	for _, e := range m.entries {
		if e.provider.Name() == name {
			return fmt.Errorf("provider %q is already registered", name)
		}
	}
	m.entries = append(m.entries, &managed{
		provider: reg.Provider,
		priority: reg.Priority,
		order:    len(m.entries),
		limiter:  newRateLimiter(reg.MaxRequests, reg.Window),
		timeout:  reg.Timeout,
	})
	return nil
}

// Len returns the number of registered providers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Generate tries providers in strategy order until one succeeds.
// Rate-limited providers are skipped. When every provider fails or is
// limited, the returned error is an [*AllProvidersFailedError] carrying
// each provider's last error and the minimum wait until a limited
// provider frees up.
func (m *Manager) Generate(ctx context.Context, opts GenerateOptions) (*Response, error) {
	candidates := m.candidates()
	if len(candidates) == 0 {
		return nil, &Error{Provider: "manager", Kind: KindNotConfigured, Err: errors.New("no providers registered")}
	}

	lastErrors := make(map[string]error, len(candidates))
	var minWait time.Duration

	for _, c := range candidates {
		name := c.provider.Name()

		if c.limiter.Limited() {
			wait := c.limiter.Wait()
			if minWait == 0 || wait < minWait {
				minWait = wait
			}
			limited := &Error{
				Provider: name,
				Kind:     KindRateLimited,
				Err:      fmt.Errorf("request window full, resets in %s", wait.Round(time.Millisecond)),
			}
			lastErrors[name] = limited
			m.recordError(c, limited)
			slog.Debug("provider rate limited, skipping", "provider", name, "wait", wait)
			continue
		}

		c.limiter.Record()
		resp, err := m.call(ctx, c, opts)
		if err != nil {
			lastErrors[name] = err
			slog.Warn("provider call failed, falling through", "provider", name, "error", err)
			continue
		}
		return resp, nil
	}

	return nil, &AllProvidersFailedError{LastErrors: lastErrors, MinWait: minWait}
}

func (m *Manager) call(ctx context.Context, c *managed, opts GenerateOptions) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.provider.Generate(ctx, opts)
	latency := time.Since(start).Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		werr := wrapErr(c.provider.Name(), err)
		c.stats.record(latency, false)
		c.lastErr = werr
		return nil, werr
	}
	c.stats.record(latency, true)
	c.lastUsed = time.Now()
	return resp, nil
}

func (m *Manager) recordError(c *managed, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.lastErr = err
}

// candidates returns the registered providers in the order the current
// strategy dictates.
func (m *Manager) candidates() []*managed {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*managed, len(m.entries))
	copy(out, m.entries)

	switch m.strategy {
	case StrategyRoundRobin:
		if len(out) > 1 {
			start := m.rrNext % len(out)
			m.rrNext++
			rotated := make([]*managed, 0, len(out))
			rotated = append(rotated, out[start:]...)
			rotated = append(rotated, out[:start]...)
			out = rotated
		}
	case StrategyLeastRecentlyUsed:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].lastUsed.Before(out[j].lastUsed)
		})
	case StrategyRandom:
		rand.Shuffle(len(out), func(i, j int) {
			out[i], out[j] = out[j], out[i]
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].priority != out[j].priority {
				return out[i].priority < out[j].priority
			}
			return out[i].order < out[j].order
		})
	}
	return out
}

// Stats returns a copy of per-provider call statistics keyed by name.
func (m *Manager) Stats() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Stats, len(m.entries))
	for _, e := range m.entries {
		out[e.provider.Name()] = e.stats
	}
	return out
}

// Status describes one registered provider for reporting.
type Status struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	Priority  int    `json:"priority"`
	Available bool   `json:"available"`
	Limited   bool   `json:"limited"`
	LastError string `json:"last_error,omitempty"`
	Stats     Stats  `json:"stats"`
}

// Status probes every registered provider and reports its current state
// in priority order.
func (m *Manager) Status(ctx context.Context) []Status {
	m.mu.Lock()
	entries := make([]*managed, len(m.entries))
	copy(entries, m.entries)
	m.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].order < entries[j].order
	})

	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		available := e.provider.IsAvailable(ctx)

		m.mu.Lock()
		st := Status{
			Name:      e.provider.Name(),
			Model:     e.provider.Model(),
			Priority:  e.priority,
			Available: available,
			Limited:   e.limiter.Limited(),
			Stats:     e.stats,
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		m.mu.Unlock()

		out = append(out, st)
	}
	return out
}

// Close shuts down providers that hold external resources.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	entries := make([]*managed, len(m.entries))
	copy(entries, m.entries)
	m.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if closer, ok := e.provider.(Closer); ok {
			if err := closer.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("closing provider %s: %w", e.provider.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
