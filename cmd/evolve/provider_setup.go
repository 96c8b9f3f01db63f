package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/evolvehq/evolve/internal/cache"
	"github.com/evolvehq/evolve/internal/projectconfig"
	"github.com/evolvehq/evolve/internal/provider"
)

// applyProviderEnv pushes provider settings from the project config and
// CLI flags into the EVOLVE_* environment variables that
// provider.FromEnv reads. Config values only fill variables the user
// has not already set; flag values always win.
func applyProviderEnv(cfg *projectconfig.ProjectConfig, providersFlag, strategyFlag string) {
	if len(cfg.Providers.Order) > 0 {
		setenvDefault("EVOLVE_PROVIDERS", strings.Join(cfg.Providers.Order, ","))
	}
	if cfg.Providers.Strategy != "" {
		setenvDefault("EVOLVE_STRATEGY", cfg.Providers.Strategy)
	}
	if cfg.Providers.RateLimit > 0 {
		setenvDefault("EVOLVE_RATE_LIMIT", strconv.Itoa(cfg.Providers.RateLimit))
	}
	if cfg.Providers.RateWindow > 0 {
		setenvDefault("EVOLVE_RATE_WINDOW", strconv.Itoa(cfg.Providers.RateWindow))
	}
	if cfg.Providers.Timeout > 0 {
		setenvDefault("EVOLVE_TIMEOUT", strconv.Itoa(cfg.Providers.Timeout))
	}

	if providersFlag != "" {
		os.Setenv("EVOLVE_PROVIDERS", providersFlag)
	}
	if strategyFlag != "" {
		os.Setenv("EVOLVE_STRATEGY", strategyFlag)
	}
}

func setenvDefault(key, value string) {
	if os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}

// newProviderManager builds the provider manager for a command run.
// When caching is enabled every provider is wrapped in a response
// cache; the returned slice exposes the wrappers so callers can report
// hit rates afterwards.
func newProviderManager(cfg *projectconfig.ProjectConfig, providersFlag, strategyFlag string, useCache bool, cacheDir string) (*provider.Manager, []*cache.Provider, error) {
	applyProviderEnv(cfg, providersFlag, strategyFlag)

	if !useCache {
		m, err := provider.FromEnv()
		return m, nil, err
	}

	respCache := cache.New(cacheDir)
	var cached []*cache.Provider
	m, err := provider.FromEnv(provider.WithDecorator(func(p provider.Provider) provider.Provider {
		cp := cache.Wrap(p, respCache)
		cached = append(cached, cp)
		return cp
	}))
	if err != nil {
		return nil, nil, err
	}
	return m, cached, nil
}
