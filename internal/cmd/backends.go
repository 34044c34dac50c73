package cmd

import (
	"errors"
	"fmt"

	"github.com/stevedore/stevedore/internal/config"
	"github.com/stevedore/stevedore/internal/core"
	"github.com/stevedore/stevedore/internal/core/backend"
	"github.com/stevedore/stevedore/internal/core/ratelimit"
)

// buildBackend constructs one storage backend from its configuration.
func buildBackend(bc config.BackendConfig) (backend.Backend, error) {
	name := bc.Name
	if name == "" {
		name = bc.ID
	}

	switch bc.Type {
	case core.BackendTypeLocalFS:
		return backend.NewLocalFS(bc.ID, name, bc.Root)
	case core.BackendTypeS3:
		return backend.NewS3(bc.ID, name, backend.S3Config{
			Endpoint:  bc.Endpoint,
			Bucket:    bc.Bucket,
			AccessKey: bc.AccessKey,
			SecretKey: bc.SecretKey,
			Secure:    bc.Secure,
		})
	default:
		return nil, fmt.Errorf("backend %s: unknown type %q", bc.ID, bc.Type)
	}
}

// buildBackends constructs every configured backend in stable ID order.
func buildBackends(cfg *config.Config) ([]backend.Backend, error) {
	ordered := cfg.OrderedBackends()
	backends := make([]backend.Backend, 0, len(ordered))
	for _, bc := range ordered {
		b, err := buildBackend(bc)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return backends, nil
}

// resolveBackend finds and constructs one configured backend by ID. With an
// empty id and exactly one configured backend, that backend is used.
func resolveBackend(cfg *config.Config, id string) (backend.Backend, error) {
	if id == "" {
		ordered := cfg.OrderedBackends()
		if len(ordered) == 1 {
			return buildBackend(ordered[0])
		}
		return nil, errors.New("--backend is required when multiple backends are configured")
	}

	bc, ok := cfg.Backend(id)
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", id)
	}
	return buildBackend(bc)
}

// limiterConfig maps the application rate limit settings onto the limiter.
func limiterConfig(cfg *config.Config) ratelimit.Config {
	return ratelimit.Config{
		Strategy:          ratelimit.Strategy(cfg.RateLimit.Strategy),
		MaxRequests:       cfg.RateLimit.MaxRequests,
		Window:            cfg.RateLimit.Window,
		BurstSize:         cfg.RateLimit.BurstSize,
		RetryAfter:        cfg.RateLimit.RetryAfter,
		EnableBackoff:     cfg.RateLimit.EnableBackoff,
		BackoffMultiplier: cfg.RateLimit.BackoffMultiplier,
		MaxBackoffDelay:   cfg.RateLimit.MaxBackoffDelay,
	}
}
