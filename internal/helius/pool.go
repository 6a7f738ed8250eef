package helius

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/copytrail/internal/logger"
	"github.com/wnt/copytrail/internal/metrics"
	"golang.org/x/time/rate"
)

// Pool manages the RPC endpoints used for signature paging, with round-robin
// selection, per-endpoint rate limiting and cooldown after 429s.
type Pool struct {
	endpoints []*Endpoint
	current   int
	mutex     sync.Mutex
	logger    zerolog.Logger
}

// Endpoint is a single RPC endpoint with its own limiter and health state.
type Endpoint struct {
	URL           string
	client        *http.Client
	limiter       *rate.Limiter
	healthy       bool
	cooldownUntil time.Time
	mutex         sync.RWMutex
}

// NewPool creates a pool over the given endpoint URLs. minInterval is the
// rate-limit floor between calls to the same endpoint.
func NewPool(urls []string, minInterval time.Duration, baseLogger zerolog.Logger) *Pool {
	endpoints := make([]*Endpoint, len(urls))

	for i, url := range urls {
		endpoints[i] = &Endpoint{
			URL: url,
			client: &http.Client{
				Timeout: 30 * time.Second,
			},
			limiter: rate.NewLimiter(rate.Every(minInterval), 1),
			healthy: true,
		}
		metrics.SetRPCEndpointHealth(url, true)
	}

	return &Pool{
		endpoints: endpoints,
		current:   rand.Intn(len(endpoints)),
		logger:    logger.WithComponent(baseLogger, "rpc_pool"),
	}
}

// Acquire returns the next healthy endpoint, waiting on its limiter. When
// every endpoint is cooling down or rate limited it blocks on the first one.
func (p *Pool) Acquire(ctx context.Context) (*http.Client, string, error) {
	p.mutex.Lock()

	var chosen *Endpoint
	startIndex := p.current
	for attempts := 0; attempts < len(p.endpoints); attempts++ {
		endpoint := p.endpoints[p.current]
		p.current = (p.current + 1) % len(p.endpoints)

		endpoint.mutex.RLock()
		available := endpoint.healthy && time.Now().After(endpoint.cooldownUntil)
		endpoint.mutex.RUnlock()

		if available {
			chosen = endpoint
			break
		}
	}
	if chosen == nil {
		// Everything is unhealthy or cooling down; fall back to the
		// round-robin position and let the limiter pace us.
		chosen = p.endpoints[startIndex]
		p.logger.Debug().Str("endpoint", chosen.URL).Msg("All endpoints unavailable, using fallback")
	}
	p.mutex.Unlock()

	if err := chosen.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("rate limit wait interrupted: %w", err)
	}

	return chosen.client, chosen.URL, nil
}

// MarkUnhealthy marks an endpoint as unhealthy
func (p *Pool) MarkUnhealthy(url string) {
	for _, endpoint := range p.endpoints {
		if endpoint.URL == url {
			endpoint.mutex.Lock()
			endpoint.healthy = false
			endpoint.mutex.Unlock()

			metrics.SetRPCEndpointHealth(url, false)
			p.logger.Warn().Str("endpoint", url).Msg("Marked endpoint as unhealthy")
			break
		}
	}
}

// MarkHealthy marks an endpoint as healthy and clears any cooldown
func (p *Pool) MarkHealthy(url string) {
	for _, endpoint := range p.endpoints {
		if endpoint.URL == url {
			endpoint.mutex.Lock()
			wasHealthy := endpoint.healthy
			endpoint.healthy = true
			endpoint.cooldownUntil = time.Time{}
			endpoint.mutex.Unlock()

			metrics.SetRPCEndpointHealth(url, true)
			if !wasHealthy {
				p.logger.Info().Str("endpoint", url).Msg("Marked endpoint as healthy")
			}
			break
		}
	}
}

// SetCooldown puts an endpoint in cooldown for the specified duration
func (p *Pool) SetCooldown(url string, duration time.Duration) {
	for _, endpoint := range p.endpoints {
		if endpoint.URL == url {
			endpoint.mutex.Lock()
			endpoint.cooldownUntil = time.Now().Add(duration)
			endpoint.mutex.Unlock()

			p.logger.Warn().
				Str("endpoint", url).
				Dur("duration", duration).
				Msg("Set endpoint cooldown")
			break
		}
	}
}

// HealthyEndpointCount returns the number of currently usable endpoints
func (p *Pool) HealthyEndpointCount() int {
	count := 0
	for _, endpoint := range p.endpoints {
		endpoint.mutex.RLock()
		if endpoint.healthy && time.Now().After(endpoint.cooldownUntil) {
			count++
		}
		endpoint.mutex.RUnlock()
	}
	return count
}
