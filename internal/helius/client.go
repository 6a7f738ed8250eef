package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/wnt/copytrail/internal/config"
	"github.com/wnt/copytrail/internal/errs"
	"github.com/wnt/copytrail/internal/logger"
	"github.com/wnt/copytrail/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	maxRetries      = 5
	initialInterval = 2 * time.Second
	// Extra pause applied on an explicit 429 before the backoff interval.
	rateLimitPenalty = 4 * time.Second
)

// Client talks to the upstream provider: signature pages over the RPC
// endpoint pool and enhanced-transaction batches over the Helius API.
type Client struct {
	pool            *Pool
	enhancedURL     string
	enhancedClient  *http.Client
	enhancedLimiter *rate.Limiter
	logger          zerolog.Logger
}

// NewClient builds a provider client from configuration.
func NewClient(cfg config.Config, baseLogger zerolog.Logger) (*Client, error) {
	if cfg.HeliusAPIKey == "" {
		return nil, fmt.Errorf("helius API key is not set")
	}
	if len(cfg.RPCEndpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}

	return &Client{
		pool:        NewPool(cfg.RPCEndpoints, cfg.RPCMinInterval, baseLogger),
		enhancedURL: fmt.Sprintf("%s/v0/transactions?api-key=%s", cfg.HeliusBaseURL, cfg.HeliusAPIKey),
		enhancedClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		enhancedLimiter: rate.NewLimiter(rate.Every(cfg.EnhancedMinInterval), 1),
		logger:          logger.WithComponent(baseLogger, "helius_client"),
	}, nil
}

// ValidateAddress checks that address is a well-formed Solana public key.
func ValidateAddress(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return errs.Wrap(errs.InvalidAddress, address, "not a valid Solana address", err)
	}
	return nil
}

// SignatureOptions bound a signature page request.
type SignatureOptions struct {
	Before string
	Until  string
	Limit  int
}

// Signatures fetches one page of transaction signatures for a wallet,
// newest first, retrying transient provider failures.
func (c *Client) Signatures(ctx context.Context, address string, opts SignatureOptions) ([]SignatureInfo, error) {
	if opts.Limit <= 0 || opts.Limit > 1000 {
		opts.Limit = 1000
	}

	cfg := map[string]interface{}{
		"limit":      opts.Limit,
		"commitment": "confirmed",
	}
	if opts.Before != "" {
		cfg["before"] = opts.Before
	}
	if opts.Until != "" {
		cfg["until"] = opts.Until
	}

	body, err := NewRpcBody("getSignaturesForAddress", []interface{}{address, cfg})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RPC request: %w", err)
	}

	var signatures []SignatureInfo
	operation := func() error {
		result, err := c.rpcOnce(ctx, address, body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(result, &signatures); err != nil {
			return backoff.Permanent(errs.Wrap(errs.ProviderMalformed, address, "unparseable signature page", err))
		}
		return nil
	}

	if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
		metrics.RecordProviderRequest("rpc", "failed")
		return nil, err
	}

	metrics.RecordProviderRequest("rpc", "success")
	return signatures, nil
}

// rpcOnce performs a single JSON-RPC attempt against the endpoint pool.
func (c *Client) rpcOnce(ctx context.Context, address string, body []byte) (json.RawMessage, error) {
	client, endpoint, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, backoff.Permanent(classifyTransport(err, address))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		c.pool.MarkUnhealthy(endpoint)
		return nil, classifyTransport(err, address)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.pool.SetCooldown(endpoint, 5*time.Minute)
		metrics.RecordProviderRequest("rpc", "rate_limited")
		c.penalize(ctx)
		return nil, errs.New(errs.ProviderRateLimited, address, fmt.Sprintf("rate limited by %s", endpoint))
	}
	if resp.StatusCode >= 500 {
		c.pool.MarkUnhealthy(endpoint)
		return nil, errs.New(errs.ProviderUnavailable, address, fmt.Sprintf("status %d from %s", resp.StatusCode, endpoint))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(errs.New(errs.ProviderUnavailable, address, fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, endpoint)))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err, address)
	}

	var rpcResponse RpcResponse
	if err := json.Unmarshal(payload, &rpcResponse); err != nil {
		return nil, backoff.Permanent(errs.Wrap(errs.ProviderMalformed, address, "unparseable RPC response", err))
	}
	if rpcResponse.Error != nil {
		return nil, backoff.Permanent(errs.New(errs.ProviderUnavailable, address,
			fmt.Sprintf("RPC error %d: %s", rpcResponse.Error.Code, rpcResponse.Error.Message)))
	}

	c.pool.MarkHealthy(endpoint)
	return rpcResponse.Result, nil
}

// Enhance resolves up to 100 signatures into enhanced transaction records.
func (c *Client) Enhance(ctx context.Context, signatures []string) ([]EnhancedTransaction, error) {
	if len(signatures) == 0 {
		return nil, nil
	}
	if len(signatures) > 100 {
		return nil, fmt.Errorf("enhance batch too large: %d signatures (max 100)", len(signatures))
	}

	body, err := json.Marshal(map[string]interface{}{"transactions": signatures})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal enhance request: %w", err)
	}

	var transactions []EnhancedTransaction
	operation := func() error {
		if err := c.enhancedLimiter.Wait(ctx); err != nil {
			return backoff.Permanent(classifyTransport(err, ""))
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.enhancedURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.enhancedClient.Do(httpReq)
		if err != nil {
			return classifyTransport(err, "")
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			metrics.RecordProviderRequest("enhanced", "rate_limited")
			c.penalize(ctx)
			return errs.New(errs.ProviderRateLimited, "", "rate limited by enhanced endpoint")
		}
		if resp.StatusCode >= 500 {
			return errs.New(errs.ProviderUnavailable, "", fmt.Sprintf("status %d from enhanced endpoint", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(errs.New(errs.ProviderUnavailable, "", fmt.Sprintf("unexpected status %d from enhanced endpoint", resp.StatusCode)))
		}

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return classifyTransport(err, "")
		}
		if err := json.Unmarshal(payload, &transactions); err != nil {
			return backoff.Permanent(errs.Wrap(errs.ProviderMalformed, "", "unparseable enhanced batch", err))
		}
		return nil
	}

	if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
		metrics.RecordProviderRequest("enhanced", "failed")
		return nil, err
	}

	metrics.RecordProviderRequest("enhanced", "success")
	c.logger.Debug().Int("signatures", len(signatures)).Int("transactions", len(transactions)).Msg("Enhanced batch fetched")
	return transactions, nil
}

// newBackOff builds the retry policy: exponential from 2s, doubling, five
// attempts, cancelled with the context.
func (c *Client) newBackOff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx)
}

// penalize applies the extra pause after an explicit rate-limit response so
// the effective backoff grows faster than the plain schedule.
func (c *Client) penalize(ctx context.Context) {
	select {
	case <-time.After(rateLimitPenalty):
	case <-ctx.Done():
	}
}

// classifyTransport maps transport failures onto provider error kinds.
func classifyTransport(err error, address string) error {
	if err == nil {
		return nil
	}
	if ctxErr := contextError(err); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.Wrap(errs.ProviderTimeout, address, "provider request timed out", err)
	}
	return errs.Wrap(errs.ProviderUnavailable, address, "provider request failed", err)
}

func contextError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errs.Wrap(errs.Cancelled, "", "request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.ProviderTimeout, "", "request deadline exceeded", err)
	}
	return nil
}
