// Package services holds supporting services around the core pipeline.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/copytrail/internal/logger"
	"github.com/wnt/copytrail/internal/models"
	"github.com/wnt/copytrail/internal/store"
	"github.com/wnt/copytrail/internal/utils"
)

const (
	metadataTTL       = 24 * time.Hour
	metadataBatchSize = 100
)

// TokenEnricher resolves mint addresses to symbol/name/decimals via the
// provider's token-metadata endpoint, caching results in memory and in the
// store so repeated syncs stay cheap.
type TokenEnricher struct {
	store      *store.Store
	httpClient *http.Client
	endpoint   string
	logger     zerolog.Logger

	mutex sync.Mutex
	cache map[string]cachedMetadata
}

type cachedMetadata struct {
	meta      models.TokenMetadata
	fetchedAt time.Time
}

// metadataResponse is one entry of the token-metadata endpoint response.
type metadataResponse struct {
	Account            string `json:"account"`
	OnChainAccountInfo struct {
		AccountInfo struct {
			Data struct {
				Parsed struct {
					Info struct {
						Decimals int `json:"decimals"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"accountInfo"`
	} `json:"onChainAccountInfo"`
	OffChainMetadata struct {
		Metadata struct {
			Symbol string `json:"symbol"`
			Name   string `json:"name"`
			Image  string `json:"image"`
		} `json:"metadata"`
	} `json:"offChainMetadata"`
}

// NewTokenEnricher creates an enricher against the provider metadata API.
func NewTokenEnricher(st *store.Store, baseURL, apiKey string, baseLogger zerolog.Logger) *TokenEnricher {
	return &TokenEnricher{
		store:      st,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   fmt.Sprintf("%s/v0/token-metadata?api-key=%s", baseURL, apiKey),
		logger:     logger.WithComponent(baseLogger, "token_enricher"),
		cache:      make(map[string]cachedMetadata),
	}
}

// Get returns metadata for a mint, from memory, the store, or the provider,
// in that order.
func (e *TokenEnricher) Get(ctx context.Context, mint string) (*models.TokenMetadata, error) {
	if meta, ok := e.cached(mint); ok {
		return meta, nil
	}

	if meta, err := e.store.GetTokenMetadata(ctx, mint); err == nil {
		if time.Since(meta.FetchedAt) < metadataTTL {
			e.remember(*meta)
			return meta, nil
		}
	}

	fetched, err := e.fetch(ctx, []string{mint})
	if err != nil {
		return nil, err
	}
	if len(fetched) == 0 {
		return nil, fmt.Errorf("no metadata found for mint %s", mint)
	}

	meta := fetched[0]
	if err := e.store.UpsertTokenMetadata(ctx, &meta); err != nil {
		return nil, err
	}
	e.remember(meta)
	return &meta, nil
}

// EnrichMints resolves and caches metadata for every unknown mint in the
// list. Failures are logged and skipped; the pipeline never depends on
// metadata being present.
func (e *TokenEnricher) EnrichMints(ctx context.Context, mints []string) {
	var missing []string
	for _, mint := range utils.Unique(mints) {
		if _, ok := e.cached(mint); ok {
			continue
		}
		if meta, err := e.store.GetTokenMetadata(ctx, mint); err == nil && time.Since(meta.FetchedAt) < metadataTTL {
			e.remember(*meta)
			continue
		}
		missing = append(missing, mint)
	}

	for _, chunk := range utils.Chunk(missing, metadataBatchSize) {
		fetched, err := e.fetch(ctx, chunk)
		if err != nil {
			e.logger.Warn().Err(err).Int("mints", len(chunk)).Msg("Failed to fetch token metadata batch")
			continue
		}
		for i := range fetched {
			if err := e.store.UpsertTokenMetadata(ctx, &fetched[i]); err != nil {
				e.logger.Warn().Err(err).Str("mint", fetched[i].Mint).Msg("Failed to cache token metadata")
				continue
			}
			e.remember(fetched[i])
		}
	}
}

// fetch resolves up to 100 mints against the provider.
func (e *TokenEnricher) fetch(ctx context.Context, mints []string) ([]models.TokenMetadata, error) {
	body, err := json.Marshal(map[string]interface{}{
		"mintAccounts":    mints,
		"includeOffChain": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata endpoint returned status %d", resp.StatusCode)
	}

	var entries []metadataResponse
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode metadata response: %w", err)
	}

	now := time.Now().UTC()
	out := make([]models.TokenMetadata, 0, len(entries))
	for _, entry := range entries {
		if entry.Account == "" {
			continue
		}
		out = append(out, models.TokenMetadata{
			Mint:      entry.Account,
			Symbol:    entry.OffChainMetadata.Metadata.Symbol,
			Name:      entry.OffChainMetadata.Metadata.Name,
			Decimals:  entry.OnChainAccountInfo.AccountInfo.Data.Parsed.Info.Decimals,
			LogoURI:   entry.OffChainMetadata.Metadata.Image,
			FetchedAt: now,
		})
	}
	return out, nil
}

func (e *TokenEnricher) cached(mint string) (*models.TokenMetadata, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	entry, ok := e.cache[mint]
	if !ok || time.Since(entry.fetchedAt) > metadataTTL {
		return nil, false
	}
	meta := entry.meta
	return &meta, true
}

func (e *TokenEnricher) remember(meta models.TokenMetadata) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.cache[meta.Mint] = cachedMetadata{meta: meta, fetchedAt: time.Now()}
}
