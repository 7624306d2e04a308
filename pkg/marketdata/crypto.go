package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// CryptoClient fetches cryptocurrency prices from a CoinGecko-style API.
// Symbol-to-coin-id resolution is cached for the life of the client; the
// coin list changes rarely and is large.
type CryptoClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger

	mu      sync.RWMutex
	coinIDs map[string]string // upper-case symbol -> coin id
}

// CryptoClientConfig configures a CryptoClient.
type CryptoClientConfig struct {
	// BaseURL is the API endpoint, without a trailing slash.
	BaseURL string

	// Timeout bounds each request. Default: 10 seconds.
	Timeout time.Duration
}

// NewCryptoClient creates a cryptocurrency market data client.
func NewCryptoClient(cfg CryptoClientConfig) (*CryptoClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	logger := slog.Default().With("component", "marketdata.crypto")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "marketdata-crypto",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || err == ErrSymbolNotFound
		},
	})

	return &CryptoClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
		coinIDs: make(map[string]string),
	}, nil
}

// GetPrice fetches the current USD price for a crypto symbol ("BTC", "ETH").
func (c *CryptoClient) GetPrice(ctx context.Context, symbol string) (*Quote, error) {
	coinID, err := c.resolveCoinID(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var payload map[string]struct {
		USD         float64 `json:"usd"`
		Change24h   float64 `json:"usd_24h_change"`
		LastUpdated int64   `json:"last_updated_at"`
	}
	err = c.get(ctx, "/simple/price", url.Values{
		"ids":                     {coinID},
		"vs_currencies":           {"usd"},
		"include_24hr_change":     {"true"},
		"include_last_updated_at": {"true"},
	}, &payload)
	if err != nil {
		return nil, err
	}

	entry, ok := payload[coinID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	return &Quote{
		Symbol:        strings.ToUpper(symbol),
		Price:         entry.USD,
		ChangePercent: entry.Change24h,
		AsOf:          time.Unix(entry.LastUpdated, 0),
	}, nil
}

// resolveCoinID maps a ticker symbol to the provider's coin id, loading the
// coin list on first use.
func (c *CryptoClient) resolveCoinID(ctx context.Context, symbol string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if key == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrSymbolNotFound)
	}

	c.mu.RLock()
	id, ok := c.coinIDs[key]
	loaded := len(c.coinIDs) > 0
	c.mu.RUnlock()
	if ok {
		return id, nil
	}
	if loaded {
		return "", fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	var coins []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	}
	if err := c.get(ctx, "/coins/list", url.Values{}, &coins); err != nil {
		return "", err
	}

	c.mu.Lock()
	for _, coin := range coins {
		sym := strings.ToUpper(coin.Symbol)
		// Keep the first listing for a symbol; duplicates are obscure forks.
		if _, exists := c.coinIDs[sym]; !exists {
			c.coinIDs[sym] = coin.ID
		}
	}
	id, ok = c.coinIDs[key]
	c.mu.Unlock()

	c.logger.Info("coin list loaded", "coins", len(coins))

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	return id, nil
}

// get performs a GET through the circuit breaker and decodes JSON into out.
func (c *CryptoClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		return nil, json.NewDecoder(resp.Body).Decode(out)
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: circuit open", ErrProviderUnavailable)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	return nil
}
