package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// Client fetches equity quotes and daily series from an HTTP market data API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the API endpoint, without a trailing slash.
	BaseURL string

	// APIKey authenticates requests. Sent as the apikey query parameter.
	APIKey string

	// Timeout bounds each request. Default: 10 seconds.
	Timeout time.Duration
}

// NewClient creates an equities market data client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	logger := slog.Default().With("component", "marketdata.equities")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "marketdata-equities",
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
			// Unknown symbols are caller errors and must not trip the breaker.
			return err == nil || err == ErrSymbolNotFound
		},
	})

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
	}, nil
}

// quotePayload is the upstream quote response shape.
type quotePayload struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	Timestamp     int64   `json:"timestamp"`
}

// seriesPayload is the upstream daily series response shape.
type seriesPayload struct {
	Symbol  string `json:"symbol"`
	Candles []struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	} `json:"candles"`
}

// GetQuote fetches the latest quote for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var payload quotePayload
	err := c.get(ctx, "/quote", url.Values{"symbol": {symbol}}, &payload)
	if err != nil {
		return nil, err
	}

	return &Quote{
		Symbol:        payload.Symbol,
		Price:         payload.Price,
		ChangePercent: payload.ChangePercent,
		Volume:        payload.Volume,
		AsOf:          time.Unix(payload.Timestamp, 0),
	}, nil
}

// GetDailySeries fetches up to days daily bars for a symbol, oldest first.
func (c *Client) GetDailySeries(ctx context.Context, symbol string, days int) (*Series, error) {
	if days <= 0 {
		days = 90
	}

	var payload seriesPayload
	err := c.get(ctx, "/series/daily", url.Values{
		"symbol": {symbol},
		"days":   {fmt.Sprintf("%d", days)},
	}, &payload)
	if err != nil {
		return nil, err
	}

	series := &Series{Symbol: payload.Symbol}
	for _, bar := range payload.Candles {
		date, err := time.Parse("2006-01-02", bar.Date)
		if err != nil {
			return nil, fmt.Errorf("malformed candle date %q for %s: %w", bar.Date, symbol, err)
		}
		series.Candles = append(series.Candles, Candle{
			Date:   date,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		})
	}

	return series, nil
}

// get performs a GET through the circuit breaker and decodes JSON into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	reqURL := c.baseURL + path + "?" + params.Encode()

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

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrSymbolNotFound
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		return nil, json.NewDecoder(resp.Body).Decode(out)
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: circuit open", ErrProviderUnavailable)
	}
	if err == ErrSymbolNotFound {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	return nil
}
