package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"marketscope/pkg/marketdata"
)

// Actions a recommendation may carry, strongest buy to strongest sell.
var validActions = []string{
	"Strong Buy", "Buy", "Weak Buy", "Hold", "Weak Sell", "Sell", "Strong Sell",
}

// Recommendation is the outcome of one analysis call. TokensUsed and
// EstimatedCost feed the usage ledger.
type Recommendation struct {
	Action        string
	Justification string
	TokensUsed    int64
	EstimatedCost float64
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	maxTokens    int
	costPerToken float64
	http         *http.Client
	breaker      *gobreaker.CircuitBreaker
	logger       *slog.Logger
}

// ClientConfig configures an analysis Client.
type ClientConfig struct {
	// BaseURL is the API root, without a trailing slash. The client posts
	// to BaseURL + "/chat/completions".
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Model names the completion model.
	Model string

	// MaxTokens caps the completion length. Default: 2048.
	MaxTokens int

	// CostPerThousandTokens converts total token usage to USD.
	CostPerThousandTokens float64

	// Timeout bounds each request. Default: 30 seconds.
	Timeout time.Duration
}

// NewClient creates an analysis client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.CostPerThousandTokens < 0 {
		return nil, fmt.Errorf("cost per thousand tokens must be non-negative, got %f", cfg.CostPerThousandTokens)
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := slog.Default().With("component", "analysis")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "analysis",
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
	})

	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		costPerToken: cfg.CostPerThousandTokens / 1000.0,
		http:         &http.Client{Timeout: cfg.Timeout},
		breaker:      breaker,
		logger:       logger,
	}, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Analyze requests a trading recommendation for the given quote and
// indicator snapshot.
func (c *Client) Analyze(ctx context.Context, quote *marketdata.Quote, ind *marketdata.IndicatorSnapshot) (*Recommendation, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(quote, ind)},
		},
		Temperature:    0.1,
		MaxTokens:      c.maxTokens,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, body)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, fmt.Errorf("analysis unavailable: circuit open")
	}
	if err != nil {
		return nil, err
	}

	resp := result.(*chatResponse)
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}

	rec := parseRecommendation(resp.Choices[0].Message.Content)
	rec.TokensUsed = resp.Usage.TotalTokens
	rec.EstimatedCost = float64(resp.Usage.TotalTokens) * c.costPerToken

	c.logger.Debug("analysis complete",
		"symbol", quote.Symbol,
		"action", rec.Action,
		"tokens", rec.TokensUsed)

	return rec, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*chatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("completion request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// parseRecommendation extracts the action and justification from the model
// output. Models occasionally ignore the JSON instruction, so non-JSON
// content falls back to a Hold with the raw text as justification.
func parseRecommendation(content string) *Recommendation {
	var parsed struct {
		Action        string `json:"action"`
		Justification string `json:"justification"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil || parsed.Action == "" {
		return &Recommendation{Action: "Hold", Justification: strings.TrimSpace(content)}
	}

	action := normalizeAction(parsed.Action)
	return &Recommendation{Action: action, Justification: parsed.Justification}
}

// normalizeAction maps model output onto the known action set,
// case-insensitively. Unknown actions become Hold.
func normalizeAction(raw string) string {
	trimmed := strings.TrimSpace(raw)
	for _, action := range validActions {
		if strings.EqualFold(trimmed, action) {
			return action
		}
	}
	return "Hold"
}
