package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"marketscope/pkg/marketdata"
	"marketscope/pkg/usage"
)

// Service names recorded into usage events.
const (
	serviceLLM       = "llm"
	servicePriceData = "price-data"
)

// Handler maps parsed requests to replies.
type Handler struct {
	ledger   Ledger
	policy   LimitPolicy
	reporter Reporter
	equities EquityData
	crypto   CryptoData
	analyzer Analyzer
	admins   map[string]bool
	logger   *slog.Logger
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	// Ledger records usage and evaluates limits. Required.
	Ledger Ledger

	// Policy administers per-user limits. Required.
	Policy LimitPolicy

	// Reporter answers aggregate queries. Required.
	Reporter Reporter

	// Equities serves quote and series commands. Required.
	Equities EquityData

	// Crypto serves the price command. Optional; the command is disabled
	// when nil.
	Crypto CryptoData

	// Analyzer produces recommendations. Required.
	Analyzer Analyzer

	// AdminUserIDs lists users allowed to run administrative commands.
	AdminUserIDs []string

	// Logger is the parent logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("limit policy is required")
	}
	if cfg.Reporter == nil {
		return nil, fmt.Errorf("reporter is required")
	}
	if cfg.Equities == nil {
		return nil, fmt.Errorf("equities client is required")
	}
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	admins := make(map[string]bool, len(cfg.AdminUserIDs))
	for _, id := range cfg.AdminUserIDs {
		admins[id] = true
	}

	return &Handler{
		ledger:   cfg.Ledger,
		policy:   cfg.Policy,
		reporter: cfg.Reporter,
		equities: cfg.Equities,
		crypto:   cfg.Crypto,
		analyzer: cfg.Analyzer,
		admins:   admins,
		logger:   logger.With("component", "bot"),
	}, nil
}

// Handle processes one interaction and returns the reply.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	if err := usage.ValidateUserID(req.UserID); err != nil {
		return Response{Text: "Sorry, I could not identify your account."}
	}

	switch strings.ToLower(req.Command) {
	case "analyze":
		return h.handleAnalyze(ctx, req)
	case "price":
		return h.handlePrice(ctx, req)
	case "usage":
		return h.handleUsage(ctx, req)
	case "stats":
		return h.requireAdmin(ctx, req, h.handleStats)
	case "top":
		return h.requireAdmin(ctx, req, h.handleTop)
	case "setlimits":
		return h.requireAdmin(ctx, req, h.handleSetLimits)
	case "premium":
		return h.requireAdmin(ctx, req, h.handlePremium)
	case "reset":
		return h.requireAdmin(ctx, req, h.handleReset)
	case "help", "start":
		return Response{Text: helpText(h.admins[req.UserID])}
	default:
		return Response{Text: fmt.Sprintf("Unknown command %q. Try /help.", req.Command)}
	}
}

// requireAdmin gates a handler on the admin allow-list.
func (h *Handler) requireAdmin(ctx context.Context, req Request, fn func(context.Context, Request) Response) Response {
	if !h.admins[req.UserID] {
		h.logger.Warn("admin command denied", "user_id", req.UserID, "command", req.Command)
		return Response{Text: "This command is restricted to administrators."}
	}
	return fn(ctx, req)
}

// handleAnalyze runs the full analysis flow: limit check, market data,
// recommendation, then usage recording.
func (h *Handler) handleAnalyze(ctx context.Context, req Request) Response {
	if len(req.Args) < 1 {
		return Response{Text: "Usage: /analyze SYMBOL"}
	}
	symbol := strings.ToUpper(req.Args[0])

	status, err := h.ledger.CheckUserLimits(ctx, req.UserID)
	if err != nil {
		h.logger.Error("limit check failed", "user_id", req.UserID, "error", err)
		return Response{Text: "Usage limits could not be verified right now. Please try again shortly."}
	}
	if !status.WithinLimits {
		return Response{Text: formatLimitExceeded(status)}
	}

	quote, err := h.equities.GetQuote(ctx, symbol)
	if err != nil {
		return h.marketErrorReply(symbol, err)
	}
	series, err := h.equities.GetDailySeries(ctx, symbol, 90)
	if err != nil {
		return h.marketErrorReply(symbol, err)
	}
	ind, err := marketdata.Snapshot(series)
	if err != nil {
		h.logger.Warn("insufficient history for analysis", "symbol", symbol, "error", err)
		return Response{Text: fmt.Sprintf("Not enough price history for %s to run an analysis.", symbol)}
	}

	rec, err := h.analyzer.Analyze(ctx, quote, ind)
	if err != nil {
		h.logger.Error("analysis failed", "symbol", symbol, "user_id", req.UserID, "error", err)
		return Response{Text: "Analysis is unavailable right now. Please try again shortly."}
	}

	h.record(ctx, req.UserID, serviceLLM, int(rec.TokensUsed), rec.EstimatedCost, "market-analysis", map[string]string{
		"symbol": symbol,
		"action": rec.Action,
	})

	return Response{Text: formatRecommendation(symbol, quote, rec)}
}

// handlePrice returns the current crypto price. Billed as a zero-token
// price-data event.
func (h *Handler) handlePrice(ctx context.Context, req Request) Response {
	if h.crypto == nil {
		return Response{Text: "Crypto prices are not enabled."}
	}
	if len(req.Args) < 1 {
		return Response{Text: "Usage: /price SYMBOL"}
	}
	symbol := strings.ToUpper(req.Args[0])

	status, err := h.ledger.CheckUserLimits(ctx, req.UserID)
	if err != nil {
		h.logger.Error("limit check failed", "user_id", req.UserID, "error", err)
		return Response{Text: "Usage limits could not be verified right now. Please try again shortly."}
	}
	if !status.WithinLimits {
		return Response{Text: formatLimitExceeded(status)}
	}

	quote, err := h.crypto.GetPrice(ctx, symbol)
	if err != nil {
		return h.marketErrorReply(symbol, err)
	}

	h.record(ctx, req.UserID, servicePriceData, 0, 0, "crypto-price", map[string]string{
		"symbol": symbol,
	})

	return Response{Text: formatQuote(quote)}
}

// handleUsage shows the user their own standing.
func (h *Handler) handleUsage(ctx context.Context, req Request) Response {
	status, err := h.ledger.CheckUserLimits(ctx, req.UserID)
	if err != nil {
		h.logger.Error("usage lookup failed", "user_id", req.UserID, "error", err)
		return Response{Text: "Your usage could not be retrieved right now. Please try again shortly."}
	}
	totals, err := h.ledger.GetUserUsage(ctx, req.UserID, 30)
	if err != nil {
		h.logger.Error("usage lookup failed", "user_id", req.UserID, "error", err)
		return Response{Text: "Your usage could not be retrieved right now. Please try again shortly."}
	}
	return Response{Text: formatUserUsage(status, totals)}
}

func (h *Handler) handleStats(ctx context.Context, req Request) Response {
	days := 30
	if len(req.Args) >= 1 {
		if n, err := strconv.Atoi(req.Args[0]); err == nil && n > 0 {
			days = n
		}
	}
	stats, err := h.reporter.GetUsageStats(ctx, days)
	if err != nil {
		h.logger.Error("stats query failed", "error", err)
		return Response{Text: "Stats are unavailable right now."}
	}
	return Response{Text: formatStats(stats)}
}

func (h *Handler) handleTop(ctx context.Context, req Request) Response {
	n := 5
	if len(req.Args) >= 1 {
		if parsed, err := strconv.Atoi(req.Args[0]); err == nil && parsed > 0 {
			n = parsed
		}
	}
	top, err := h.reporter.GetTopUsersByUsage(ctx, 30, n)
	if err != nil {
		h.logger.Error("top users query failed", "error", err)
		return Response{Text: "The top-spenders report is unavailable right now."}
	}
	return Response{Text: formatTopUsers(top)}
}

// handleSetLimits applies a partial limit update:
// /setlimits USER [monthly=N] [daily=N] [hourly=N]
func (h *Handler) handleSetLimits(ctx context.Context, req Request) Response {
	if len(req.Args) < 2 {
		return Response{Text: "Usage: /setlimits USER [monthly=N] [daily=N] [hourly=N]"}
	}
	target := req.Args[0]

	var upd usage.LimitUpdate
	for _, arg := range req.Args[1:] {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return Response{Text: fmt.Sprintf("Malformed argument %q; expected key=value.", arg)}
		}
		switch key {
		case "monthly":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil || v <= 0 {
				return Response{Text: fmt.Sprintf("Invalid monthly limit %q.", value)}
			}
			upd.MonthlyLimit = &v
		case "daily":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil || v <= 0 {
				return Response{Text: fmt.Sprintf("Invalid daily limit %q.", value)}
			}
			upd.DailyLimit = &v
		case "hourly":
			v, err := strconv.Atoi(value)
			if err != nil || v <= 0 {
				return Response{Text: fmt.Sprintf("Invalid hourly limit %q.", value)}
			}
			upd.RequestsPerHour = &v
		default:
			return Response{Text: fmt.Sprintf("Unknown limit %q; use monthly, daily or hourly.", key)}
		}
	}

	limits, err := h.policy.UpdateLimits(ctx, target, upd)
	if err != nil {
		h.logger.Error("limit update failed", "target", target, "error", err)
		return Response{Text: "Limits could not be updated right now."}
	}
	return Response{Text: formatLimits(limits)}
}

func (h *Handler) handlePremium(ctx context.Context, req Request) Response {
	if len(req.Args) < 1 {
		return Response{Text: "Usage: /premium USER"}
	}
	limits, err := h.policy.GrantPremium(ctx, req.Args[0])
	if err != nil {
		h.logger.Error("premium grant failed", "target", req.Args[0], "error", err)
		return Response{Text: "The premium grant could not be applied right now."}
	}
	return Response{Text: "Premium tier granted.\n" + formatLimits(limits)}
}

func (h *Handler) handleReset(ctx context.Context, req Request) Response {
	if len(req.Args) < 1 {
		return Response{Text: "Usage: /reset USER | /reset all"}
	}
	target := req.Args[0]

	var err error
	if target == "all" {
		err = h.reporter.ResetAll(ctx)
	} else {
		err = h.reporter.ResetUser(ctx, target)
	}
	if err != nil {
		h.logger.Error("ledger reset failed", "target", target, "error", err)
		return Response{Text: "The reset could not be applied right now."}
	}
	return Response{Text: fmt.Sprintf("Ledger reset applied for %s.", target)}
}

// record writes a usage event with a fresh interaction id. Failures are
// logged inside the ledger and intentionally not surfaced to the user.
func (h *Handler) record(ctx context.Context, userID, service string, tokens int, cost float64, requestType string, metadata map[string]string) {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	metadata["interaction_id"] = uuid.NewString()
	_ = h.ledger.RecordUsage(ctx, userID, service, tokens, cost, requestType, metadata)
}

func (h *Handler) marketErrorReply(symbol string, err error) Response {
	if errors.Is(err, marketdata.ErrSymbolNotFound) {
		return Response{Text: fmt.Sprintf("I could not find the symbol %s.", symbol)}
	}
	h.logger.Error("market data request failed", "symbol", symbol, "error", err)
	return Response{Text: "Market data is unavailable right now. Please try again shortly."}
}
