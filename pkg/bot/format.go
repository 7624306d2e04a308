package bot

import (
	"fmt"
	"sort"
	"strings"

	"marketscope/pkg/analysis"
	"marketscope/pkg/marketdata"
	"marketscope/pkg/usage"
)

func helpText(isAdmin bool) string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("/analyze SYMBOL - technical analysis with a recommendation\n")
	b.WriteString("/price SYMBOL - current crypto price\n")
	b.WriteString("/usage - your usage and limits\n")
	if isAdmin {
		b.WriteString("\nAdmin:\n")
		b.WriteString("/stats [days] - global usage stats\n")
		b.WriteString("/top [n] - top spenders\n")
		b.WriteString("/setlimits USER monthly=N daily=N hourly=N\n")
		b.WriteString("/premium USER - grant premium tier\n")
		b.WriteString("/reset USER|all - clear ledger data\n")
	}
	return b.String()
}

func formatRecommendation(symbol string, quote *marketdata.Quote, rec *analysis.Recommendation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at $%.2f (%+.2f%%)\n\n", symbol, quote.Price, quote.ChangePercent)
	fmt.Fprintf(&b, "Recommendation: %s\n\n", rec.Action)
	b.WriteString(rec.Justification)
	return b.String()
}

func formatQuote(quote *marketdata.Quote) string {
	return fmt.Sprintf("%s: $%.2f (%+.2f%% 24h)", quote.Symbol, quote.Price, quote.ChangePercent)
}

func formatLimitExceeded(status *usage.LimitStatus) string {
	var b strings.Builder
	b.WriteString("You have reached a usage limit.\n\n")
	fmt.Fprintf(&b, "Monthly: $%.2f of $%.2f\n", status.MonthlyUsage, status.MonthlyLimit)
	fmt.Fprintf(&b, "Daily: $%.2f of $%.2f\n", status.DailyUsage, status.DailyLimit)
	fmt.Fprintf(&b, "This hour: %d of %d requests\n", status.HourlyRequests, status.HourlyLimit)
	b.WriteString("\nLimits are trailing windows, so capacity frees up as older usage ages out.")
	return b.String()
}

func formatUserUsage(status *usage.LimitStatus, totals map[string]usage.ServiceTotals) string {
	var b strings.Builder
	b.WriteString("Your usage:\n")
	fmt.Fprintf(&b, "Monthly: $%.2f of $%.2f\n", status.MonthlyUsage, status.MonthlyLimit)
	fmt.Fprintf(&b, "Daily: $%.2f of $%.2f\n", status.DailyUsage, status.DailyLimit)
	fmt.Fprintf(&b, "This hour: %d of %d requests\n", status.HourlyRequests, status.HourlyLimit)
	if status.IsPremium {
		b.WriteString("Tier: premium\n")
	}

	if len(totals) > 0 {
		b.WriteString("\nLast 30 days by service:\n")
		services := make([]string, 0, len(totals))
		for svc := range totals {
			services = append(services, svc)
		}
		sort.Strings(services)
		for _, svc := range services {
			t := totals[svc]
			fmt.Fprintf(&b, "%s: %d requests, %d tokens, $%.4f\n", svc, t.Requests, t.Tokens, t.Cost)
		}
	}
	return b.String()
}

func formatStats(stats *usage.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage over the last %d days:\n", stats.PeriodDays)
	fmt.Fprintf(&b, "Unique users: %d\n", stats.UniqueUsers)
	fmt.Fprintf(&b, "Requests: %d\n", stats.TotalRequests)
	fmt.Fprintf(&b, "Total cost: $%.2f\n", stats.TotalCost)
	fmt.Fprintf(&b, "Avg cost per request: $%.4f", stats.AvgCostPerRequest)
	return b.String()
}

func formatTopUsers(top []usage.UserSpend) string {
	if len(top) == 0 {
		return "No usage recorded in the window."
	}
	var b strings.Builder
	b.WriteString("Top spenders (30 days):\n")
	for i, entry := range top {
		fmt.Fprintf(&b, "%d. %s: $%.2f\n", i+1, entry.UserID, entry.TotalCost)
	}
	return b.String()
}

func formatLimits(limits *usage.UserLimits) string {
	tier := "standard"
	if limits.IsPremium {
		tier = "premium"
	}
	return fmt.Sprintf("Limits for %s (%s):\nMonthly: $%.2f\nDaily: $%.2f\nHourly requests: %d",
		limits.UserID, tier, limits.MonthlyLimit, limits.DailyLimit, limits.RequestsPerHour)
}
