package analysis

import (
	"fmt"
	"strings"

	"marketscope/pkg/marketdata"
)

const systemPrompt = "You are a professional financial analyst specializing in technical analysis."

// buildPrompt renders the analysis prompt from a quote and indicator snapshot.
func buildPrompt(quote *marketdata.Quote, ind *marketdata.IndicatorSnapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a Stock Trader specializing in Technical Analysis at a top financial institution. ")
	fmt.Fprintf(&b, "Analyze the chart for %s based on the following data:\n\n", quote.Symbol)
	fmt.Fprintf(&b, "Current Price: $%.2f (%.2f%% 24h change)\n", quote.Price, quote.ChangePercent)
	fmt.Fprintf(&b, "Last Close: $%.2f\n", ind.LastClose)
	fmt.Fprintf(&b, "20-Day SMA: $%.2f\n", ind.SMA20)
	fmt.Fprintf(&b, "20-Day EMA: $%.2f\n", ind.EMA20)
	fmt.Fprintf(&b, "14-Day RSI: %.1f\n", ind.RSI14)
	fmt.Fprintf(&b, "Bollinger Bands: Upper=$%.2f, Lower=$%.2f\n", ind.BollingerUpper, ind.BollingerLower)
	fmt.Fprintf(&b, "Period High: $%.2f, Period Low: $%.2f\n\n", ind.PeriodHigh, ind.PeriodLow)
	fmt.Fprintf(&b, "Provide a detailed justification of your analysis, explaining what patterns, signals, and trends you observe. ")
	fmt.Fprintf(&b, "Then, based solely on the data, provide a recommendation from the following options: ")
	fmt.Fprintf(&b, "'Strong Buy', 'Buy', 'Weak Buy', 'Hold', 'Weak Sell', 'Sell', or 'Strong Sell'. ")
	fmt.Fprintf(&b, "Return your output as a JSON object with two keys: 'action' and 'justification'.")

	return b.String()
}
