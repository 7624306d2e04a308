// Marketscope is a market analysis bot with per-user usage accounting.
//
// It serves chat commands that fetch market data and LLM-backed technical
// analysis, records every billable action in a durable usage ledger, and
// enforces per-user spend and rate limits over trailing windows.
//
// Usage:
//
//	# Start the server, bot workers and report scheduler
//	marketscope run
//
//	# Start with a custom configuration file
//	marketscope run --config /etc/marketscope/config.yaml
//
//	# Show global usage stats
//	marketscope stats --days 7
//
//	# Administer a user's limits
//	marketscope limits show user-123
//	marketscope limits set user-123 --monthly 25
//	marketscope limits premium user-123
//	marketscope limits reset user-123
package main

func main() {
	Execute()
}
