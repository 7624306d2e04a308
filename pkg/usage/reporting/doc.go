// Package reporting provides administrative aggregate queries over the
// usage ledger: global stats and top spenders over a trailing window, the
// audited per-user and global resets, and an optional cron-scheduled stats
// report for operator visibility.
package reporting
