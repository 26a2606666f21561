// Package clock provides the time source used when scanning repair history
// and stamping snapshots. Repair timestamps are carried as milliseconds since
// the Unix epoch.
package clock
