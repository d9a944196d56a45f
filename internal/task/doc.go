// Package task runs the background jobs of the service. Currently that is
// the expiry sweeper, which moves cards past their expiry date to EXPIRED
// in small batches, taking the same per-card locks as any other update.
package task
