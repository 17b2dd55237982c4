// Package progress carries crawl lifecycle events from workers to pluggable
// sinks. Workers emit without blocking; a background goroutine batches the
// events and fans them out.
package progress
