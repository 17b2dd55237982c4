// Package sinks implements progress consumers: structured logging,
// Prometheus collectors and an in-memory tally that backs the status API.
package sinks
