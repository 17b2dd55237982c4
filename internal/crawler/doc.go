// Package crawler defines the shared vocabulary of the extraction engine:
// tasks and labels, page verdicts, extraction records, attempt outcomes, and
// the interfaces that drivers, queues, stores and sinks implement.
package crawler
