// Package observability builds the process logger and keeps in-memory
// per-provider attempt counters for the fallback chain.
package observability
