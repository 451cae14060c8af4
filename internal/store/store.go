// Package store persists the set of currently published tickets and the
// outcome of past reconciliation runs.
//
// The concrete implementation lives in sqlite.go; memory.go provides an
// in-memory variant for tests. Consumers depend on the Store interface so
// either can be substituted. The store is owned exclusively by the
// reconciliation engine: a single writer, no external mutation during a run.
package store

import (
	"context"
	"errors"

	"github.com/feedbackops/kbsync/internal/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrStore wraps persistent-store failures. Store errors are fatal for a run:
// execution cannot continue without a consistent view of what is published.
var ErrStore = errors.New("knowledge store unavailable")

// Store is the durable record of which tickets are currently represented in
// the remote knowledge base.
type Store interface {
	// ListPublished returns every record regardless of status, keyed order
	// unspecified.
	ListPublished(ctx context.Context) ([]types.PublishedRecord, error)
	// Get returns the record for one ticket key, or ErrNotFound.
	Get(ctx context.Context, key string) (*types.PublishedRecord, error)
	// Upsert writes a record, replacing any prior state for its key. Each
	// upsert is committed immediately: a crash mid-run loses at most the
	// in-flight entry.
	Upsert(ctx context.Context, rec types.PublishedRecord) error
	// Remove deletes the record for a ticket key. Removing a missing key is
	// not an error.
	Remove(ctx context.Context, key string) error
	// Purge deletes all records. Used by init mode before republishing.
	Purge(ctx context.Context) error

	// RecordRun appends a run summary; LastRun returns the most recent one,
	// or ErrNotFound when no run has completed yet.
	RecordRun(ctx context.Context, run types.RunSummary) error
	LastRun(ctx context.Context) (*types.RunSummary, error)

	Close() error
}
