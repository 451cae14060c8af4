// Package kbsync provides a minimal public API for embedding the
// knowledge-base synchronizer in other Go programs.
//
// Most automation should drive the kbsync binary directly. This package
// exports only the essential types and functions for programs that want to
// run hierarchy resolution and reconciliation in process.
package kbsync

import (
	"log/slog"

	"github.com/feedbackops/kbsync/internal/engine"
	"github.com/feedbackops/kbsync/internal/hierarchy"
	"github.com/feedbackops/kbsync/internal/store"
	"github.com/feedbackops/kbsync/internal/types"
)

// Core types for working with ticket hierarchies and plans.
type (
	Ticket          = types.Ticket
	Candidate       = types.Candidate
	Plan            = types.Plan
	Report          = types.Report
	PublishedRecord = types.PublishedRecord
	Mode            = types.Mode
)

// Reconciliation modes.
const (
	ModeInit         = types.ModeInit
	ModeUpdate       = types.ModeUpdate
	ModeResize       = types.ModeResize
	ModeForceRefresh = types.ModeForceRefresh
	ModeTestUpdate   = types.ModeTestUpdate
)

// Store is the persistence interface for published state.
type Store = store.Store

// Request selects the reconciliation behavior for one run.
type Request = engine.Request

// Resolve ranks the ultimate-parent candidates of a ticket set. Cycle
// diagnostics are logged; affected candidates are excluded.
func Resolve(tickets []Ticket, log *slog.Logger) []Candidate {
	candidates, _ := hierarchy.Resolve(tickets, log)
	return candidates
}

// Reconcile diffs ranked candidates against published state and returns the
// plan for the requested mode.
func Reconcile(req Request, candidates []Candidate, published []PublishedRecord) (*Plan, error) {
	return engine.Reconcile(req, candidates, published)
}

// OpenStore opens the SQLite state database used by the kbsync binary.
func OpenStore(dbPath string) (Store, error) {
	return store.OpenSQLite(dbPath)
}
