// Package types defines core data structures for the kbsync knowledge-base
// synchronizer: ticket snapshots fetched from the tracker, ranked
// ultimate-parent candidates, persisted publication records, and the
// reconciliation plan/report pair produced and consumed by the engine.
package types

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Ticket is an immutable snapshot of a tracker issue for one resolver run.
// Outward lists the keys this ticket duplicates; Inward lists the keys that
// duplicate this ticket. Tickets are re-fetched each run and never mutated.
type Ticket struct {
	Key         string     `json:"key"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Created     time.Time  `json:"created"`
	Resolved    *time.Time `json:"resolved,omitempty"`
	Outward     []string   `json:"outward,omitempty"`
	Inward      []string   `json:"inward,omitempty"`
}

// Descendant is one member of a candidate's descendant set. Depth is the
// link distance from the ultimate parent: 1 for a direct child, 2 for a
// grandchild, and so on. Depth drives the level labels in summarization
// prompts.
type Descendant struct {
	Key   string `json:"key"`
	Depth int    `json:"depth"`
}

// Candidate is an ultimate-parent ticket (zero outward duplicate links)
// annotated with its transitively-collected descendant set, in discovery
// order. The candidate itself never appears in its own descendant set.
type Candidate struct {
	Ticket      Ticket       `json:"ticket"`
	Descendants []Descendant `json:"descendants,omitempty"`
}

// DescendantCount returns the size of the candidate's descendant set.
func (c *Candidate) DescendantCount() int { return len(c.Descendants) }

// DescendantKeys returns the descendant ticket keys in discovery order.
func (c *Candidate) DescendantKeys() []string {
	if len(c.Descendants) == 0 {
		return nil
	}
	keys := make([]string, len(c.Descendants))
	for i, d := range c.Descendants {
		keys[i] = d.Key
	}
	return keys
}

// PublishStatus is the lifecycle state of a PublishedRecord.
type PublishStatus string

const (
	StatusPending   PublishStatus = "pending"
	StatusPublished PublishStatus = "published"
	StatusFailed    PublishStatus = "failed"
	StatusRetired   PublishStatus = "retired"
)

// Valid reports whether s is one of the defined publish statuses.
func (s PublishStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPublished, StatusFailed, StatusRetired:
		return true
	}
	return false
}

// PublishedRecord is the persisted state of one ultimate parent in the remote
// knowledge base. RemoteID is the backend's handle for the uploaded artifact
// (doc_id or knowledge_id depending on the publisher variant); it is required
// for retraction on backends that key deletions by their own identifier.
type PublishedRecord struct {
	Key             string        `json:"key"`
	DescendantCount int           `json:"descendant_count"`
	Fingerprint     string        `json:"fingerprint"`
	Status          PublishStatus `json:"status"`
	RemoteID        string        `json:"remote_id,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Fingerprint returns the content fingerprint for a summarized artifact:
// hex-encoded SHA-256 of the artifact text.
func Fingerprint(artifact string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(artifact)))
}

// Mode selects the reconciliation behavior for one run.
type Mode string

const (
	ModeInit         Mode = "init"
	ModeUpdate       Mode = "update"
	ModeResize       Mode = "resize"
	ModeForceRefresh Mode = "force-refresh"
	ModeTestUpdate   Mode = "test-update"
)

// Plan is the ephemeral outcome of diffing the ranked candidate list against
// the currently published set. The four slices are disjoint by ticket key.
// Candidates in ToAdd and ToRefresh carry their descendant sets so execution
// can build summarization prompts without re-fetching.
type Plan struct {
	Mode       Mode        `json:"mode"`
	TargetSize int         `json:"target_size"`
	ToAdd      []Candidate `json:"to_add,omitempty"`
	ToRefresh  []Candidate `json:"to_refresh,omitempty"`
	ToRetire   []string    `json:"to_retire,omitempty"`
	Unchanged  []string    `json:"unchanged,omitempty"`
}

// Empty reports whether the plan requires no backend work.
func (p *Plan) Empty() bool {
	return len(p.ToAdd) == 0 && len(p.ToRefresh) == 0 && len(p.ToRetire) == 0
}

// Failure describes one plan entry that could not be completed.
type Failure struct {
	Key    string `json:"key"`
	Action string `json:"action"` // "add", "refresh", or "retire"
	Reason string `json:"reason"`
}

// Report accumulates per-entry outcomes of executing a plan. Every failure is
// recorded; nothing is silently dropped.
type Report struct {
	Mode      Mode          `json:"mode"`
	Added     int           `json:"added"`
	Refreshed int           `json:"refreshed"`
	Retired   int           `json:"retired"`
	Unchanged int           `json:"unchanged"`
	Failed    int           `json:"failed"`
	Failures  []Failure     `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Succeeded returns the total number of completed plan entries.
func (r *Report) Succeeded() int { return r.Added + r.Refreshed + r.Retired }

// RunSummary is the persisted record of one reconciliation run, surfaced by
// the status command.
type RunSummary struct {
	Mode       Mode      `json:"mode"`
	TargetSize int       `json:"target_size"`
	Processed  int       `json:"processed"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration"`
}
