// Package engine reconciles the ranked candidate list against the published
// knowledge base state. Reconcile computes a plan of disjoint add / refresh /
// retire / unchanged sets; Execute drives the per-ticket summarize-publish
// pipeline with per-entry failure isolation.
package engine

import (
	"fmt"
	"sort"

	"github.com/feedbackops/kbsync/internal/types"
)

// Request selects the reconciliation behavior for one run.
type Request struct {
	Mode       types.Mode
	TargetSize int
	// TestKey restricts a test-update run to one explicit ticket.
	TestKey string
}

// Reconcile diffs the ranked candidates against the currently published set
// and returns the plan for this run. It is a pure function: identical inputs
// with no failed records always produce the same plan, and an input already
// matching the desired state produces an empty one.
//
// Records with a non-published status are treated as absent: a failed entry
// is retried as an addition on the next run, and a retired one is gone.
func Reconcile(req Request, candidates []types.Candidate, published []types.PublishedRecord) (*types.Plan, error) {
	if req.Mode == types.ModeTestUpdate {
		return reconcileTestUpdate(req, candidates, published)
	}
	if req.TargetSize <= 0 {
		return nil, fmt.Errorf("target size must be positive, got %d", req.TargetSize)
	}

	current := currentPublished(published)
	plan := &types.Plan{Mode: req.Mode, TargetSize: req.TargetSize}

	desired := candidates
	if len(desired) > req.TargetSize {
		desired = desired[:req.TargetSize]
	}

	switch req.Mode {
	case types.ModeInit:
		// First-time population: the backend starts empty, everything is
		// an addition.
		plan.ToAdd = append(plan.ToAdd, desired...)
		return plan, nil

	case types.ModeUpdate, types.ModeResize, types.ModeForceRefresh:
		desiredKeys := make(map[string]bool, len(desired))
		for _, c := range desired {
			desiredKeys[c.Ticket.Key] = true
			rec, ok := current[c.Ticket.Key]
			switch {
			case !ok:
				plan.ToAdd = append(plan.ToAdd, c)
			case req.Mode == types.ModeForceRefresh:
				plan.ToRefresh = append(plan.ToRefresh, c)
			case rec.DescendantCount != c.DescendantCount():
				plan.ToRefresh = append(plan.ToRefresh, c)
			default:
				plan.Unchanged = append(plan.Unchanged, c.Ticket.Key)
			}
		}
		plan.ToRetire = retireOrder(candidates, current, desiredKeys)
		return plan, nil
	}

	return nil, fmt.Errorf("unknown reconciliation mode %q", req.Mode)
}

func reconcileTestUpdate(req Request, candidates []types.Candidate, published []types.PublishedRecord) (*types.Plan, error) {
	if req.TestKey == "" {
		return nil, fmt.Errorf("test-update requires a ticket key")
	}

	plan := &types.Plan{Mode: types.ModeTestUpdate, TargetSize: 1}
	for _, c := range candidates {
		if c.Ticket.Key != req.TestKey {
			continue
		}
		if _, ok := currentPublished(published)[req.TestKey]; ok {
			plan.ToRefresh = append(plan.ToRefresh, c)
		} else {
			plan.ToAdd = append(plan.ToAdd, c)
		}
		return plan, nil
	}
	return nil, fmt.Errorf("ticket %s is not an ultimate-parent candidate", req.TestKey)
}

// currentPublished indexes records that actually exist in the remote knowledge
// base. Failed and retired records are excluded so diffing retries them.
func currentPublished(published []types.PublishedRecord) map[string]types.PublishedRecord {
	current := make(map[string]types.PublishedRecord, len(published))
	for _, rec := range published {
		if rec.Status == types.StatusPublished {
			current[rec.Key] = rec
		}
	}
	return current
}

// retireOrder returns the published keys that fall outside the desired set,
// lowest-ranked first. Keys that are no longer candidates at all (the ticket
// gained an outward link or left the query) come before ranked ones, so a
// shrinking run sheds the least valuable entries before anything else.
func retireOrder(candidates []types.Candidate, current map[string]types.PublishedRecord, desired map[string]bool) []string {
	rank := make(map[string]int, len(candidates))
	for i, c := range candidates {
		rank[c.Ticket.Key] = i
	}

	var retire []string
	for key := range current {
		if !desired[key] {
			retire = append(retire, key)
		}
	}
	sort.Slice(retire, func(i, j int) bool {
		ri, iOK := rank[retire[i]]
		rj, jOK := rank[retire[j]]
		if iOK != jOK {
			return !iOK
		}
		if ri != rj {
			return ri > rj
		}
		return retire[i] < retire[j]
	})
	return retire
}
