// Package hierarchy resolves the ultimate-parent structure of a duplicate-link
// graph. The duplicate relation is operator-maintained tracker data: it should
// be acyclic but is not guaranteed to be, so every traversal is guarded and
// cycles degrade to per-candidate exclusion rather than a run-wide failure.
package hierarchy

import (
	"log/slog"
	"sort"

	"github.com/feedbackops/kbsync/internal/types"
)

// CycleError reports a duplicate-link cycle discovered while collecting the
// descendant set of one candidate. The affected candidate is excluded from
// the ranked list; resolution of the remaining candidates continues.
type CycleError struct {
	Root         string
	Participants []string
}

func (e *CycleError) Error() string {
	return "duplicate-link cycle under " + e.Root
}

// childIndex maps a ticket key to the keys of its direct duplicate children
// (inward links). It is built once per Resolve call and discarded with it, so
// repeated resolutions over re-fetched data never see stale lookups.
type childIndex map[string][]string

func buildChildIndex(tickets []types.Ticket) childIndex {
	idx := make(childIndex, len(tickets))
	for i := range tickets {
		t := &tickets[i]
		if len(t.Inward) > 0 {
			idx[t.Key] = t.Inward
		}
	}
	return idx
}

// Resolve partitions tickets into ultimate parents and subordinates, collects
// each ultimate parent's transitive descendant set, and returns the full
// candidate list ordered by descendant count descending with ties broken by
// ticket key ascending. The ordering is deterministic for a fixed input, and
// Resolve is a pure function of its input: callers select prefixes as needed.
//
// Candidates whose descendant traversal hits a cycle are excluded with a
// logged diagnostic. The returned CycleError slice carries one entry per
// excluded candidate for callers that want to surface them.
func Resolve(tickets []types.Ticket, log *slog.Logger) ([]types.Candidate, []*CycleError) {
	if log == nil {
		log = slog.Default()
	}

	idx := buildChildIndex(tickets)

	candidates := make([]types.Candidate, 0, len(tickets))
	var cycles []*CycleError
	for i := range tickets {
		t := tickets[i]
		if len(t.Outward) > 0 {
			// Subordinate: duplicates some other ticket.
			continue
		}
		descendants, cycle := collectDescendants(t.Key, idx)
		if cycle != nil {
			log.Warn("excluding candidate: duplicate-link cycle",
				"ticket", t.Key,
				"participants", cycle.Participants)
			cycles = append(cycles, cycle)
			continue
		}
		candidates = append(candidates, types.Candidate{Ticket: t, Descendants: descendants})
	}

	cycles = append(cycles, detectOutwardCycles(tickets, log)...)

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := &candidates[i], &candidates[j]
		if len(a.Descendants) != len(b.Descendants) {
			return len(a.Descendants) > len(b.Descendants)
		}
		return a.Ticket.Key < b.Ticket.Key
	})

	return candidates, cycles
}

// detectOutwardCycles flags subordinate tickets whose outward duplicate chain
// never terminates at an ultimate parent (e.g. two tickets marked as
// duplicates of each other). Such tickets are unreachable from any candidate's
// descendant walk, so without this check the integrity violation would pass
// silently. One diagnostic is emitted per distinct cycle.
func detectOutwardCycles(tickets []types.Ticket, log *slog.Logger) []*CycleError {
	outward := make(map[string][]string, len(tickets))
	for i := range tickets {
		if len(tickets[i].Outward) > 0 {
			outward[tickets[i].Key] = tickets[i].Outward
		}
	}

	const (
		stateActive = 1
		stateClear  = 2
	)
	state := make(map[string]int, len(outward))
	var cycles []*CycleError

	var walk func(key string, path []string) bool
	walk = func(key string, path []string) bool {
		switch state[key] {
		case stateClear:
			return false
		case stateActive:
			// Trim the path down to the cycle members. The path ends with
			// the repeated key itself, so drop that last element.
			start := 0
			for i, k := range path[:len(path)-1] {
				if k == key {
					start = i
					break
				}
			}
			cycles = append(cycles, &CycleError{Root: key, Participants: append([]string(nil), path[start:len(path)-1]...)})
			return true
		}
		state[key] = stateActive
		found := false
		for _, next := range outward[key] {
			if walk(next, append(path, next)) {
				found = true
			}
		}
		state[key] = stateClear
		return found
	}

	for i := range tickets {
		key := tickets[i].Key
		if len(tickets[i].Outward) > 0 && state[key] == 0 {
			walk(key, []string{key})
		}
	}

	return cycles
}

// traversal state for collectDescendants. A key on the current path marks a
// cycle; a key that is merely done was reached earlier through another parent
// (diamond sharing) and is skipped, not double-counted.
const (
	stateOnPath = 1
	stateDone   = 2
)

// collectDescendants walks inward duplicate links depth-first from root and
// returns the transitive descendant set in discovery order, each annotated
// with its link distance from the root. The root is pre-seeded onto the path,
// so it can never appear in its own descendant set. Revisiting any key on the
// current path tags the whole candidate as CycleDetected.
func collectDescendants(root string, idx childIndex) ([]types.Descendant, *CycleError) {
	state := map[string]int{root: stateOnPath}
	var ordered []types.Descendant

	participants := func(last string) []string {
		keys := make([]string, 0, len(ordered)+1)
		for _, d := range ordered {
			keys = append(keys, d.Key)
		}
		return append(keys, last)
	}

	var walk func(key string, depth int) *CycleError
	walk = func(key string, depth int) *CycleError {
		for _, child := range idx[key] {
			switch state[child] {
			case stateOnPath:
				return &CycleError{Root: root, Participants: participants(child)}
			case stateDone:
				continue
			}
			state[child] = stateOnPath
			ordered = append(ordered, types.Descendant{Key: child, Depth: depth + 1})
			if err := walk(child, depth+1); err != nil {
				return err
			}
			state[child] = stateDone
		}
		return nil
	}

	if err := walk(root, 0); err != nil {
		return nil, err
	}
	return ordered, nil
}
