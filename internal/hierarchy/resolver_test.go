package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedbackops/kbsync/internal/types"
)

func ticket(key string, outward, inward []string) types.Ticket {
	return types.Ticket{Key: key, Summary: "summary of " + key, Outward: outward, Inward: inward}
}

func TestResolveFiltersSubordinates(t *testing.T) {
	tickets := []types.Ticket{
		ticket("FB-1", nil, []string{"FB-2"}),
		ticket("FB-2", []string{"FB-1"}, nil),
		ticket("FB-3", nil, nil),
	}

	candidates, cycles := Resolve(tickets, nil)
	require.Empty(t, cycles)
	require.Len(t, candidates, 2)
	for _, c := range candidates {
		assert.Empty(t, c.Ticket.Outward, "candidate %s has outward links", c.Ticket.Key)
	}
}

func TestResolveChainDescendants(t *testing.T) {
	// C duplicates B, B duplicates A: A is ultimate with descendants {B, C}.
	tickets := []types.Ticket{
		ticket("FB-A", nil, []string{"FB-B"}),
		ticket("FB-B", []string{"FB-A"}, []string{"FB-C"}),
		ticket("FB-C", []string{"FB-B"}, nil),
	}

	candidates, cycles := Resolve(tickets, nil)
	require.Empty(t, cycles)
	require.Len(t, candidates, 1)
	assert.Equal(t, "FB-A", candidates[0].Ticket.Key)
	assert.Equal(t, 2, candidates[0].DescendantCount())
	assert.ElementsMatch(t, []string{"FB-B", "FB-C"}, candidates[0].DescendantKeys())
}

func TestResolveOrdering(t *testing.T) {
	tickets := []types.Ticket{
		ticket("FB-10", nil, []string{"FB-11"}),
		ticket("FB-11", []string{"FB-10"}, nil),
		ticket("FB-20", nil, []string{"FB-21", "FB-22"}),
		ticket("FB-21", []string{"FB-20"}, nil),
		ticket("FB-22", []string{"FB-20"}, nil),
		// Same count as FB-10: tie broken by key ascending.
		ticket("FB-05", nil, []string{"FB-06"}),
		ticket("FB-06", []string{"FB-05"}, nil),
	}

	candidates, _ := Resolve(tickets, nil)
	require.Len(t, candidates, 3)
	assert.Equal(t, "FB-20", candidates[0].Ticket.Key)
	assert.Equal(t, "FB-05", candidates[1].Ticket.Key)
	assert.Equal(t, "FB-10", candidates[2].Ticket.Key)
}

func TestResolveDeterministic(t *testing.T) {
	tickets := []types.Ticket{
		ticket("FB-1", nil, []string{"FB-2", "FB-3"}),
		ticket("FB-2", []string{"FB-1"}, nil),
		ticket("FB-3", []string{"FB-1"}, []string{"FB-4"}),
		ticket("FB-4", []string{"FB-3"}, nil),
		ticket("FB-5", nil, nil),
	}

	first, _ := Resolve(tickets, nil)
	second, _ := Resolve(tickets, nil)
	assert.Equal(t, first, second)
}

func TestResolveCycleExcluded(t *testing.T) {
	// FB-X is a clean candidate. FB-R's descendant chain closes back onto
	// itself through FB-S and FB-T.
	tickets := []types.Ticket{
		ticket("FB-R", nil, []string{"FB-S"}),
		ticket("FB-S", []string{"FB-R"}, []string{"FB-T"}),
		ticket("FB-T", []string{"FB-S"}, []string{"FB-S"}),
		ticket("FB-X", nil, nil),
	}

	candidates, cycles := Resolve(tickets, nil)
	require.Len(t, cycles, 1)
	assert.Equal(t, "FB-R", cycles[0].Root)
	require.Len(t, candidates, 1)
	assert.Equal(t, "FB-X", candidates[0].Ticket.Key)
}

func TestResolveMutualDuplicatesExcluded(t *testing.T) {
	// A duplicates B and B duplicates A: neither is an ultimate parent.
	tickets := []types.Ticket{
		ticket("FB-A", []string{"FB-B"}, []string{"FB-B"}),
		ticket("FB-B", []string{"FB-A"}, []string{"FB-A"}),
	}

	candidates, cycles := Resolve(tickets, nil)
	assert.Empty(t, candidates)
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []string{"FB-A", "FB-B"}, cycles[0].Participants)
}

func TestResolveDiamondCountedOnce(t *testing.T) {
	// FB-D is reachable through both FB-B and FB-C but counts once.
	tickets := []types.Ticket{
		ticket("FB-A", nil, []string{"FB-B", "FB-C"}),
		ticket("FB-B", []string{"FB-A"}, []string{"FB-D"}),
		ticket("FB-C", []string{"FB-A"}, []string{"FB-D"}),
		ticket("FB-D", []string{"FB-B", "FB-C"}, nil),
	}

	candidates, cycles := Resolve(tickets, nil)
	require.Empty(t, cycles)
	require.Len(t, candidates, 1)
	assert.Equal(t, 3, candidates[0].DescendantCount())
	assert.ElementsMatch(t, []string{"FB-B", "FB-C", "FB-D"}, candidates[0].DescendantKeys())
}

func TestResolveSelfLoopExcluded(t *testing.T) {
	tickets := []types.Ticket{
		ticket("FB-L", nil, []string{"FB-L"}),
	}

	candidates, cycles := Resolve(tickets, nil)
	assert.Empty(t, candidates)
	require.Len(t, cycles, 1)
	assert.Equal(t, "FB-L", cycles[0].Root)
}
