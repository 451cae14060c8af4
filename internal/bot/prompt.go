package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/feedbackops/kbsync/internal/types"
)

// maxArtifactLen caps cleaned artifact text sent to knowledge indexes. Longer
// summaries are truncated with an ellipsis.
const maxArtifactLen = 2000

// levelLabel names a descendant's distance from the ultimate parent in
// summarization prompts: Child, Grandchild, Great-Grandchild, and so on.
func levelLabel(depth int) string {
	switch {
	case depth <= 1:
		return "Child"
	case depth == 2:
		return "Grandchild"
	default:
		return strings.Repeat("Great-", depth-2) + "Grandchild"
	}
}

// BuildPrompt renders the summarization prompt for one ultimate parent: the
// parent's summary line followed by one line per descendant, labelled by level
// and numbered within each level in traversal order. Descendants are assumed
// pre-deduplicated by the resolver.
func BuildPrompt(ticket types.Ticket, descendants []DescendantSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Parent Ticket Summary: %s", ticket.Summary)

	perLevel := make(map[int]int)
	for _, d := range descendants {
		perLevel[d.Depth]++
		fmt.Fprintf(&b, "\n%s %d Summary: %s", levelLabel(d.Depth), perLevel[d.Depth], d.Summary)
	}
	return b.String()
}

// CleanArtifact normalizes artifact text for ingestion: markdown emphasis
// markers are stripped, whitespace runs collapse to single spaces, and the
// result is capped at maxArtifactLen.
func CleanArtifact(artifact string) string {
	cleaned := strings.Join(strings.Fields(artifact), " ")
	replacer := strings.NewReplacer("**", "", "*", "", "`", "")
	cleaned = replacer.Replace(cleaned)
	if len(cleaned) > maxArtifactLen {
		cut := maxArtifactLen - 3
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut] + "..."
	}
	return cleaned
}
