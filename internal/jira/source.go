package jira

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/feedbackops/kbsync/internal/types"
)

// Source adapts the Jira client to the ticket snapshots the hierarchy
// resolver consumes. It is stateless: every fetch returns a fresh snapshot of
// the configured query, so repeated resolutions never see stale link data.
type Source struct {
	client *Client
	query  string
	log    *slog.Logger
}

// NewSource creates a ticket source over the given client and parent JQL
// query.
func NewSource(client *Client, parentQuery string, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	return &Source{client: client, query: parentQuery, log: log}
}

// FetchCandidates runs the configured parent query and converts every issue,
// including its duplicate links, into a ticket snapshot.
func (s *Source) FetchCandidates(ctx context.Context) ([]types.Ticket, error) {
	if s.query == "" {
		return nil, fmt.Errorf("%w: parent query not configured", ErrFetch)
	}

	issues, err := s.client.SearchIssues(ctx, s.query)
	if err != nil {
		return nil, err
	}
	s.log.Info("fetched parent tickets", "query", s.query, "count", len(issues))

	tickets := make([]types.Ticket, 0, len(issues))
	for i := range issues {
		tickets = append(tickets, toTicket(&issues[i]))
	}
	return tickets, nil
}

// FetchTicket fetches a single ticket snapshot by key.
func (s *Source) FetchTicket(ctx context.Context, key string) (*types.Ticket, error) {
	issue, err := s.client.GetIssue(ctx, key)
	if err != nil {
		return nil, err
	}
	t := toTicket(issue)
	return &t, nil
}

// FetchSummaries resolves the summary text for a set of ticket keys. Used to
// build summarization prompts for a candidate's descendants. Keys that fail
// to fetch are returned with an empty summary rather than failing the whole
// batch; prompt building tolerates gaps.
func (s *Source) FetchSummaries(ctx context.Context, keys []string) (map[string]string, error) {
	summaries := make(map[string]string, len(keys))
	for _, key := range keys {
		issue, err := s.client.GetIssue(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s.log.Warn("descendant summary unavailable", "ticket", key, "error", err)
			summaries[key] = ""
			continue
		}
		summaries[key] = issue.Fields.Summary
	}
	return summaries, nil
}

// BrowseURL exposes the citation URL for a ticket key.
func (s *Source) BrowseURL(key string) string { return s.client.BrowseURL(key) }

// toTicket converts a Jira issue into the resolver's ticket snapshot.
// Only duplicate-family links contribute edges: an outward "duplicates" link
// subordinates this issue to its target; inward links are its direct
// children.
func toTicket(issue *Issue) types.Ticket {
	t := types.Ticket{
		Key:         issue.Key,
		Summary:     issue.Fields.Summary,
		Description: DescriptionToPlainText(issue.Fields.Description),
	}

	if created, err := ParseTimestamp(issue.Fields.Created); err == nil {
		t.Created = created
	}
	if issue.Fields.Resolution != nil && issue.Fields.ResolutionDate != "" {
		if resolved, err := ParseTimestamp(issue.Fields.ResolutionDate); err == nil {
			t.Resolved = &resolved
		}
	}

	for i := range issue.Fields.IssueLinks {
		link := &issue.Fields.IssueLinks[i]
		if !link.IsDuplicate() {
			continue
		}
		if link.OutwardIssue != nil {
			t.Outward = append(t.Outward, link.OutwardIssue.Key)
		}
		if link.InwardIssue != nil {
			t.Inward = append(t.Inward, link.InwardIssue.Key)
		}
	}

	return t
}
