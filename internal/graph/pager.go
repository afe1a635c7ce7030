package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/notefetch/internal/core/domain"
	"github.com/vietddude/notefetch/internal/metrics"
)

// listResponse is the Graph API envelope for paginated collections.
type listResponse struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// FetchPage fetches one page of results plus the continuation cursor. An
// empty NextLink on the returned cursor signals the terminal page.
func (c *Client) FetchPage(ctx context.Context, cursor domain.PageCursor, operation string) ([]json.RawMessage, domain.PageCursor, error) {
	target := cursor.Endpoint
	if cursor.NextLink != "" {
		target = cursor.NextLink
	}

	body, err := c.Get(ctx, target, operation)
	if err != nil {
		return nil, cursor, err
	}

	var page listResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, cursor, &domain.RequestError{
			Operation: operation,
			Resource:  target,
			Err:       fmt.Errorf("parse page: %w", err),
		}
	}

	metrics.PagesFetched.Inc()
	next := domain.PageCursor{Endpoint: cursor.Endpoint, NextLink: page.NextLink}
	return page.Value, next, nil
}

// Pager is a lazy sequence of result items over a paginated collection.
// Pages are fetched strictly in order, one at a time, and items are yielded
// in server page order. A pager can be resumed from any previously observed
// cursor, so a retried operation does not re-walk earlier pages.
type Pager struct {
	client    *Client
	operation string
	cursor    domain.PageCursor
	buf       []json.RawMessage
	started   bool
	exhausted bool
}

// NewPager starts a pager at the first page of endpoint.
func (c *Client) NewPager(endpoint, operation string) *Pager {
	return &Pager{
		client:    c,
		operation: operation,
		cursor:    domain.PageCursor{Endpoint: endpoint},
	}
}

// ResumePager restarts a pager from a previously observed cursor.
func (c *Client) ResumePager(cursor domain.PageCursor, operation string) *Pager {
	return &Pager{client: c, operation: operation, cursor: cursor}
}

// Cursor returns the continuation position after the most recently fetched
// page. Valid input to ResumePager.
func (p *Pager) Cursor() domain.PageCursor {
	return p.cursor
}

// Next yields the next item. The second return is false once the collection
// is exhausted. The underlying page fetch happens on demand.
func (p *Pager) Next(ctx context.Context) (json.RawMessage, bool, error) {
	for len(p.buf) == 0 {
		if p.exhausted {
			return nil, false, nil
		}
		if p.started && p.cursor.Done() {
			p.exhausted = true
			return nil, false, nil
		}

		items, next, err := p.client.FetchPage(ctx, p.cursor, p.operation)
		if err != nil {
			return nil, false, err
		}
		p.started = true
		p.cursor = next
		p.buf = items
	}

	item := p.buf[0]
	p.buf = p.buf[1:]
	return item, true, nil
}

// collect decodes every remaining item in the pager into out via fn.
func (p *Pager) collect(ctx context.Context, fn func(json.RawMessage) error) error {
	for {
		item, ok, err := p.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(item); err != nil {
			return err
		}
	}
}
