package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vietddude/notefetch/internal/core/domain"
)

// ListNotebooks enumerates every OneNote notebook for the signed-in user.
func (c *Client) ListNotebooks(ctx context.Context) ([]domain.Notebook, error) {
	var notebooks []domain.Notebook
	p := c.NewPager("me/onenote/notebooks", "list_notebooks")
	err := p.collect(ctx, func(raw json.RawMessage) error {
		var nb domain.Notebook
		if err := json.Unmarshal(raw, &nb); err != nil {
			return fmt.Errorf("parse notebook: %w", err)
		}
		notebooks = append(notebooks, nb)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notebooks, nil
}

// ListSections enumerates the sections of a notebook.
func (c *Client) ListSections(ctx context.Context, notebookID string) ([]domain.Section, error) {
	var sections []domain.Section
	endpoint := fmt.Sprintf("me/onenote/notebooks/%s/sections", notebookID)
	p := c.NewPager(endpoint, "list_sections")
	err := p.collect(ctx, func(raw json.RawMessage) error {
		var s domain.Section
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("parse section: %w", err)
		}
		s.NotebookID = notebookID
		sections = append(sections, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sections, nil
}

// ListPages enumerates the pages of a section.
func (c *Client) ListPages(ctx context.Context, sectionID string) ([]domain.Page, error) {
	var pages []domain.Page
	endpoint := fmt.Sprintf("me/onenote/sections/%s/pages", sectionID)
	p := c.NewPager(endpoint, "list_pages")
	err := p.collect(ctx, func(raw json.RawMessage) error {
		var pg domain.Page
		if err := json.Unmarshal(raw, &pg); err != nil {
			return fmt.Errorf("parse page: %w", err)
		}
		pg.SectionID = sectionID
		pages = append(pages, pg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// PageContent fetches the HTML body of a page.
func (c *Client) PageContent(ctx context.Context, pageID string) ([]byte, error) {
	endpoint := fmt.Sprintf("me/onenote/pages/%s/content", pageID)
	return c.Get(ctx, endpoint, "page_content")
}

// DownloadResource streams an authenticated binary resource (an image's
// source URL) to w.
func (c *Client) DownloadResource(ctx context.Context, url string, w io.Writer) error {
	return c.Fetch(ctx, url, "download_image", w)
}
