package domain

// Notebook is a OneNote notebook as returned by the Graph API.
type Notebook struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Section is a OneNote section within a notebook.
type Section struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	NotebookID  string `json:"-"`
}

// Page is a OneNote page within a section.
type Page struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ContentURL string `json:"contentUrl"`
	SectionID  string `json:"-"`
}

// ImageRef is a single image reference discovered in a page's HTML body.
// SourceURL is the authenticated resource URL to download; FullResURL is the
// full-resolution variant when the page carries one.
type ImageRef struct {
	PageID      string
	SourceURL   string
	FullResURL  string
	ContentType string
}

// URL returns the preferred download URL for the image.
func (r ImageRef) URL() string {
	if r.FullResURL != "" {
		return r.FullResURL
	}
	return r.SourceURL
}

// PageCursor is a position in a paginated collection. An empty NextLink
// signals the terminal page.
type PageCursor struct {
	Endpoint string
	NextLink string
}

// Done reports whether the cursor has no further pages.
func (c PageCursor) Done() bool {
	return c.NextLink == ""
}
