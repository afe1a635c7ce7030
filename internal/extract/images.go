// Package extract pulls image references out of OneNote page HTML.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/vietddude/notefetch/internal/core/domain"
)

// Images parses page HTML and returns every <img> reference in document
// order. OneNote serves a full-resolution variant in data-fullres-src; it is
// preferred over src when present.
func Images(pageHTML []byte) ([]domain.ImageRef, error) {
	doc, err := html.Parse(bytes.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}

	var refs []domain.ImageRef
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			if ref, ok := imageRef(n); ok {
				refs = append(refs, ref)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return refs, nil
}

func imageRef(n *html.Node) (domain.ImageRef, bool) {
	var ref domain.ImageRef
	for _, attr := range n.Attr {
		val := strings.TrimSpace(attr.Val)
		if val == "" {
			continue
		}
		switch attr.Key {
		case "src":
			ref.SourceURL = val
		case "data-fullres-src":
			ref.FullResURL = val
		case "data-fullres-src-type":
			ref.ContentType = val
		}
	}
	if ref.SourceURL == "" && ref.FullResURL == "" {
		return domain.ImageRef{}, false
	}
	return ref, true
}
