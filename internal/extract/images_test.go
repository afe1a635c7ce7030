package extract

import (
	"testing"
)

func TestImages_PrefersFullRes(t *testing.T) {
	page := []byte(`<html><body>
		<img src="https://graph.example/thumb/1"
		     data-fullres-src="https://graph.example/full/1"
		     data-fullres-src-type="image/png"/>
	</body></html>`)

	refs, err := Images(page)
	if err != nil {
		t.Fatalf("Images failed: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("refs = %d, want 1", len(refs))
	}
	if refs[0].URL() != "https://graph.example/full/1" {
		t.Errorf("URL = %q, want the full-resolution variant", refs[0].URL())
	}
	if refs[0].ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", refs[0].ContentType)
	}
}

func TestImages_FallsBackToSrc(t *testing.T) {
	page := []byte(`<img src="https://graph.example/thumb/2">`)

	refs, err := Images(page)
	if err != nil {
		t.Fatalf("Images failed: %v", err)
	}
	if len(refs) != 1 || refs[0].URL() != "https://graph.example/thumb/2" {
		t.Fatalf("refs = %+v, want single src fallback", refs)
	}
}

func TestImages_DocumentOrderAndFiltering(t *testing.T) {
	page := []byte(`<html><body>
		<p>text</p>
		<img src="https://graph.example/a">
		<div><img data-fullres-src="https://graph.example/b"></div>
		<img alt="no source at all">
		<img src="   ">
		<img src="https://graph.example/c">
	</body></html>`)

	refs, err := Images(page)
	if err != nil {
		t.Fatalf("Images failed: %v", err)
	}
	want := []string{"https://graph.example/a", "https://graph.example/b", "https://graph.example/c"}
	if len(refs) != len(want) {
		t.Fatalf("refs = %d, want %d", len(refs), len(want))
	}
	for i, w := range want {
		if refs[i].URL() != w {
			t.Errorf("refs[%d] = %q, want %q", i, refs[i].URL(), w)
		}
	}
}

func TestImages_PageWithoutImages(t *testing.T) {
	refs, err := Images([]byte(`<html><body><p>prose only</p></body></html>`))
	if err != nil {
		t.Fatalf("Images failed: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("refs = %d, want 0", len(refs))
	}
}

func TestImages_ToleratesMalformedMarkup(t *testing.T) {
	// html.Parse repairs broken markup instead of failing.
	refs, err := Images([]byte(`<body><img src="https://graph.example/x"<p>unclosed`))
	if err != nil {
		t.Fatalf("Images failed: %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("refs = %d, want 1", len(refs))
	}
}
