package viewer

import (
	"strings"
	"testing"

	"github.com/ocrdesk/ocrdesk/internal/blob"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		want    []string
		notWant []string
	}{
		{
			name: "heading and paragraph",
			src:  "# Title\n\nbody text",
			want: []string{"<h1>Title</h1>", "<p>body text</p>"},
		},
		{
			name: "image loads lazily",
			src:  "![fig](http://ocr/results/t1/images/0.jpg)",
			want: []string{`src="http://ocr/results/t1/images/0.jpg"`, `loading="lazy"`},
		},
		{
			name: "links open in new tab",
			src:  "[docs](https://example.com)",
			want: []string{`target="_blank"`, `rel="noopener noreferrer"`},
		},
		{
			name: "bare url is linked",
			src:  "see https://example.com now",
			want: []string{`<a href="https://example.com"`, `target="_blank"`},
		},
		{
			name: "fenced code keeps language",
			src:  "```go\nfmt.Println(1)\n```",
			want: []string{`data-block="fenced"`, `data-lang="go"`},
		},
		{
			name:    "inline code",
			src:     "call `run()` first",
			want:    []string{`data-block="inline"`},
			notWant: []string{`data-block="fenced"`},
		},
		{
			name: "gfm table wrapped",
			src:  "| a | b |\n|---|---|\n| 1 | 2 |",
			want: []string{`<div class="table-scroll"><table>`, "<td>1</td>"},
		},
		{
			name: "raw html table passes through",
			src:  "<table><tr><td>cell</td></tr></table>",
			want: []string{`<div class="table-scroll"><table>`, "<td>cell</td>"},
		},
		{
			name: "strikethrough",
			src:  "~~gone~~",
			want: []string{"<del>gone</del>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderMarkdown(tt.src)
			if err != nil {
				t.Fatalf("RenderMarkdown() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("output missing %q\n%s", w, got)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("output unexpectedly contains %q\n%s", w, got)
				}
			}
		})
	}
}

func TestRenderKinds(t *testing.T) {
	ref := blob.NewStore().Create([]byte("x"), "image/png")

	tests := []struct {
		name     string
		node     *models.FileNode
		wantKind Kind
		wantSrc  string
		wantHTML string
	}{
		{name: "nothing selected", node: nil, wantKind: KindPlaceholder},
		{
			name:     "folder",
			node:     &models.FileNode{Name: "images", Type: models.NodeFolder},
			wantKind: KindPlaceholder,
		},
		{
			name:     "markdown",
			node:     &models.FileNode{Name: "r.md", Type: models.NodeFile, Kind: models.KindMarkdown, Path: "/r.md", Content: "**bold**"},
			wantKind: KindMarkdown,
			wantHTML: "<strong>bold</strong>",
		},
		{
			name:     "image",
			node:     &models.FileNode{Name: "0.jpg", Type: models.NodeFile, Kind: models.KindImage, Path: "/0.jpg", Content: string(ref)},
			wantKind: KindImage,
			wantSrc:  BlobRoute + ref.ID(),
		},
		{
			name:     "pdf",
			node:     &models.FileNode{Name: "l.pdf", Type: models.NodeFile, Kind: models.KindPDF, Path: "/l.pdf", Content: string(ref)},
			wantKind: KindPDF,
			wantSrc:  BlobRoute + ref.ID(),
		},
		{
			name:     "other is escaped",
			node:     &models.FileNode{Name: "info.json", Type: models.NodeFile, Path: "/info.json", Content: `{"a":"<b>"}`},
			wantKind: KindText,
			wantHTML: "<pre>{&#34;a&#34;:&#34;&lt;b&gt;&#34;}</pre>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			got, err := v.Render(tt.node)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", got.Kind, tt.wantKind)
			}
			if got.Src != tt.wantSrc {
				t.Errorf("Src = %q, want %q", got.Src, tt.wantSrc)
			}
			if tt.wantHTML != "" && !strings.Contains(got.HTML, tt.wantHTML) {
				t.Errorf("HTML = %q, want it to contain %q", got.HTML, tt.wantHTML)
			}
		})
	}
}

func TestBlobSrcPassesThroughPlainURLs(t *testing.T) {
	if got := BlobSrc("http://x/y.png"); got != "http://x/y.png" {
		t.Errorf("BlobSrc() = %q", got)
	}
}

func TestImageOverlayResetsOnNewFile(t *testing.T) {
	v := New()
	a := &models.FileNode{Name: "a.png", Type: models.NodeFile, Kind: models.KindImage, Path: "/a.png"}
	b := &models.FileNode{Name: "b.png", Type: models.NodeFile, Kind: models.KindImage, Path: "/b.png"}

	if _, err := v.Render(a); err != nil {
		t.Fatal(err)
	}
	if !v.ToggleImageOverlay() {
		t.Fatal("overlay should open")
	}
	view, _ := v.Render(a)
	if !view.Overlay {
		t.Error("overlay should stay open for the same file")
	}

	view, _ = v.Render(b)
	if view.Overlay {
		t.Error("overlay should close when another file is shown")
	}
}

func TestToggleExpanded(t *testing.T) {
	v := New()
	if v.Expanded() {
		t.Fatal("viewer should start collapsed")
	}
	if !v.ToggleExpanded() || !v.Expanded() {
		t.Error("ToggleExpanded() should expand")
	}
	view, _ := v.Render(nil)
	if !view.Expanded {
		t.Error("view should carry the expanded flag")
	}
	if v.ToggleExpanded() {
		t.Error("second toggle should collapse")
	}
}
