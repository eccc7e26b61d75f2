// Package viewer turns the selected result file into something a browser
// or terminal can show. It does no network I/O.
package viewer

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/ocrdesk/ocrdesk/internal/blob"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

// Kind is how a view is displayed.
type Kind string

const (
	KindPlaceholder Kind = "placeholder"
	KindMarkdown    Kind = "markdown"
	KindImage       Kind = "image"
	KindPDF         Kind = "pdf"
	KindText        Kind = "text"
)

// BlobRoute is where the web server serves blob references.
const BlobRoute = "/blob/"

// View is the rendered preview of one node.
type View struct {
	Kind     Kind   `json:"kind"`
	Name     string `json:"name,omitempty"`
	Path     string `json:"path,omitempty"`
	HTML     string `json:"html,omitempty"`
	Src      string `json:"src,omitempty"`
	Overlay  bool   `json:"overlay"`
	Expanded bool   `json:"expanded"`
}

// Viewer keeps the panel layout state between renders.
type Viewer struct {
	md goldmark.Markdown

	mu       sync.Mutex
	expanded bool
	overlay  bool
	lastPath string
}

// New creates a viewer with GFM enabled and raw HTML passed through, since
// OCR output carries HTML tables.
func New() *Viewer {
	return &Viewer{md: newMarkdown()}
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
}

// Render builds the view for node. nil and folders give the placeholder.
func (v *Viewer) Render(node *models.FileNode) (View, error) {
	v.mu.Lock()
	if node == nil || node.Path != v.lastPath {
		v.overlay = false
	}
	if node != nil {
		v.lastPath = node.Path
	}
	view := View{Expanded: v.expanded, Overlay: v.overlay}
	v.mu.Unlock()

	if node == nil || node.IsFolder() {
		view.Kind = KindPlaceholder
		view.Overlay = false
		return view, nil
	}
	view.Name = node.Name
	view.Path = node.Path

	switch node.Kind {
	case models.KindMarkdown:
		out, err := RenderMarkdownWith(v.md, node.Content)
		if err != nil {
			return View{}, err
		}
		view.Kind = KindMarkdown
		view.HTML = out
	case models.KindImage:
		view.Kind = KindImage
		view.Src = BlobSrc(node.Content)
	case models.KindPDF:
		view.Kind = KindPDF
		view.Src = BlobSrc(node.Content)
		view.Overlay = false
	default:
		view.Kind = KindText
		view.HTML = "<pre>" + html.EscapeString(node.Content) + "</pre>"
		view.Overlay = false
	}
	return view, nil
}

// BlobSrc maps a blob reference to its served URL path. Anything else is
// returned unchanged.
func BlobSrc(content string) string {
	if !blob.IsRef(content) {
		return content
	}
	return BlobRoute + blob.Ref(content).ID()
}

// ToggleExpanded flips the expanded layout and returns the new value.
func (v *Viewer) ToggleExpanded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expanded = !v.expanded
	return v.expanded
}

// Expanded reports whether the preview takes the whole right column.
func (v *Viewer) Expanded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.expanded
}

// ToggleImageOverlay flips the full-size image overlay. It resets whenever
// a different file is rendered.
func (v *Viewer) ToggleImageOverlay() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.overlay = !v.overlay
	return v.overlay
}

// RenderMarkdown renders src with the default settings.
func RenderMarkdown(src string) (string, error) {
	return RenderMarkdownWith(newMarkdown(), src)
}

// RenderMarkdownWith renders src with md and post-processes the HTML.
func RenderMarkdownWith(md goldmark.Markdown, src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return decorate(buf.String())
}

// decorate applies the display rules to rendered HTML:
//   - images load lazily
//   - links open in a new tab without an opener
//   - code is tagged fenced (with its language) or inline
//   - tables are wrapped in a horizontal scroll container
func decorate(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("failed to parse rendered html: %w", err)
	}
	body := doc.Find("body")

	body.Find("img").SetAttr("loading", "lazy")
	body.Find("a").Each(func(_ int, s *goquery.Selection) {
		s.SetAttr("target", "_blank")
		s.SetAttr("rel", "noopener noreferrer")
	})

	body.Find("code").Each(func(_ int, s *goquery.Selection) {
		lang := languageOf(s)
		if lang != "" && s.Parent().Is("pre") {
			s.SetAttr("data-block", "fenced")
			s.SetAttr("data-lang", lang)
			return
		}
		s.SetAttr("data-block", "inline")
	})

	body.Find("table").Each(func(_ int, s *goquery.Selection) {
		if !s.Parent().HasClass("table-scroll") {
			s.WrapHtml(`<div class="table-scroll"></div>`)
		}
	})

	out, err := body.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialise html: %w", err)
	}
	return out, nil
}

func languageOf(s *goquery.Selection) string {
	class, _ := s.Attr("class")
	for _, c := range strings.Fields(class) {
		if lang, ok := strings.CutPrefix(c, "language-"); ok && lang != "" {
			return lang
		}
	}
	return ""
}
