// Package tree holds the result tree of a finished job: the folder listing,
// which folders are expanded, and the currently selected file with its
// fetched content.
package tree

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ocrdesk/ocrdesk/internal/blob"
	"github.com/ocrdesk/ocrdesk/internal/events"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/ratelimit"
	"github.com/ocrdesk/ocrdesk/internal/util/ocrtext"
)

// Client is the subset of the OCR client the tree reads from.
type Client interface {
	BaseURL() string
	Folder(ctx context.Context, dir string) (*models.FolderResponse, error)
	FileText(ctx context.Context, path string) (string, error)
	FileBytes(ctx context.Context, path string) ([]byte, string, error)
}

// Row is one visible line of the rendered tree.
type Row struct {
	Key      string           `json:"key"`
	Depth    int              `json:"depth"`
	Expanded bool             `json:"expanded"`
	Node     *models.FileNode `json:"node"`
}

// Tree is safe for concurrent use.
type Tree struct {
	client   Client
	store    *blob.Store
	eventBus *events.EventBus
	logger   *logging.Logger

	mu        sync.Mutex
	resultDir string
	nodes     []*models.FileNode
	expanded  map[string]bool
	selSeq    uint64
	selected  *models.FileNode
	selRef    blob.Ref

	fetchLimit *ratelimit.RateLimiter
}

// New creates an empty tree.
func New(client Client, store *blob.Store, eventBus *events.EventBus, logger *logging.Logger) *Tree {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	return &Tree{
		client:   client,
		store:    store,
		eventBus: eventBus,
		logger:   logger,
		expanded: make(map[string]bool),
	}
}

// SetFetchLimiter paces the file fetches of DownloadAll. nil means unlimited.
func (t *Tree) SetFetchLimiter(rl *ratelimit.RateLimiter) {
	t.mu.Lock()
	t.fetchLimit = rl
	t.mu.Unlock()
}

// Load replaces the tree with the listing of resultDir. The first top-level
// node starts expanded when it is a folder. An empty resultDir clears the
// tree without a backend call. A failed listing leaves it empty with no
// result directory recorded, so loading the same directory again retries.
func (t *Tree) Load(ctx context.Context, resultDir string) error {
	if resultDir == "" {
		t.replace("", nil)
		return nil
	}

	resp, err := t.client.Folder(ctx, resultDir)
	if err != nil {
		t.replace("", nil)
		t.logger.Error().Err(err).Str("result_dir", resultDir).Msg("Failed to load result tree")
		t.eventBus.Notify(events.ErrorLevel, "Failed to load file list", err.Error())
		t.publishTree(resultDir, 0, err.Error())
		return err
	}

	nodes := models.BuildTree(resp.Children, resultDir)
	t.replace(resultDir, nodes)
	t.logger.Debug().Str("result_dir", resultDir).Int("top_level", len(nodes)).Msg("Result tree loaded")
	t.publishTree(resultDir, len(nodes), "")
	return nil
}

func (t *Tree) replace(resultDir string, nodes []*models.FileNode) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resultDir = resultDir
	t.nodes = nodes
	t.expanded = make(map[string]bool)
	if len(nodes) > 0 && nodes[0].IsFolder() {
		t.expanded[nodes[0].Name] = true
	}
}

func (t *Tree) publishTree(resultDir string, n int, errMsg string) {
	t.eventBus.Publish(&events.TreeEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventTree, Time: time.Now()},
		ResultDir: resultDir,
		Nodes:     n,
		Error:     errMsg,
	})
}

// ResultDir returns the directory the tree was last loaded from.
func (t *Tree) ResultDir() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resultDir
}

// Toggle flips the expansion of the folder at key ("a/b" for folder b inside
// a) and returns the new state. Purely local.
func (t *Tree) Toggle(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expanded[key] = !t.expanded[key]
	return t.expanded[key]
}

// IsExpanded reports whether the folder at key is open.
func (t *Tree) IsExpanded(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expanded[key]
}

// Nodes returns copies of the top-level nodes.
func (t *Tree) Nodes() []*models.FileNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneAll(t.nodes)
}

// Rows returns the visible lines in display order: children of collapsed
// folders are skipped.
func (t *Tree) Rows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rows []Row
	var walk func(nodes []*models.FileNode, prefix string, depth int)
	walk = func(nodes []*models.FileNode, prefix string, depth int) {
		for _, n := range nodes {
			key := joinKey(prefix, n.Name)
			open := n.IsFolder() && t.expanded[key]
			rows = append(rows, Row{Key: key, Depth: depth, Expanded: open, Node: leaf(n)})
			if open {
				walk(n.Children, key, depth+1)
			}
		}
	}
	walk(t.nodes, "", 0)
	return rows
}

// Flatten returns every file leaf in depth-first order.
func (t *Tree) Flatten() []*models.FileNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return flatten(t.nodes)
}

func flatten(nodes []*models.FileNode) []*models.FileNode {
	var out []*models.FileNode
	for _, n := range nodes {
		if n.IsFolder() {
			out = append(out, flatten(n.Children)...)
			continue
		}
		out = append(out, n.Clone())
	}
	return out
}

// Find returns a copy of the node whose backend path is path, or nil.
func (t *Tree) Find(path string) *models.FileNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return find(t.nodes, path)
}

func find(nodes []*models.FileNode, path string) *models.FileNode {
	for _, n := range nodes {
		if n.Path == path {
			return n.Clone()
		}
		if found := find(n.Children, path); found != nil {
			return found
		}
	}
	return nil
}

// Selected returns a copy of the current selection with its content.
func (t *Tree) Selected() *models.FileNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selected.Clone()
}

// Select fetches the content of node and makes it the current selection.
// Images and PDFs are stored as blob references; markdown is cleaned for
// display; anything else is shown verbatim. A node without a path is
// ignored. When a newer Select wins the race, the older result is dropped
// and nil is returned.
func (t *Tree) Select(ctx context.Context, node *models.FileNode) (*models.FileNode, error) {
	if node == nil || node.Path == "" || node.IsFolder() {
		return nil, nil
	}

	t.mu.Lock()
	t.selSeq++
	seq := t.selSeq
	t.mu.Unlock()

	sel := node.Clone()
	var ref blob.Ref

	switch sel.Kind {
	case models.KindImage, models.KindPDF:
		data, contentType, err := t.client.FileBytes(ctx, sel.Path)
		if err != nil {
			return nil, t.selectFailed(sel, err)
		}
		ref = t.store.Create(data, contentType)
		sel.Content = string(ref)

	case models.KindMarkdown:
		text, err := t.client.FileText(ctx, sel.Path)
		if err != nil {
			return nil, t.selectFailed(sel, err)
		}
		sel.Content = ocrtext.CleanMarkdown(text, sel.ResultDir, t.client.BaseURL())

	default:
		text, err := t.client.FileText(ctx, sel.Path)
		if err != nil {
			return nil, t.selectFailed(sel, err)
		}
		sel.Content = text
	}

	t.mu.Lock()
	if seq != t.selSeq {
		t.mu.Unlock()
		t.store.Revoke(ref)
		return nil, nil
	}
	old := t.selRef
	t.selected = sel
	t.selRef = ref
	t.mu.Unlock()

	t.store.Revoke(old)
	t.eventBus.Publish(&events.SelectionEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventSelection, Time: time.Now()},
		Name:      sel.Name,
		Path:      sel.Path,
		Kind:      string(sel.Kind),
	})
	return sel.Clone(), nil
}

func (t *Tree) selectFailed(node *models.FileNode, err error) error {
	t.logger.Error().Err(err).Str("path", node.Path).Msg("Failed to load file content")
	t.eventBus.Notify(events.ErrorLevel, "Failed to load file", node.Name)
	return err
}

// ClearSelection drops the selection and revokes its blob, if any.
func (t *Tree) ClearSelection() {
	t.mu.Lock()
	t.selSeq++
	ref := t.selRef
	t.selected = nil
	t.selRef = ""
	t.mu.Unlock()

	t.store.Revoke(ref)
}

func cloneAll(nodes []*models.FileNode) []*models.FileNode {
	if nodes == nil {
		return nil
	}
	out := make([]*models.FileNode, len(nodes))
	for i, n := range nodes {
		c := n.Clone()
		c.Children = cloneAll(n.Children)
		if n.Children != nil && c.Children == nil {
			c.Children = []*models.FileNode{}
		}
		out[i] = c
	}
	return out
}

// leaf copies n without its children.
func leaf(n *models.FileNode) *models.FileNode {
	c := n.Clone()
	c.Children = nil
	return c
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + strings.Trim(name, "/")
}
