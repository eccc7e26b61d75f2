// Package models defines the data structures shared by the controller, the
// result tree and the backend client.
package models

import (
	"path"
	"strings"
)

// NodeType distinguishes folders from files in the result tree
type NodeType string

const (
	NodeFolder NodeType = "folder"
	NodeFile   NodeType = "file"
)

// FileKind is the display class of a file, derived from its extension
type FileKind string

const (
	KindUndefined FileKind = ""
	KindMarkdown  FileKind = "markdown"
	KindImage     FileKind = "image"
	KindPDF       FileKind = "pdf"
)

// FileNode is one entry in the result tree.
// Kind is set iff Type is NodeFile. Children is nil for files.
// Content is empty until the node is first selected: cleaned markdown, raw
// text, or a blob reference for images and PDFs.
type FileNode struct {
	Name      string      `json:"name"`
	Type      NodeType    `json:"type"`
	Kind      FileKind    `json:"fileType,omitempty"`
	Path      string      `json:"path,omitempty"`
	ResultDir string      `json:"resultDir"`
	Content   string      `json:"content,omitempty"`
	Children  []*FileNode `json:"children,omitempty"`
}

// IsFolder reports whether the node is a folder
func (n *FileNode) IsFolder() bool {
	return n != nil && n.Type == NodeFolder
}

// Clone returns a shallow copy of the node with its own Children slice.
func (n *FileNode) Clone() *FileNode {
	if n == nil {
		return nil
	}
	c := *n
	if n.Children != nil {
		c.Children = append([]*FileNode(nil), n.Children...)
	}
	return &c
}

var kindByExt = map[string]FileKind{
	"md":   KindMarkdown,
	"mmd":  KindMarkdown,
	"txt":  KindMarkdown,
	"png":  KindImage,
	"jpg":  KindImage,
	"jpeg": KindImage,
	"gif":  KindImage,
	"pdf":  KindPDF,
}

// ClassifyFile maps a file name to its FileKind using the extension after the
// last dot, case-insensitively. Names without a dot are undefined.
func ClassifyFile(name string) FileKind {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		return KindUndefined
	}
	return kindByExt[strings.ToLower(ext)]
}

// ContentType returns the MIME type used when a file of this kind is served
// from a blob reference.
func ContentType(name string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "pdf":
		return "application/pdf"
	case "md", "mmd":
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// BuildTree converts a backend folder listing into FileNodes, threading
// resultDir into every node.
func BuildTree(entries []FolderEntry, resultDir string) []*FileNode {
	if len(entries) == 0 {
		return nil
	}
	nodes := make([]*FileNode, 0, len(entries))
	for _, e := range entries {
		node := &FileNode{
			Name:      e.Name,
			Path:      e.Path,
			ResultDir: resultDir,
		}
		if e.Type == string(NodeFolder) {
			node.Type = NodeFolder
			node.Children = BuildTree(e.Children, resultDir)
			if node.Children == nil {
				node.Children = []*FileNode{}
			}
		} else {
			node.Type = NodeFile
			node.Kind = ClassifyFile(e.Name)
		}
		nodes = append(nodes, node)
	}
	return nodes
}
