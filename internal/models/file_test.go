package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestClassifyFile(t *testing.T) {
	tests := []struct {
		name string
		want FileKind
	}{
		{"page.md", KindMarkdown},
		{"page.MMD", KindMarkdown},
		{"notes.txt", KindMarkdown},
		{"fig.png", KindImage},
		{"fig.JPG", KindImage},
		{"fig.jpeg", KindImage},
		{"anim.gif", KindImage},
		{"doc.pdf", KindPDF},
		{"archive.tar.gz", KindUndefined},
		{"data.json", KindUndefined},
		{"README", KindUndefined},
		{"md", KindUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyFile(tt.name); got != tt.want {
				t.Errorf("ClassifyFile(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestBuildTree(t *testing.T) {
	raw := `{
		"status": "success",
		"path": "/data/results/t1",
		"children": [
			{"name": "images", "type": "folder", "path": "/data/results/t1/images", "children": [
				{"name": "0.jpg", "type": "file", "path": "/data/results/t1/images/0.jpg"}
			]},
			{"name": "empty", "type": "folder", "path": "/data/results/t1/empty", "children": []},
			{"name": "page.md", "type": "file", "path": "/data/results/t1/page.md"},
			{"name": "layout.pdf", "type": "file", "path": "/data/results/t1/layout.pdf"}
		]
	}`

	var resp FolderResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := resp.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	nodes := BuildTree(resp.Children, "/data/results/t1")
	if len(nodes) != 4 {
		t.Fatalf("expected 4 top-level nodes, got %d", len(nodes))
	}

	images := nodes[0]
	if !images.IsFolder() || images.Kind != KindUndefined {
		t.Errorf("images should be a folder without a kind, got %+v", images)
	}
	if len(images.Children) != 1 || images.Children[0].Kind != KindImage {
		t.Errorf("expected one image child, got %+v", images.Children)
	}
	if nodes[1].Children == nil {
		t.Error("empty folder should have a non-nil children slice")
	}
	if nodes[2].Kind != KindMarkdown || nodes[2].Children != nil {
		t.Errorf("page.md should be a markdown leaf, got %+v", nodes[2])
	}
	if nodes[3].Kind != KindPDF {
		t.Errorf("layout.pdf should be pdf, got %q", nodes[3].Kind)
	}

	for _, n := range []*FileNode{nodes[0], nodes[0].Children[0], nodes[2]} {
		if n.ResultDir != "/data/results/t1" {
			t.Errorf("%s: resultDir not threaded, got %q", n.Name, n.ResultDir)
		}
		if n.Content != "" {
			t.Errorf("%s: content should be empty before selection", n.Name)
		}
	}
}

func TestBuildTreeEmpty(t *testing.T) {
	if nodes := BuildTree(nil, "/r"); nodes != nil {
		t.Errorf("expected nil, got %v", nodes)
	}
}

func TestCloneDoesNotShareChildren(t *testing.T) {
	orig := &FileNode{Name: "a", Type: NodeFolder, Children: []*FileNode{{Name: "b", Type: NodeFile}}}
	c := orig.Clone()
	c.Children[0] = &FileNode{Name: "z"}
	c.Content = "x"
	if orig.Children[0].Name != "b" || orig.Content != "" {
		t.Error("clone mutated the original")
	}
}

func TestResponseValidate(t *testing.T) {
	content := "hello"
	tests := []struct {
		name    string
		v       interface{ Validate() error }
		wantErr bool
	}{
		{"upload ok", &UploadResponse{Status: "success", FilePath: "/u/a.pdf"}, false},
		{"upload error status", &UploadResponse{Status: "error", Message: "bad"}, true},
		{"upload no path", &UploadResponse{Status: "success"}, true},
		{"start ok", &StartResponse{Status: "running", TaskID: "t1"}, false},
		{"start success is not running", &StartResponse{Status: "success", TaskID: "t1"}, true},
		{"start no task", &StartResponse{Status: "running"}, true},
		{"progress ok", &ProgressResponse{Status: "success", State: "running"}, false},
		{"progress error", &ProgressResponse{Status: "error"}, true},
		{"result ok", &ResultResponse{Status: "success", State: "finished", ResultDir: "/r"}, false},
		{"result running", &ResultResponse{Status: "running"}, true},
		{"result no dir", &ResultResponse{Status: "success", State: "finished"}, true},
		{"folder ok", &FolderResponse{Status: "success", Children: []FolderEntry{{Name: "a", Type: "file"}}}, false},
		{"folder bad type", &FolderResponse{Status: "success", Children: []FolderEntry{{Name: "a", Type: "link"}}}, true},
		{"folder nested bad", &FolderResponse{Status: "success", Children: []FolderEntry{
			{Name: "d", Type: "folder", Children: []FolderEntry{{Name: "", Type: "file"}}},
		}}, true},
		{"folder error", &FolderResponse{Status: "error"}, true},
		{"content ok", &FileContentResponse{Content: &content}, false},
		{"content missing", &FileContentResponse{Status: "error"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnexpectedResponse) {
				t.Errorf("expected ErrUnexpectedResponse, got %v", err)
			}
		})
	}
}

func TestProgressFinished(t *testing.T) {
	tests := []struct {
		resp ProgressResponse
		want bool
	}{
		{ProgressResponse{Status: "success", State: "finished"}, true},
		{ProgressResponse{Status: "success", State: "running"}, false},
		{ProgressResponse{Status: "error", State: "finished"}, false},
	}
	for _, tt := range tests {
		if got := tt.resp.Finished(); got != tt.want {
			t.Errorf("%+v Finished() = %v, want %v", tt.resp, got, tt.want)
		}
	}
}
