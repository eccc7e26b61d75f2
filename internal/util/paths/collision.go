// Package paths provides utilities for naming downloaded result files.
package paths

import (
	"fmt"
	"path"
	"strings"
)

// FileForDownload is one result file headed for an export destination.
type FileForDownload struct {
	Source  string // backend path of the file
	Name    string // file name as listed by the backend
	SaveKey string // slash-separated key relative to the destination
	Tag     string // disambiguator used when SaveKey collides
	Size    int64
}

// ResolveCollisions makes every SaveKey unique. When several files share a
// key, each gets its Tag inserted before the extension:
//
//	0.jpg (tag "page1_images") -> 0_page1_images.jpg
//	0.jpg (tag "page2_images") -> 0_page2_images.jpg
//
// Files with an empty Tag fall back to their 1-based position in the list.
// A renamed key that is still taken gets a counter appended (_2, _3, ...).
// Groups are processed in list order so the result is deterministic.
// The slice is modified in place; the count is the number of files renamed.
func ResolveCollisions(files []FileForDownload) ([]FileForDownload, int) {
	if len(files) == 0 {
		return files, 0
	}

	byKey := make(map[string][]int)
	var order []string
	for i, f := range files {
		if _, seen := byKey[f.SaveKey]; !seen {
			order = append(order, f.SaveKey)
		}
		byKey[f.SaveKey] = append(byKey[f.SaveKey], i)
	}

	taken := make(map[string]bool, len(files))
	for key, indices := range byKey {
		if len(indices) == 1 {
			taken[key] = true
		}
	}

	renamed := 0
	for _, key := range order {
		indices := byKey[key]
		if len(indices) <= 1 {
			continue
		}

		renamed += len(indices)
		ext := path.Ext(key)
		base := strings.TrimSuffix(key, ext)
		for _, idx := range indices {
			f := &files[idx]
			tag := f.Tag
			if tag == "" {
				tag = fmt.Sprintf("%d", idx+1)
			}
			candidate := fmt.Sprintf("%s_%s%s", base, tag, ext)
			for n := 2; taken[candidate]; n++ {
				candidate = fmt.Sprintf("%s_%s_%d%s", base, tag, n, ext)
			}
			taken[candidate] = true
			f.SaveKey = candidate
		}
	}

	return files, renamed
}

// TagFromRelative flattens the directory part of a result-relative path into
// a tag: "page1/images/0.jpg" -> "page1_images". Top-level files get "".
func TagFromRelative(rel string) string {
	dir := path.Dir(strings.Trim(rel, "/"))
	if dir == "." || dir == "/" {
		return ""
	}
	return strings.ReplaceAll(dir, "/", "_")
}
