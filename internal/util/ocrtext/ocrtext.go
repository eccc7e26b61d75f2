// Package ocrtext cleans OCR model markdown for display:
//   - grounding tags (<|ref|>, <|det|>) are stripped
//   - runs of blank lines are collapsed
//   - relative image paths are rewritten to backend URLs
package ocrtext

import (
	"regexp"
	"strings"
)

var (
	pairedRef = regexp.MustCompile(`<\|ref\|>.*?</ref\|>`)
	pairedDet = regexp.MustCompile(`<\|det\|>.*?</det\|>`)

	// Unpaired leftovers, removed after the pairs
	loneTags = strings.NewReplacer(
		"<|ref|>", "",
		"</ref|>", "",
		"<|det|>", "",
		"</det|>", "",
	)

	blankRuns = regexp.MustCompile(`\n{3,}`)

	markdownImage = regexp.MustCompile(`!\[(.*?)\]\((.*?)\)`)
	repeatedSlash = regexp.MustCompile(`/+`)
)

const resultsMarker = "/results/"

// StripGroundingTags removes paired <|ref|>...</ref|> and <|det|>...</det|>
// spans (single line, shortest match) and then any unpaired tag.
func StripGroundingTags(s string) string {
	s = pairedRef.ReplaceAllString(s, "")
	s = pairedDet.ReplaceAllString(s, "")
	// Removing one tag can join the halves of another
	for {
		next := loneTags.Replace(s)
		if next == s {
			return s
		}
		s = next
	}
}

// CollapseBlankLines turns every run of three or more newlines into exactly two.
func CollapseBlankLines(s string) string {
	return blankRuns.ReplaceAllString(s, "\n\n")
}

// RewriteImagePaths points every relative markdown image at the backend's
// static results mount. Paths starting with http:// or https:// are kept.
func RewriteImagePaths(s, resultDir, baseURL string) string {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return markdownImage.ReplaceAllStringFunc(s, func(match string) string {
		m := markdownImage.FindStringSubmatch(match)
		alt, rel := m[1], m[2]
		if strings.HasPrefix(rel, "http://") || strings.HasPrefix(rel, "https://") {
			return match
		}
		return "![" + alt + "](" + ResultURL(resultDir, rel, baseURL) + ")"
	})
}

// ResultURL joins resultDir and rel, squeezes repeated slashes and returns
// baseURL + "/results/" + the part after the first "results/" segment.
// Without a results segment the whole joined path is used.
func ResultURL(resultDir, rel, baseURL string) string {
	joined := repeatedSlash.ReplaceAllString(resultDir+"/"+rel, "/")
	rooted := "/" + strings.TrimPrefix(joined, "/")

	tail := strings.TrimPrefix(rooted, "/")
	if idx := strings.Index(rooted, resultsMarker); idx >= 0 {
		tail = rooted[idx+len(resultsMarker):]
	}
	return strings.TrimSuffix(baseURL, "/") + resultsMarker + tail
}

// CleanMarkdown runs the full pipeline: strip, collapse, trim, rewrite.
func CleanMarkdown(s, resultDir, baseURL string) string {
	s = StripGroundingTags(s)
	s = CollapseBlankLines(s)
	s = strings.TrimSpace(s)
	return RewriteImagePaths(s, resultDir, baseURL)
}
