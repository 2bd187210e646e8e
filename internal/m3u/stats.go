// Package m3u computes descriptive metrics from playlist documents.
//
// We deliberately treat a playlist as line-structured text, not a
// validated media manifest: counting is tolerant of malformed input and
// never fails.
package m3u

import (
	"regexp"
	"strings"
)

// groupTitleRe extracts the value of a group-title="..." attribute from
// a line. The attribute name matches case-insensitively; the value is
// kept as written.
var groupTitleRe = regexp.MustCompile(`(?i)group-title="([^"]*)"`)

const entryMarker = "#EXTINF:"

// Stats describes a playlist document.
type Stats struct {
	Entries   int `json:"channels"` // lines starting with an #EXTINF: marker
	Groups    int `json:"groups"`   // distinct group-title values
	Lines     int `json:"lines"`
	SizeBytes int `json:"size"` // UTF-8 encoded size
}

// Compute scans the document once and returns its stats. O(n) in the
// document length.
func Compute(document string) Stats {
	lines := strings.Split(document, "\n")

	entries := 0
	groups := make(map[string]struct{})

	for _, line := range lines {
		if len(line) >= len(entryMarker) && strings.EqualFold(line[:len(entryMarker)], entryMarker) {
			entries++
		}
		if m := groupTitleRe.FindStringSubmatch(line); m != nil {
			groups[m[1]] = struct{}{}
		}
	}

	return Stats{
		Entries:   entries,
		Groups:    len(groups),
		Lines:     len(lines),
		SizeBytes: len(document),
	}
}
