// Package pathutil holds path checks shared by the content loaders and the site handler.
package pathutil

import "strings"

// HasDotSegments reports whether any "/"-separated segment is "." or "..".
func HasDotSegments(p string) bool {
	for seg := range strings.SplitSeq(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// HasDotDotSegment reports whether any segment is "..". A lone "." is
// tolerated since archive tools emit "./name" entries.
func HasDotDotSegment(p string) bool {
	for seg := range strings.SplitSeq(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// IsSafeURLPath rejects NUL, backslashes and dot segments in a URL path
// before it is mapped onto a filesystem.
func IsSafeURLPath(p string) bool {
	return !strings.ContainsAny(p, "\x00\\") && !HasDotSegments(p)
}
