package workinglog

import (
	"path/filepath"
	"strings"
)

// NormalizePath converts a platform path into the repo-relative,
// forward-slash, lexical form every stored file path must use. Callers
// normalize once, at the boundary where a platform-specific path enters
// the system (e.g. reading a checkpoint payload from an editor
// integration).
func NormalizePath(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	for strings.Contains(p, "/./") {
		p = strings.Replace(p, "/./", "/", 1)
	}
	return strings.TrimPrefix(p, "/")
}
