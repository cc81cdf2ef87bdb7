package shared

import "strings"

// JoinURL joins a base URL and a path with exactly one slash between them.
//
// Trailing slashes on the base and leading slashes on the path are
// stripped first, so the result is the same whether or not either side
// carries its own slash.
func JoinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return base
	}
	return base + "/" + path
}
