package store

import (
	"sort"
	"strings"
)

var (
	keyEscaper   = strings.NewReplacer("%", "%25", "/", "%2F", ".", "%2E")
	keyUnescaper = strings.NewReplacer("%2F", "/", "%2E", ".", "%25", "%")
)

// Key escapes a single path segment so it can hold '/' and '.'
func Key(segment string) string {
	return keyEscaper.Replace(segment)
}

// Unkey reverses Key
func Unkey(segment string) string {
	return keyUnescaper.Replace(segment)
}

// Join builds a path from raw segments, escaping each
func Join(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		if s == "" {
			continue
		}
		escaped = append(escaped, Key(s))
	}
	return strings.Join(escaped, "/")
}

// Clean normalizes a slash-delimited path: no leading, trailing or repeated slashes
func Clean(path string) string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// IsUnder reports whether path is prefix or a descendant of it. The root "" contains everything.
func IsUnder(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Related reports whether a change at changed affects a subscriber of path
func Related(changed, path string) bool {
	return IsUnder(changed, path) || IsUnder(path, changed)
}

// Ancestors returns the proper ancestors of path, nearest last
func Ancestors(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], "/"))
	}
	return out
}

// childKeys extracts the distinct unescaped child segments of path from a set of leaf paths
func childKeys(path string, leaves []string) []string {
	seen := make(map[string]bool)
	for _, leaf := range leaves {
		rest := leaf
		if path != "" {
			if !strings.HasPrefix(leaf, path+"/") {
				continue
			}
			rest = leaf[len(path)+1:]
		}
		if rest == "" {
			continue
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		seen[Unkey(rest)] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
