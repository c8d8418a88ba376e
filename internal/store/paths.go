package store

import "strings"

// CleanPath normalizes a device path into a cache key: backslashes become
// slashes, runs of slashes collapse, and leading/trailing slashes are
// stripped. The root is "". CleanPath(CleanPath(p)) == CleanPath(p).
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	var b strings.Builder
	b.Grow(len(p))
	prevSlash := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return strings.Trim(b.String(), "/")
}

// ParentPath returns the normalized parent of p. The parent of a top-level
// entry, and of the root itself, is the root "".
func ParentPath(p string) string {
	p = CleanPath(p)
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

// BaseName returns the last segment of p.
func BaseName(p string) string {
	p = CleanPath(p)
	return p[strings.LastIndexByte(p, '/')+1:]
}

// Join combines device path segments into an absolute device path.
func Join(parts ...string) string {
	return "/" + CleanPath(strings.Join(parts, "/"))
}
