package routing

import "strings"

const indexSuffix = "/index.html"

// Normalize reduces p to its NormalizedPath: one leading slash, no repeated
// slashes, no trailing "/index.html", no trailing slash (except "/"),
// and configured aliases applied. Rules are reapplied until nothing changes,
// so Normalize(Normalize(p)) == Normalize(p) for every input.
func (rt *Router) Normalize(p string) string {
	for {
		next := basicNormalize(p)
		if to, ok := rt.aliases[next]; ok {
			next = to
		}
		if next == p {
			return next
		}
		p = next
	}
}

// basicNormalize is Normalize without aliases. Each rule only ever shortens the
// path, so the loop terminates.
func basicNormalize(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for {
		next := stripTrailingSlash(stripIndexHTML(collapseSlashes(p)))
		if next == p {
			return p
		}
		p = next
	}
}

func collapseSlashes(p string) string {
	if !strings.Contains(p, "//") {
		return p
	}
	var b strings.Builder
	b.Grow(len(p))
	prev := byte(0)
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' && prev == '/' {
			continue
		}
		b.WriteByte(c)
		prev = c
	}
	return b.String()
}

// stripIndexHTML turns "/index.html" into "/" and "/a/index.html" into "/a/".
func stripIndexHTML(p string) string {
	if strings.HasSuffix(p, indexSuffix) {
		return p[:len(p)-len(indexSuffix)+1]
	}
	return p
}

func stripTrailingSlash(p string) string {
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		return p[:len(p)-1]
	}
	return p
}
