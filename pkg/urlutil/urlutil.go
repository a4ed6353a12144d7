package urlutil

import (
	"net/url"
	"strings"
)

// Canonicalize applies a deterministic normalization to a URL, producing a canonical form.
// It maps equivalent URL spellings to a single canonical representation.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased
//   - Path is cleaned (trailing slashes removed, except for root "/")
//   - Fragments are removed
//   - Query parameters are removed
//   - Default ports are omitted (e.g., :80 for http, :443 for https)
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Canonicalize(Canonicalize(url)) == Canonicalize(url)
//   - Context-free: does not depend on crawl history
func Canonicalize(sourceUrl url.URL) url.URL {
	// Create a copy to avoid mutating the original
	canonical := sourceUrl

	// Lowercase scheme and host
	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	// Remove default port if present
	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	// Clean the path: remove trailing slashes (except root)
	if len(canonical.Path) > 1 {
		canonical.Path = stripTrailingSlash(canonical.Path)
	}

	// Remove fragment (anchor)
	canonical.Fragment = ""
	canonical.RawFragment = ""

	// Remove query parameters
	canonical.RawQuery = ""
	canonical.ForceQuery = false

	return canonical
}

// ParseReference parses a raw URL reference found on a page, such as a
// hyperlink's href, an image's src, or a string pulled out of inline
// script text. A bare "www."-prefixed string carries no scheme, so
// url.Parse treats it as a relative path and ResolveReference later
// merges it against the current page's directory instead of producing
// the absolute host it names; prefixing "http://" first avoids that.
func ParseReference(raw string) (url.URL, error) {
	if strings.HasPrefix(raw, "www.") {
		raw = "http://" + raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return url.URL{}, err
	}
	return *ref, nil
}

// Resolve turns a possibly-relative reference found on a page into an
// absolute URL, using proper RFC 3986 reference resolution against the
// page it was discovered on. This replaces the domain-only substitution
// that a naive port would otherwise carry forward: a relative reference
// like "../img/logo.png" found on https://example.gov.si/a/b/page.html
// resolves against that full page path, not just the host.
func Resolve(ref url.URL, base url.URL) url.URL {
	resolved := base.ResolveReference(&ref)
	return *resolved
}

// FilterByHost keeps only the URLs whose host equals host (case-insensitive).
func FilterByHost(host string, urls []url.URL) []url.URL {
	host = lowerASCII(host)
	filtered := make([]url.URL, 0, len(urls))
	for _, u := range urls {
		if lowerASCII(u.Hostname()) == host {
			filtered = append(filtered, u)
		}
	}
	return filtered
}

// HasDomainSuffix reports whether hostname is within the given registrable
// suffix, e.g. "www.mop.gov.si" has suffix ".gov.si", and so does the bare
// apex "gov.si" itself.
func HasDomainSuffix(hostname string, suffix string) bool {
	hostname = lowerASCII(hostname)
	suffix = lowerASCII(strings.TrimPrefix(suffix, "."))

	if hostname == suffix {
		return true
	}
	return strings.HasSuffix(hostname, "."+suffix)
}

// lowerASCII converts ASCII characters to lowercase without allocating.
// This is faster than strings.ToLower for ASCII-only strings.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// stripTrailingSlash removes trailing slashes from a path.
func stripTrailingSlash(path string) string {
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}
