package worker

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/matejnovak/govsicrawl/pkg/urlutil"
)

// scriptURLPattern matches absolute http(s) URLs embedded in inline
// <script> text, e.g. a fetch("https://example.gov.si/api/page") call
// that never appears as a DOM attribute goquery can select.
var scriptURLPattern = regexp.MustCompile(`https?://[a-zA-Z0-9.-]+(?:/[^\s"'<>\\]*)?`)

// discoverLinks extracts every <a href>, <img src>, and inline-script URL
// from html, resolves each against pageURL, and returns only the ones
// admitted by the domain-suffix filter: HasDomainSuffix(cfg.AllowedDomainSuffix())
// when one is configured, otherwise the same-host restriction the page
// itself was fetched from.
func discoverLinks(html string, pageURL url.URL, allowedDomainSuffix string) ([]url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var raw []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			raw = append(raw, href)
		}
	})
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			raw = append(raw, src)
		}
	})
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		raw = append(raw, scriptURLPattern.FindAllString(sel.Text(), -1)...)
	})

	var resolved []url.URL
	for _, candidate := range raw {
		if candidate == "" || strings.HasPrefix(candidate, "#") {
			continue
		}
		ref, err := urlutil.ParseReference(candidate)
		if err != nil {
			continue
		}
		abs := urlutil.Resolve(ref, pageURL)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		resolved = append(resolved, urlutil.Canonicalize(abs))
	}

	filtered := make([]url.URL, 0, len(resolved))
	seen := make(map[string]struct{}, len(resolved))
	for _, u := range resolved {
		if allowedDomainSuffix != "" {
			if !urlutil.HasDomainSuffix(u.Hostname(), allowedDomainSuffix) {
				continue
			}
		} else if !strings.EqualFold(u.Hostname(), pageURL.Hostname()) {
			continue
		}
		if _, dup := seen[u.String()]; dup {
			continue
		}
		seen[u.String()] = struct{}{}
		filtered = append(filtered, u)
	}
	return filtered, nil
}
