package sitemap

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"
)

/*
Responsibilities
- Parse a sitemap XML document into its listed URLs
- Recognize sitemap-index documents and recurse into their members, one level deep

Knows nothing about the frontier or domain filtering; callers decide
what to do with the returned URLs.
*/

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Fetcher fetches a URL and returns its body. Satisfied by *http.Client
// in production and by test doubles in package tests.
type Fetcher interface {
	Get(url string) (*http.Response, error)
}

// httpFetcher adapts *http.Client to Fetcher.
type httpFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return httpFetcher{client: client}
}

func (f httpFetcher) Get(url string) (*http.Response, error) {
	return f.client.Get(url)
}

// Resolve fetches sitemapURL and returns every page URL it lists. If the
// document is a sitemap-index, each listed sitemap is fetched and
// expanded in turn, recursing one level deep only — a nested
// sitemap-index inside a sitemap-index is not followed further.
func Resolve(fetcher Fetcher, sitemapURL string) ([]string, error) {
	return resolve(fetcher, sitemapURL, 0)
}

func resolve(fetcher Fetcher, sitemapURL string, depth int) ([]string, error) {
	body, err := fetchBody(fetcher, sitemapURL)
	if err != nil {
		return nil, err
	}

	if locs, ok := parseURLSet(body); ok {
		return locs, nil
	}

	if index, ok := parseSitemapIndex(body); ok {
		if depth >= 1 {
			return nil, nil
		}
		var urls []string
		for _, member := range index.Sitemaps {
			nested, err := resolve(fetcher, member.Loc, depth+1)
			if err != nil {
				continue
			}
			urls = append(urls, nested...)
		}
		return urls, nil
	}

	return nil, fmt.Errorf("sitemap: unrecognized document at %s", sitemapURL)
}

func fetchBody(fetcher Fetcher, url string) ([]byte, error) {
	resp, err := fetcher.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap: unexpected status %d for %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

func parseURLSet(body []byte) ([]string, bool) {
	var parsed urlSet
	if err := xml.Unmarshal(body, &parsed); err != nil || parsed.XMLName.Local != "urlset" {
		return nil, false
	}
	urls := make([]string, 0, len(parsed.URLs))
	for _, u := range parsed.URLs {
		if u.Loc != "" {
			urls = append(urls, u.Loc)
		}
	}
	return urls, true
}

func parseSitemapIndex(body []byte) (sitemapIndex, bool) {
	var parsed sitemapIndex
	if err := xml.Unmarshal(body, &parsed); err != nil || parsed.XMLName.Local != "sitemapindex" {
		return sitemapIndex{}, false
	}
	return parsed, true
}
