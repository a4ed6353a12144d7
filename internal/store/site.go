package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/matejnovak/govsicrawl/internal/robots"
	"github.com/matejnovak/govsicrawl/internal/sitemap"
)

// GetOrCreateSite returns the registry row for domain, fetching robots.txt
// and resolving its listed sitemaps on first sight of the domain. Every
// sitemap-listed URL is admitted to the frontier as a seed of the new
// site. An already-known domain is returned as-is; its robots.txt and
// sitemaps are not fetched again.
func (s *Store) GetOrCreateSite(ctx context.Context, fetcher *robots.RobotsFetcher, sitemapFetcher sitemap.Fetcher, scheme, domain string, maxURLLen int) (*Site, error) {
	site, err := s.findSite(domain)
	if err != nil {
		return nil, err
	}
	if site != nil {
		return site, nil
	}

	result, rerr := fetcher.Fetch(ctx, scheme, domain)
	var sitemapURLs []string
	var robotsContent string
	if rerr == nil {
		sitemapURLs = result.Response.Sitemaps
		robotsContent = result.RawContent
	}
	// robots fetch failures degrade to allow-all; the site is still
	// registered so the crawl can proceed.

	var discovered []string
	for _, sm := range sitemapURLs {
		urls, err := sitemap.Resolve(sitemapFetcher, sm)
		if err != nil {
			continue
		}
		discovered = append(discovered, urls...)
	}
	sitemapContent := strings.Join(discovered, "\n")

	res, err := s.db.Exec(
		`INSERT INTO site (domain, robots_content, sitemap_content) VALUES (?, ?, ?)
		 ON CONFLICT (domain) DO NOTHING`,
		domain, robotsContent, sitemapContent,
	)
	if err != nil {
		return nil, &StoreError{Message: fmt.Sprintf("create site %s: %v", domain, err), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		return s.findSite(domain)
	}

	now := time.Now()
	for _, u := range discovered {
		if len(u) > maxURLLen {
			continue
		}
		_ = s.EnqueueSeed(id, u, now)
	}

	return &Site{ID: id, Domain: domain, RobotsContent: robotsContent, SitemapContent: sitemapContent}, nil
}

func (s *Store) findSite(domain string) (*Site, error) {
	row := s.db.QueryRow(`SELECT id, domain, robots_content, sitemap_content, last_crawled_at FROM site WHERE domain = ?`, domain)
	var site Site
	var lastCrawled sql.NullTime
	if err := row.Scan(&site.ID, &site.Domain, &site.RobotsContent, &site.SitemapContent, &lastCrawled); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	if lastCrawled.Valid {
		site.LastCrawledAt = &lastCrawled.Time
	}
	return &site, nil
}

// InsertSiteForTest registers a site row without fetching robots.txt or a
// sitemap, so frontier/lease tests don't need a live or stubbed fetcher.
func (s *Store) InsertSiteForTest(domain string) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO site (domain) VALUES (?)`, domain)
	if err != nil {
		return 0, &StoreError{Message: fmt.Sprintf("insert test site %s: %v", domain, err), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return res.LastInsertId()
}

// MarkCrawled stamps a site's last_crawled_at, used by a worker after it
// finishes processing a page belonging to that site.
func (s *Store) MarkCrawled(siteID int64, now time.Time) error {
	if _, err := s.db.Exec(`UPDATE site SET last_crawled_at = ? WHERE id = ?`, now, siteID); err != nil {
		return &StoreError{Message: fmt.Sprintf("mark crawled site %d: %v", siteID, err), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return nil
}

// ListSites returns every registered site, ordered by domain. Used by the
// export path to walk the whole crawled corpus.
func (s *Store) ListSites() ([]Site, error) {
	rows, err := s.db.Query(`SELECT id, domain, robots_content, sitemap_content, last_crawled_at FROM site ORDER BY domain`)
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		var site Site
		var lastCrawled sql.NullTime
		if err := rows.Scan(&site.ID, &site.Domain, &site.RobotsContent, &site.SitemapContent, &lastCrawled); err != nil {
			return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
		}
		if lastCrawled.Valid {
			site.LastCrawledAt = &lastCrawled.Time
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return sites, nil
}

// ListPagesBySite returns every terminal (non-FRONTIER) page belonging to
// siteID, ordered by URL.
func (s *Store) ListPagesBySite(siteID int64) ([]Page, error) {
	rows, err := s.db.Query(
		`SELECT id, site_id, url, page_type_code, http_status_code, accessed_time, added_at_time
		 FROM page WHERE site_id = ? AND page_type_code != 'FRONTIER' ORDER BY url`,
		siteID,
	)
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		var sid sql.NullInt64
		var pageTypeCode string
		var httpStatus sql.NullInt64
		var accessedTime sql.NullTime
		if err := rows.Scan(&p.ID, &sid, &p.URL, &pageTypeCode, &httpStatus, &accessedTime, &p.AddedAtTime); err != nil {
			return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
		}
		if sid.Valid {
			p.SiteID = &sid.Int64
		}
		p.PageTypeCode = PageTypeCode(pageTypeCode)
		if httpStatus.Valid {
			v := int(httpStatus.Int64)
			p.HTTPStatusCode = &v
		}
		if accessedTime.Valid {
			p.AccessedTime = &accessedTime.Time
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return pages, nil
}

// PageSize returns the number of bytes persisted for a page's content, used
// by the export path's "size" field: HTML content length for HTML pages,
// the aggregate page_data size for binary documents, 0 otherwise.
func (s *Store) PageSize(pageID int64) (int64, error) {
	var size sql.NullInt64
	if err := s.db.QueryRow(`SELECT length(html_content) FROM page WHERE id = ?`, pageID).Scan(&size); err != nil {
		return 0, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	if size.Valid && size.Int64 > 0 {
		return size.Int64, nil
	}
	var dataSize sql.NullInt64
	if err := s.db.QueryRow(`SELECT SUM(data_size) FROM page_data WHERE page_id = ?`, pageID).Scan(&dataSize); err != nil {
		return 0, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	if dataSize.Valid {
		return dataSize.Int64, nil
	}
	return 0, nil
}
