package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetPageForTest loads a page row by ID so tests can assert on terminal
// state without reaching into the database directly.
func (s *Store) GetPageForTest(id int64) (*Page, error) {
	row := s.db.QueryRow(
		`SELECT id, site_id, url, page_type_code, html_content, hash_content, http_status_code, accessed_time, added_at_time
		 FROM page WHERE id = ?`, id,
	)
	var p Page
	var siteID sql.NullInt64
	var pageTypeCode string
	var htmlContent, hashContent sql.NullString
	var httpStatus sql.NullInt64
	var accessedTime sql.NullTime
	if err := row.Scan(&p.ID, &siteID, &p.URL, &pageTypeCode, &htmlContent, &hashContent, &httpStatus, &accessedTime, &p.AddedAtTime); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	if siteID.Valid {
		p.SiteID = &siteID.Int64
	}
	p.PageTypeCode = PageTypeCode(pageTypeCode)
	if htmlContent.Valid {
		p.HTMLContent = &htmlContent.String
	}
	if hashContent.Valid {
		p.HashContent = &hashContent.String
	}
	if httpStatus.Valid {
		v := int(httpStatus.Int64)
		p.HTTPStatusCode = &v
	}
	if accessedTime.Valid {
		p.AccessedTime = &accessedTime.Time
	}
	return &p, nil
}

// EnqueueSeed inserts a seed URL as a FRONTIER row for siteID. Idempotent:
// a URL already present (seed or discovered) is left untouched.
func (s *Store) EnqueueSeed(siteID int64, url string, now time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO page (site_id, url, page_type_code, added_at_time)
		 VALUES (?, ?, 'FRONTIER', ?)
		 ON CONFLICT (url) DO NOTHING`,
		siteID, url, now,
	)
	if err != nil {
		return &StoreError{Message: fmt.Sprintf("enqueue seed %s: %v", url, err), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return nil
}

// EnqueueDiscovered records a link from fromPage to url, inserting url as
// a new FRONTIER row if it isn't already known. Rejected when url exceeds
// maxURLLen or the corpus has already reached maxPagesTableRows.
func (s *Store) EnqueueDiscovered(siteID, fromPage int64, url string, now time.Time, maxURLLen, maxPagesTableRows int) error {
	if len(url) > maxURLLen {
		return &StoreError{Message: fmt.Sprintf("discovered url exceeds max length %d", maxURLLen), Retryable: false, Cause: ErrCauseQueryFailure}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseConnectionFailure}
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM page`).Scan(&count); err != nil {
		return &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	if count >= maxPagesTableRows {
		return &StoreError{Message: fmt.Sprintf("corpus cap reached: %d rows", maxPagesTableRows), Retryable: false, Cause: ErrCauseQueryFailure}
	}

	if _, err := tx.Exec(
		`INSERT INTO page (site_id, url, page_type_code, added_at_time)
		 VALUES (?, ?, 'FRONTIER', ?)
		 ON CONFLICT (url) DO NOTHING`,
		siteID, url, now,
	); err != nil {
		return &StoreError{Message: fmt.Sprintf("enqueue discovered %s: %v", url, err), Retryable: true, Cause: ErrCauseQueryFailure}
	}

	var toPage int64
	if err := tx.QueryRow(`SELECT id FROM page WHERE url = ?`, url).Scan(&toPage); err != nil {
		return &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}

	if _, err := tx.Exec(
		`INSERT INTO link (from_page, to_page) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		fromPage, toPage,
	); err != nil {
		return &StoreError{Message: fmt.Sprintf("link %d->%d: %v", fromPage, toPage, err), Retryable: true, Cause: ErrCauseQueryFailure}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return nil
}

// Lease atomically claims the oldest unleased FRONTIER row and returns it.
// Uses BEGIN IMMEDIATE so SQLite takes the write lock up front instead of
// discovering a conflict at commit time — the pure-Go equivalent of
// SELECT ... FOR UPDATE SKIP LOCKED on a row-locking database.
func (s *Store) Lease(now time.Time) (*Page, error) {
	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseConnectionFailure}
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseLeaseConflict}
	}
	rollback := func() { conn.ExecContext(ctx, `ROLLBACK`) }

	row := conn.QueryRowContext(ctx,
		`SELECT id, site_id, url, added_at_time FROM page
		 WHERE page_type_code = 'FRONTIER' AND leased_at IS NULL
		 ORDER BY added_at_time ASC LIMIT 1`,
	)

	var p Page
	var siteID sql.NullInt64
	if err := row.Scan(&p.ID, &siteID, &p.URL, &p.AddedAtTime); err != nil {
		rollback()
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	if siteID.Valid {
		p.SiteID = &siteID.Int64
	}
	p.PageTypeCode = PageTypeFrontier

	if _, err := conn.ExecContext(ctx, `UPDATE page SET leased_at = ? WHERE id = ?`, now, p.ID); err != nil {
		rollback()
		return nil, &StoreError{Message: fmt.Sprintf("lease page %d: %v", p.ID, err), Retryable: true, Cause: ErrCauseLeaseConflict}
	}

	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		rollback()
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return &p, nil
}

// Complete transitions a leased page to its terminal state and releases
// its lease. Returns ErrCauseNotLeased if the page is not currently
// leased — this must never happen under correct worker behavior.
func (s *Store) Complete(pageID int64, fields TerminalFields) error {
	res, err := s.db.Exec(
		`UPDATE page SET
			site_id = COALESCE(NULLIF(?, 0), site_id),
			page_type_code = ?, html_content = ?, hash_content = ?,
			http_status_code = ?, accessed_time = ?, leased_at = NULL
		 WHERE id = ? AND leased_at IS NOT NULL`,
		fields.SiteID, string(fields.PageTypeCode), fields.HTMLContent, fields.HashContent,
		fields.HTTPStatusCode, fields.AccessedTime, pageID,
	)
	if err != nil {
		return &StoreError{Message: fmt.Sprintf("complete page %d: %v", pageID, err), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	if n == 0 {
		return &StoreError{Message: fmt.Sprintf("page %d is not leased", pageID), Retryable: false, Cause: ErrCauseNotLeased}
	}
	return nil
}
