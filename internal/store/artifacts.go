package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/matejnovak/govsicrawl/internal/shingle"
)

// InsertPageData persists a non-HTML document payload (PDF, DOC, DOCX,
// PPT, PPTX) for pageID, subject to an aggregate cap across the whole
// page_data table: once the stored bytes reach maxBinaryTableSize, further
// inserts are rejected rather than silently evicting older payloads.
func (s *Store) InsertPageData(pageID int64, dataType DataTypeCode, data []byte, maxBinaryTableSize int64) error {
	var total int64
	if err := s.db.QueryRow(`SELECT COALESCE(SUM(data_size), 0) FROM page_data`).Scan(&total); err != nil {
		return &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	if total+int64(len(data)) > maxBinaryTableSize {
		return &StoreError{Message: fmt.Sprintf("binary table cap reached: %d bytes", maxBinaryTableSize), Retryable: false, Cause: ErrCauseQueryFailure}
	}

	if _, err := s.db.Exec(
		`INSERT INTO page_data (page_id, data_type_code, data, data_size) VALUES (?, ?, ?, ?)
		 ON CONFLICT (page_id, data_type_code) DO UPDATE SET data = excluded.data, data_size = excluded.data_size`,
		pageID, string(dataType), data, len(data),
	); err != nil {
		return &StoreError{Message: fmt.Sprintf("insert page_data for page %d: %v", pageID, err), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return nil
}

// InsertImageData persists an image payload found while crawling pageID.
func (s *Store) InsertImageData(pageID int64, filename, contentType string, data []byte, accessedTime time.Time) error {
	if _, err := s.db.Exec(
		`INSERT INTO image_data (page_id, filename, content_type, data, data_size, accessed_time) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (page_id, filename) DO UPDATE SET data = excluded.data, data_size = excluded.data_size, accessed_time = excluded.accessed_time`,
		pageID, filename, contentType, data, len(data), accessedTime,
	); err != nil {
		return &StoreError{Message: fmt.Sprintf("insert image_data for page %d: %v", pageID, err), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return nil
}

// InsertLink records a discovered edge between two already-known pages.
// EnqueueDiscovered handles the common case of a brand-new target page;
// this is for linking two pages that are both already in the corpus.
func (s *Store) InsertLink(fromPage, toPage int64) error {
	if _, err := s.db.Exec(`INSERT INTO link (from_page, to_page) VALUES (?, ?) ON CONFLICT DO NOTHING`, fromPage, toPage); err != nil {
		return &StoreError{Message: fmt.Sprintf("link %d->%d: %v", fromPage, toPage, err), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return nil
}

// encodeShingleSet serializes a shingle.Set as a flat list of big-endian
// uint32 hashes. Order is irrelevant; Similarity only cares about set
// membership.
func encodeShingleSet(set shingle.Set) []byte {
	buf := make([]byte, 0, 4*len(set))
	tmp := make([]byte, 4)
	for h := range set {
		binary.BigEndian.PutUint32(tmp, h)
		buf = append(buf, tmp...)
	}
	return buf
}

func decodeShingleSet(data []byte) shingle.Set {
	set := make(shingle.Set, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		set[binary.BigEndian.Uint32(data[i:i+4])] = struct{}{}
	}
	return set
}

// InsertShingleSignature stores pageID's shingle set for future
// near-duplicate comparisons.
func (s *Store) InsertShingleSignature(pageID int64, set shingle.Set) error {
	encoded := encodeShingleSet(set)
	if _, err := s.db.Exec(
		`INSERT INTO content_hash (page_id, hash, hash_length) VALUES (?, ?, ?)
		 ON CONFLICT (page_id) DO UPDATE SET hash = excluded.hash, hash_length = excluded.hash_length`,
		pageID, encoded, set.Len(),
	); err != nil {
		return &StoreError{Message: fmt.Sprintf("insert shingle signature for page %d: %v", pageID, err), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return nil
}

// FindExactDuplicate returns the ID of a stored page whose hash_content
// matches exactHash, or 0 if none does. This is the cheap, exact first
// step of duplicate detection: two pages with byte-identical content hash
// to the same value regardless of what their shingle sets look like, which
// matters for pages whose shingle set is empty (pure markup, no text
// nodes) and would otherwise never trip the similarity check below.
func (s *Store) FindExactDuplicate(exactHash string) (int64, error) {
	var pageID int64
	err := s.db.QueryRow(`SELECT id FROM page WHERE hash_content = ? LIMIT 1`, exactHash).Scan(&pageID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return pageID, nil
}

// FindNearDuplicate scans every stored shingle signature and returns the
// page ID of the first one whose similarity to set exceeds
// maxSimilarity, or 0 if none does. Linear in corpus size; acceptable for
// a single-TLD crawl's scale, and the only approach available without a
// dedicated similarity index.
func (s *Store) FindNearDuplicate(set shingle.Set, maxSimilarity float64) (int64, error) {
	rows, err := s.db.Query(`SELECT page_id, hash, hash_length FROM content_hash`)
	if err != nil {
		return 0, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	defer rows.Close()

	for rows.Next() {
		var pageID int64
		var hash []byte
		var hashLength int
		if err := rows.Scan(&pageID, &hash, &hashLength); err != nil {
			return 0, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
		}
		stored := decodeShingleSet(hash)
		if set.Similarity(stored, hashLength) > maxSimilarity {
			return pageID, nil
		}
	}
	if err := rows.Err(); err != nil {
		return 0, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return 0, nil
}
