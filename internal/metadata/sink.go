package metadata

import "time"

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

// FetchRecorder records the outcome of a single network fetch.
type FetchRecorder interface {
	RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int)
}

// ErrorRecorder records an observation-only error. See ErrorCause for the
// rules governing what may and may not be derived from these records.
type ErrorRecorder interface {
	RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute)
}

// ArtifactRecorder records that a durable artifact (page body, image,
// export file) was written.
type ArtifactRecorder interface {
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
}

// CrawlFinalizer records the terminal summary of a completed crawl.
// The caller MUST compute totals independently; this is a one-shot sink,
// not a read path.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration)
}

// MetadataSink is the full observability surface every pipeline component
// depends on. It is satisfied by ZapRecorder in production and by small
// test doubles in package tests.
type MetadataSink interface {
	FetchRecorder
	ErrorRecorder
	ArtifactRecorder
	CrawlFinalizer
}
