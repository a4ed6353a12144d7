package store

import (
	"fmt"

	"github.com/matejnovak/govsicrawl/internal/metadata"
	"github.com/matejnovak/govsicrawl/pkg/failure"
)

type StoreErrorCause string

const (
	ErrCauseConnectionFailure StoreErrorCause = "database connection failure"
	ErrCauseQueryFailure      StoreErrorCause = "query failure"
	ErrCauseLeaseConflict     StoreErrorCause = "lease conflict"
	ErrCauseNotLeased         StoreErrorCause = "page not leased by this worker"
	ErrCauseSchemaFailure     StoreErrorCause = "schema bootstrap failure"
)

type StoreError struct {
	Message   string
	Retryable bool
	Cause     StoreErrorCause
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %s: %s", e.Cause, e.Message)
}

func (e *StoreError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *StoreError) IsRetryable() bool {
	return e.Retryable
}

// mapStoreErrorToMetadataCause maps store-local error semantics to the
// canonical metadata.ErrorCause table. Observational only.
func mapStoreErrorToMetadataCause(err *StoreError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseConnectionFailure, ErrCauseQueryFailure, ErrCauseSchemaFailure:
		return metadata.CauseStorageFailure
	case ErrCauseLeaseConflict, ErrCauseNotLeased:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
