package ingest

import "errors"

// Error categories for a user's ingestion pass. Provider adapters wrap
// these so the pipeline can branch with errors.Is without knowing which
// API produced the failure.
var (
	// ErrAuth means the credential was rejected. Recoverable by exactly
	// one silent refresh per tick; a second rejection skips the user.
	ErrAuth = errors.New("credential rejected")

	// ErrTransient means a connectivity failure. Not retried within the
	// tick; the next scheduled tick retries naturally.
	ErrTransient = errors.New("transient network error")

	// ErrPersistence means a store operation failed for one item.
	// Logged per item, the batch continues.
	ErrPersistence = errors.New("persistence failed")
)
