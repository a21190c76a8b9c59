package ingest

import (
	"context"

	"github.com/mailmatrix/backend/internal/store"
)

// Placeholder values used when a fetched message is missing a header.
const (
	NoSubject = "(no subject)"
	NoSender  = "(no sender)"
)

// MessageDetail is the normalized view of one fetched message. Date is
// the raw Date header string; it is part of the dedup key and must not
// be reformatted. Body is empty when the message had no text/plain
// content or its transfer encoding could not be decoded.
type MessageDetail struct {
	Subject string
	From    string
	Date    string
	Body    string
}

// MailProvider is the per-credential session with the external mail API.
//
// ListRecent returns up to limit message ids, most recent first. It
// wraps ErrAuth when the credential is rejected and ErrTransient on
// connectivity failure.
//
// FetchDetail resolves one id to its headers and plain-text body,
// applying the NoSubject/NoSender placeholders for absent headers.
type MailProvider interface {
	ListRecent(ctx context.Context, limit int64) ([]string, error)
	FetchDetail(ctx context.Context, id string) (MessageDetail, error)
}

// ProviderFactory builds a MailProvider bound to one user's credential.
type ProviderFactory func(ctx context.Context, cred store.Credential) (MailProvider, error)

// TokenRefresher exchanges a stale credential for a fresh one using the
// stored refresh token.
type TokenRefresher interface {
	Refresh(ctx context.Context, cred store.Credential) (store.Credential, error)
}

// ClassifiedPublisher receives every newly persisted message. Publish
// failures are logged by the pipeline and never fail the item.
type ClassifiedPublisher interface {
	PublishClassified(msg store.Message) error
}
