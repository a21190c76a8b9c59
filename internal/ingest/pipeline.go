package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mailmatrix/backend/internal/store"
)

// DefaultFetchLimit caps how many recent message ids one pass requests.
const DefaultFetchLimit = 10

// Pipeline runs one user's ingestion pass: list recent messages,
// classify each against the user's folders, dedup, persist.
type Pipeline struct {
	Store     *store.Store
	Factory   ProviderFactory
	Refresher TokenRefresher
	Events    ClassifiedPublisher
	Limit     int64
}

// NewPipeline wires an ingestion pipeline. events may be nil when no
// broker is configured. limit <= 0 falls back to DefaultFetchLimit.
func NewPipeline(st *store.Store, factory ProviderFactory, refresher TokenRefresher, events ClassifiedPublisher, limit int64) *Pipeline {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	return &Pipeline{
		Store:     st,
		Factory:   factory,
		Refresher: refresher,
		Events:    events,
		Limit:     limit,
	}
}

// IngestOnce runs one pass for one credential. Listing failures abort
// the pass and are returned; per-message failures are logged and the
// batch continues. A rejected credential is refreshed and retried
// exactly once, with the refreshed token persisted before the retry so
// later ticks reuse it.
func (p *Pipeline) IngestOnce(ctx context.Context, cred store.Credential) error {
	provider, err := p.Factory(ctx, cred)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	ids, err := provider.ListRecent(ctx, p.Limit)
	if errors.Is(err, ErrAuth) && p.Refresher != nil {
		refreshed, refreshErr := p.Refresher.Refresh(ctx, cred)
		if refreshErr != nil {
			return fmt.Errorf("refresh credential: %w", refreshErr)
		}
		if saveErr := p.Store.SaveCredential(ctx, refreshed); saveErr != nil {
			return fmt.Errorf("persist refreshed credential: %w", saveErr)
		}
		cred = refreshed

		provider, err = p.Factory(ctx, cred)
		if err != nil {
			return fmt.Errorf("create provider: %w", err)
		}
		ids, err = provider.ListRecent(ctx, p.Limit)
	}
	if err != nil {
		return fmt.Errorf("list recent messages: %w", err)
	}

	for _, id := range ids {
		if err := p.processMessage(ctx, provider, cred.UserEmail, id); err != nil {
			// Per-item isolation: one bad message never aborts the batch.
			log.Printf("ingest: message %s for %s: %v", id, cred.UserEmail, err)
		}
	}

	return nil
}

func (p *Pipeline) processMessage(ctx context.Context, provider MailProvider, userEmail, id string) error {
	detail, err := provider.FetchDetail(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch detail: %w", err)
	}

	// Snapshot the folder set per message; a folder created mid-batch
	// applies to later messages in the same pass but not earlier ones.
	folders, err := p.Store.FolderNames(ctx, userEmail)
	if err != nil {
		return fmt.Errorf("%w: list folders: %v", ErrPersistence, err)
	}

	folderName, ok := Classify(detail.Subject, detail.Body, folders)
	if !ok {
		return nil
	}

	exists, err := p.Store.MessageExists(ctx, userEmail, detail.Subject, detail.From, detail.Date)
	if err != nil {
		return fmt.Errorf("%w: check duplicate: %v", ErrPersistence, err)
	}
	if exists {
		return nil
	}

	msg := store.Message{
		UserEmail:  userEmail,
		FolderName: folderName,
		Subject:    detail.Subject,
		From:       detail.From,
		Date:       detail.Date,
		Body:       detail.Body,
	}

	inserted, err := p.Store.InsertMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: insert message: %v", ErrPersistence, err)
	}
	if !inserted {
		// Lost a race with a concurrent pass; the unique key already won.
		return nil
	}

	log.Printf("ingest: new mail for %s sorted into %q: %s", userEmail, folderName, detail.Subject)

	if p.Events != nil {
		if err := p.Events.PublishClassified(msg); err != nil {
			log.Printf("ingest: publish classified event for %s: %v", userEmail, err)
		}
	}

	return nil
}
