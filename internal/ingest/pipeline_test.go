package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"github.com/mailmatrix/backend/internal/store"
)

// fakeProvider serves a canned message window.
type fakeProvider struct {
	ids        []string
	details    map[string]MessageDetail
	fetchErrs  map[string]error
	listErr    error
	listCalls  int
	fetchCalls int
}

func (f *fakeProvider) ListRecent(ctx context.Context, limit int64) ([]string, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if int64(len(f.ids)) > limit {
		return f.ids[:limit], nil
	}
	return f.ids, nil
}

func (f *fakeProvider) FetchDetail(ctx context.Context, id string) (MessageDetail, error) {
	f.fetchCalls++
	if err, ok := f.fetchErrs[id]; ok {
		return MessageDetail{}, err
	}
	detail, ok := f.details[id]
	if !ok {
		return MessageDetail{}, fmt.Errorf("unknown message %s", id)
	}
	return detail, nil
}

// fakeRefresher hands out a fresh token and counts invocations.
type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, cred store.Credential) (store.Credential, error) {
	f.calls++
	if f.err != nil {
		return cred, f.err
	}
	cred.AccessToken = "refreshed-access-token"
	cred.Expiry = time.Now().Add(time.Hour)
	return cred, nil
}

// recordingPublisher captures classified events.
type recordingPublisher struct {
	published []store.Message
}

func (r *recordingPublisher) PublishClassified(msg store.Message) error {
	r.published = append(r.published, msg)
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	be.Err(t, err, nil)
	t.Cleanup(func() { st.Close() })

	return st
}

func testCredential() store.Credential {
	return store.Credential{
		UserEmail:    "u@example.com",
		Provider:     store.ProviderGoogle,
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func staticFactory(p MailProvider) ProviderFactory {
	return func(ctx context.Context, cred store.Credential) (MailProvider, error) {
		return p, nil
	}
}

func TestIngestOnceEndToEnd(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// Folder names classify by substring, so the keyword is the singular
	// form that actually appears in the subject.
	_, err := st.CreateFolder(ctx, "u@example.com", "invoice")
	be.Err(t, err, nil)

	provider := &fakeProvider{
		ids: []string{"m1"},
		details: map[string]MessageDetail{
			"m1": {
				Subject: "Your March Invoice",
				From:    "billing@co.com",
				Date:    "2024-03-01",
				Body:    "see attached",
			},
		},
	}
	events := &recordingPublisher{}
	pipeline := NewPipeline(st, staticFactory(provider), nil, events, 10)

	be.Err(t, pipeline.IngestOnce(ctx, testCredential()), nil)

	msgs, err := st.ListMessages(ctx, "u@example.com", "invoice")
	be.Err(t, err, nil)
	be.Equal(t, len(msgs), 1)
	be.Equal(t, msgs[0].Subject, "Your March Invoice")
	be.Equal(t, msgs[0].From, "billing@co.com")
	be.Equal(t, msgs[0].Date, "2024-03-01")
	be.Equal(t, msgs[0].Body, "see attached")
	be.Equal(t, msgs[0].FolderName, "invoice")
	be.Equal(t, len(events.published), 1)

	// Re-running over the same provider window is a no-op.
	be.Err(t, pipeline.IngestOnce(ctx, testCredential()), nil)

	msgs, err = st.ListMessages(ctx, "u@example.com", "invoice")
	be.Err(t, err, nil)
	be.Equal(t, len(msgs), 1)
	be.Equal(t, len(events.published), 1)
}

func TestIngestOnceNoMatchDropsMessage(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.CreateFolder(ctx, "u@example.com", "invoices")
	be.Err(t, err, nil)

	provider := &fakeProvider{
		ids: []string{"m1"},
		details: map[string]MessageDetail{
			"m1": {Subject: "weekly digest", From: "news@co.com", Date: "2024-03-02", Body: "nothing relevant"},
		},
	}
	pipeline := NewPipeline(st, staticFactory(provider), nil, nil, 10)

	be.Err(t, pipeline.IngestOnce(ctx, testCredential()), nil)

	msgs, err := st.ListMessages(ctx, "u@example.com", "invoices")
	be.Err(t, err, nil)
	be.Equal(t, len(msgs), 0)
}

func TestIngestOncePerItemIsolation(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.CreateFolder(ctx, "u@example.com", "invoice")
	be.Err(t, err, nil)

	provider := &fakeProvider{
		ids: []string{"m1", "X", "m3"},
		details: map[string]MessageDetail{
			"m1": {Subject: "invoice 1", From: "a@co.com", Date: "2024-03-01", Body: ""},
			"m3": {Subject: "invoice 3", From: "b@co.com", Date: "2024-03-03", Body: ""},
		},
		fetchErrs: map[string]error{
			"X": fmt.Errorf("fetch: %w", ErrTransient),
		},
	}
	pipeline := NewPipeline(st, staticFactory(provider), nil, nil, 10)

	// The failing fetch must not abort the batch.
	be.Err(t, pipeline.IngestOnce(ctx, testCredential()), nil)

	msgs, err := st.ListMessages(ctx, "u@example.com", "invoice")
	be.Err(t, err, nil)
	be.Equal(t, len(msgs), 2)
}

func TestIngestOnceRespectsFetchLimit(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	provider := &fakeProvider{}
	for i := 0; i < 25; i++ {
		provider.ids = append(provider.ids, fmt.Sprintf("m%d", i))
	}
	pipeline := NewPipeline(st, staticFactory(provider), nil, nil, 0)

	be.Err(t, pipeline.IngestOnce(ctx, testCredential()), nil)
	be.Equal(t, provider.fetchCalls, DefaultFetchLimit)
}

func TestIngestOnceRefreshesOnceAndPersists(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	cred := testCredential()
	be.Err(t, st.SaveCredential(ctx, cred), nil)
	_, err := st.CreateFolder(ctx, "u@example.com", "invoice")
	be.Err(t, err, nil)

	stale := &fakeProvider{listErr: fmt.Errorf("list: %w", ErrAuth)}
	fresh := &fakeProvider{
		ids: []string{"m1"},
		details: map[string]MessageDetail{
			"m1": {Subject: "invoice", From: "a@co.com", Date: "2024-03-01", Body: ""},
		},
	}
	refresher := &fakeRefresher{}

	factory := func(ctx context.Context, cred store.Credential) (MailProvider, error) {
		if cred.AccessToken == "refreshed-access-token" {
			return fresh, nil
		}
		return stale, nil
	}

	pipeline := NewPipeline(st, factory, refresher, nil, 10)
	be.Err(t, pipeline.IngestOnce(ctx, cred), nil)

	be.Equal(t, refresher.calls, 1)

	// The refreshed token was persisted before the retry.
	stored, err := st.GetCredential(ctx, "u@example.com")
	be.Err(t, err, nil)
	be.Equal(t, stored.AccessToken, "refreshed-access-token")

	msgs, err := st.ListMessages(ctx, "u@example.com", "invoice")
	be.Err(t, err, nil)
	be.Equal(t, len(msgs), 1)
}

func TestIngestOnceSecondAuthFailureDoesNotLoop(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	cred := testCredential()
	be.Err(t, st.SaveCredential(ctx, cred), nil)

	provider := &fakeProvider{listErr: fmt.Errorf("list: %w", ErrAuth)}
	refresher := &fakeRefresher{}
	pipeline := NewPipeline(st, staticFactory(provider), refresher, nil, 10)

	err := pipeline.IngestOnce(ctx, cred)
	be.True(t, errors.Is(err, ErrAuth))
	be.Equal(t, refresher.calls, 1)
	be.Equal(t, provider.listCalls, 2)
}

func TestIngestOnceListingFailureAbortsPass(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	provider := &fakeProvider{listErr: fmt.Errorf("list: %w", ErrTransient)}
	pipeline := NewPipeline(st, staticFactory(provider), nil, nil, 10)

	err := pipeline.IngestOnce(ctx, testCredential())
	be.True(t, errors.Is(err, ErrTransient))
	be.Equal(t, provider.fetchCalls, 0)
}

func TestIngestOnceFolderCreatedMidBatchAppliesToLaterMessages(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// No folders yet; the first message is dropped. The provider's
	// fetch hook creates the folder before the second message is
	// classified, so the snapshot taken per message picks it up.
	provider := &hookedProvider{
		fakeProvider: fakeProvider{
			ids: []string{"m1", "m2"},
			details: map[string]MessageDetail{
				"m1": {Subject: "invoice 1", From: "a@co.com", Date: "2024-03-01"},
				"m2": {Subject: "invoice 2", From: "a@co.com", Date: "2024-03-02"},
			},
		},
		onFetch: func(id string) {
			if id == "m2" {
				st.CreateFolder(ctx, "u@example.com", "invoice")
			}
		},
	}

	pipeline := NewPipeline(st, staticFactory(provider), nil, nil, 10)
	be.Err(t, pipeline.IngestOnce(ctx, testCredential()), nil)

	msgs, err := st.ListMessages(ctx, "u@example.com", "invoice")
	be.Err(t, err, nil)
	be.Equal(t, len(msgs), 1)
	be.Equal(t, msgs[0].Subject, "invoice 2")
}

// hookedProvider runs a callback before each fetch.
type hookedProvider struct {
	fakeProvider
	onFetch func(id string)
}

func (h *hookedProvider) FetchDetail(ctx context.Context, id string) (MessageDetail, error) {
	if h.onFetch != nil {
		h.onFetch(id)
	}
	return h.fakeProvider.FetchDetail(ctx, id)
}
