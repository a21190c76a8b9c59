package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nalgeon/be"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	be.Err(t, err, nil)
	t.Cleanup(func() { st.Close() })

	return st
}

func TestCredentialUpsert(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	cred := Credential{
		UserEmail:    "u@example.com",
		AccessToken:  "first",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
	be.Err(t, st.SaveCredential(ctx, cred), nil)

	cred.AccessToken = "second"
	be.Err(t, st.SaveCredential(ctx, cred), nil)

	stored, err := st.GetCredential(ctx, "u@example.com")
	be.Err(t, err, nil)
	be.Equal(t, stored.AccessToken, "second")
	be.Equal(t, stored.Provider, ProviderGoogle)

	creds, err := st.ListCredentials(ctx)
	be.Err(t, err, nil)
	be.Equal(t, len(creds), 1)
}

func TestGetCredentialNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetCredential(context.Background(), "missing@example.com")
	be.True(t, errors.Is(err, ErrNotFound))
}

func TestCreateFolderRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.CreateFolder(ctx, "u@example.com", "invoices")
	be.Err(t, err, nil)

	_, err = st.CreateFolder(ctx, "u@example.com", "invoices")
	be.True(t, errors.Is(err, ErrFolderExists))

	// Same name for another user is fine.
	_, err = st.CreateFolder(ctx, "other@example.com", "invoices")
	be.Err(t, err, nil)
}

func TestListFoldersCreationOrder(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	for _, name := range []string{"work", "workshop", "travel"} {
		_, err := st.CreateFolder(ctx, "u@example.com", name)
		be.Err(t, err, nil)
	}

	names, err := st.FolderNames(ctx, "u@example.com")
	be.Err(t, err, nil)
	be.Equal(t, names, []string{"work", "workshop", "travel"})
}

func TestDeleteFolderKeepsMessages(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	folder, err := st.CreateFolder(ctx, "u@example.com", "invoices")
	be.Err(t, err, nil)

	_, err = st.InsertMessage(ctx, Message{
		UserEmail:  "u@example.com",
		FolderName: "invoices",
		Subject:    "invoice",
		From:       "a@co.com",
		Date:       "2024-03-01",
	})
	be.Err(t, err, nil)

	be.Err(t, st.DeleteFolder(ctx, folder.ID), nil)
	be.True(t, errors.Is(st.DeleteFolder(ctx, folder.ID), ErrNotFound))

	// The classified message stays behind, now orphaned.
	msgs, err := st.ListMessages(ctx, "u@example.com", "invoices")
	be.Err(t, err, nil)
	be.Equal(t, len(msgs), 1)
}

func TestInsertMessageDedup(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	msg := Message{
		UserEmail:  "u@example.com",
		FolderName: "invoices",
		Subject:    "Your March Invoice",
		From:       "billing@co.com",
		Date:       "2024-03-01",
		Body:       "see attached",
	}

	inserted, err := st.InsertMessage(ctx, msg)
	be.Err(t, err, nil)
	be.True(t, inserted)

	// Same dedup key, different body: the unique constraint wins.
	msg.ID = ""
	msg.Body = "different body"
	inserted, err = st.InsertMessage(ctx, msg)
	be.Err(t, err, nil)
	be.True(t, !inserted)

	exists, err := st.MessageExists(ctx, "u@example.com", "Your March Invoice", "billing@co.com", "2024-03-01")
	be.Err(t, err, nil)
	be.True(t, exists)

	exists, err = st.MessageExists(ctx, "u@example.com", "Your March Invoice", "billing@co.com", "2024-04-01")
	be.Err(t, err, nil)
	be.True(t, !exists)
}

func TestDeleteMessages(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	for _, date := range []string{"2024-03-01", "2024-03-02", "2024-03-03"} {
		inserted, err := st.InsertMessage(ctx, Message{
			UserEmail:  "u@example.com",
			FolderName: "invoices",
			Subject:    "invoice",
			From:       "a@co.com",
			Date:       date,
		})
		be.Err(t, err, nil)
		be.True(t, inserted)
	}

	msgs, err := st.ListMessages(ctx, "u@example.com", "invoices")
	be.Err(t, err, nil)
	be.Equal(t, len(msgs), 3)

	be.Err(t, st.DeleteMessage(ctx, msgs[0].ID), nil)
	be.True(t, errors.Is(st.DeleteMessage(ctx, msgs[0].ID), ErrNotFound))

	deleted, err := st.DeleteMessages(ctx, []string{msgs[1].ID, msgs[2].ID, "nope"})
	be.Err(t, err, nil)
	be.Equal(t, deleted, int64(2))

	remaining, err := st.ListMessages(ctx, "u@example.com", "invoices")
	be.Err(t, err, nil)
	be.Equal(t, len(remaining), 0)
}
