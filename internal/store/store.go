package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrFolderExists is returned when a (user, folder name) pair already exists.
	ErrFolderExists = errors.New("folder already exists")
)

// Store persists credentials, folders and classified messages in sqlite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at dbPath and applies the schema.
// An empty path opens an in-memory database.
func Open(dbPath string) (*Store, error) {
	trimmed := strings.TrimSpace(dbPath)
	if trimmed == "" {
		trimmed = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	dsn := trimmed
	if dsn != ":memory:" {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// table-lock errors under concurrent user passes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCredential upserts the token record for a user. Every successful
// authorization and every silent refresh lands here.
func (s *Store) SaveCredential(ctx context.Context, cred Credential) error {
	if cred.Provider == "" {
		cred.Provider = ProviderGoogle
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (user_email, provider, access_token, refresh_token, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_email) DO UPDATE SET
			provider = excluded.provider,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`, cred.UserEmail, cred.Provider, cred.AccessToken, cred.RefreshToken, cred.Expiry.Unix(), time.Now().Unix())

	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	return nil
}

// GetCredential loads the token record for a user.
func (s *Store) GetCredential(ctx context.Context, userEmail string) (*Credential, error) {
	var (
		cred      Credential
		expiry    int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_email, provider, access_token, refresh_token, expiry, updated_at
		FROM credentials WHERE user_email = ?
	`, userEmail).Scan(&cred.UserEmail, &cred.Provider, &cred.AccessToken, &cred.RefreshToken, &expiry, &updatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	cred.Expiry = time.Unix(expiry, 0)
	cred.UpdatedAt = time.Unix(updatedAt, 0)
	return &cred, nil
}

// ListCredentials returns every stored credential. The scheduler reads
// this at the top of each tick.
func (s *Store) ListCredentials(ctx context.Context) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_email, provider, access_token, refresh_token, expiry, updated_at
		FROM credentials ORDER BY user_email
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var (
			cred      Credential
			expiry    int64
			updatedAt int64
		)
		if err := rows.Scan(&cred.UserEmail, &cred.Provider, &cred.AccessToken, &cred.RefreshToken, &expiry, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		cred.Expiry = time.Unix(expiry, 0)
		cred.UpdatedAt = time.Unix(updatedAt, 0)
		creds = append(creds, cred)
	}

	return creds, rows.Err()
}

// CreateFolder inserts a new folder for a user. Duplicate (user, name)
// pairs are rejected with ErrFolderExists.
func (s *Store) CreateFolder(ctx context.Context, userEmail, folderName string) (*Folder, error) {
	folder := &Folder{
		ID:         uuid.NewString(),
		UserEmail:  userEmail,
		FolderName: folderName,
		CreatedAt:  time.Now(),
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO folders (id, user_email, folder_name, created_at)
		VALUES (?, ?, ?, ?)
	`, folder.ID, folder.UserEmail, folder.FolderName, folder.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	if n == 0 {
		return nil, ErrFolderExists
	}

	return folder, nil
}

// ListFolders returns a user's folders in creation order. Classification
// walks this order, so it must be stable across calls.
func (s *Store) ListFolders(ctx context.Context, userEmail string) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_email, folder_name, created_at
		FROM folders WHERE user_email = ? ORDER BY rowid
	`, userEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var (
			folder    Folder
			createdAt int64
		)
		if err := rows.Scan(&folder.ID, &folder.UserEmail, &folder.FolderName, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folder.CreatedAt = time.Unix(createdAt, 0)
		folders = append(folders, folder)
	}

	return folders, rows.Err()
}

// FolderNames returns a user's folder names in creation order.
func (s *Store) FolderNames(ctx context.Context, userEmail string) ([]string, error) {
	folders, err := s.ListFolders(ctx, userEmail)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(folders))
	for _, f := range folders {
		names = append(names, f.FolderName)
	}
	return names, nil
}

// DeleteFolder removes a folder by id. Messages already classified into
// the folder are kept; their folder_name simply no longer resolves.
func (s *Store) DeleteFolder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// InsertMessage stores a classified message unless the dedup key
// (user_email, subject, sender, date) is already present. Returns true
// when a new row was written. The UNIQUE constraint keeps at most one
// row per key even under a concurrent pass for the same user.
func (s *Store) InsertMessage(ctx context.Context, msg Message) (bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages
		(id, user_email, folder_name, subject, sender, date, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.UserEmail, msg.FolderName, msg.Subject, msg.From, msg.Date, msg.Body, msg.CreatedAt.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to insert message: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert message: %w", err)
	}

	return n > 0, nil
}

// MessageExists reports whether a message with the dedup key is stored.
func (s *Store) MessageExists(ctx context.Context, userEmail, subject, from, date string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE user_email = ? AND subject = ? AND sender = ? AND date = ?
		)
	`, userEmail, subject, from, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check message: %w", err)
	}

	return exists == 1, nil
}

// ListMessages returns all messages in one of a user's folders, newest first.
func (s *Store) ListMessages(ctx context.Context, userEmail, folderName string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_email, folder_name, subject, sender, date, body, created_at
		FROM messages WHERE user_email = ? AND folder_name = ?
		ORDER BY created_at DESC, rowid DESC
	`, userEmail, folderName)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			msg       Message
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.UserEmail, &msg.FolderName, &msg.Subject, &msg.From, &msg.Date, &msg.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.CreatedAt = time.Unix(createdAt, 0)
		msgs = append(msgs, msg)
	}

	return msgs, rows.Err()
}

// DeleteMessage removes one message by id.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteMessages removes a batch of messages by id and returns how many
// rows were deleted.
func (s *Store) DeleteMessages(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}

	return n, nil
}
