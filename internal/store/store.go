// Package store persists reading positions and bookmarks per user in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/versereader/core/errors"
	"github.com/FocuswithJustin/versereader/core/sqlite"
	"github.com/FocuswithJustin/versereader/internal/reader"
)

// MaxNoteRunes bounds a bookmark note.
const MaxNoteRunes = 500

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	user_id    TEXT PRIMARY KEY,
	version    TEXT NOT NULL,
	book       TEXT NOT NULL,
	chapter    INTEGER NOT NULL,
	font_size  INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS bookmarks (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	version    TEXT NOT NULL,
	book       TEXT NOT NULL,
	chapter    INTEGER NOT NULL,
	verse      INTEGER NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS bookmarks_user ON bookmarks (user_id, created_at);
`

// Bookmark marks a verse (or a whole chapter when Verse is 0).
type Bookmark struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Version   string    `json:"version"`
	Book      string    `json:"book"`
	Chapter   int       `json:"chapter"`
	Verse     int       `json:"verse,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a SQLite-backed position and bookmark store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func validUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.NewValidation("user_id", "must not be empty")
	}
	return nil
}

// SavePosition stores the reader settings for userID, replacing any
// previous position.
func (s *Store) SavePosition(ctx context.Context, userID string, pos reader.Settings) error {
	if err := validUser(userID); err != nil {
		return err
	}
	if pos.Version == "" || pos.Book == "" || pos.Chapter <= 0 {
		return errors.NewValidation("position", "version, book and a positive chapter are required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (user_id, version, book, chapter, font_size, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			version = excluded.version,
			book = excluded.book,
			chapter = excluded.chapter,
			font_size = excluded.font_size,
			updated_at = excluded.updated_at`,
		userID, pos.Version, pos.Book, pos.Chapter, pos.FontSize, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: saving position: %w", err)
	}
	return nil
}

// LoadPosition returns the saved settings for userID, or an error
// matching errors.ErrNotFound when none were saved.
func (s *Store) LoadPosition(ctx context.Context, userID string) (reader.Settings, error) {
	if err := validUser(userID); err != nil {
		return reader.Settings{}, err
	}

	var pos reader.Settings
	err := s.db.QueryRowContext(ctx,
		`SELECT version, book, chapter, font_size FROM positions WHERE user_id = ?`, userID).
		Scan(&pos.Version, &pos.Book, &pos.Chapter, &pos.FontSize)
	if errors.Is(err, sql.ErrNoRows) {
		return reader.Settings{}, fmt.Errorf("position for %s: %w", userID, errors.ErrNotFound)
	}
	if err != nil {
		return reader.Settings{}, fmt.Errorf("store: loading position: %w", err)
	}
	return pos, nil
}

// AddBookmark records a bookmark and returns it with its generated ID.
func (s *Store) AddBookmark(ctx context.Context, userID, version, book string, chapter, verse int, note string) (Bookmark, error) {
	if err := validUser(userID); err != nil {
		return Bookmark{}, err
	}
	switch {
	case version == "" || book == "":
		return Bookmark{}, errors.NewValidation("bookmark", "version and book are required")
	case chapter <= 0:
		return Bookmark{}, errors.NewValidation("chapter", "must be positive")
	case verse < 0:
		return Bookmark{}, errors.NewValidation("verse", "must not be negative")
	case utf8.RuneCountInString(note) > MaxNoteRunes:
		return Bookmark{}, errors.NewValidation("note", fmt.Sprintf("exceeds %d characters", MaxNoteRunes))
	}

	b := Bookmark{
		ID:        uuid.NewString(),
		UserID:    userID,
		Version:   version,
		Book:      book,
		Chapter:   chapter,
		Verse:     verse,
		Note:      note,
		CreatedAt: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (id, user_id, version, book, chapter, verse, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Version, b.Book, b.Chapter, b.Verse, b.Note, b.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Bookmark{}, fmt.Errorf("store: adding bookmark: %w", err)
	}
	return b, nil
}

// ListBookmarks returns userID's bookmarks, oldest first.
func (s *Store) ListBookmarks(ctx context.Context, userID string) ([]Bookmark, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, book, chapter, verse, note, created_at
		FROM bookmarks WHERE user_id = ?
		ORDER BY created_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: listing bookmarks: %w", err)
	}
	defer rows.Close()

	bookmarks := []Bookmark{}
	for rows.Next() {
		b := Bookmark{UserID: userID}
		var created string
		if err := rows.Scan(&b.ID, &b.Version, &b.Book, &b.Chapter, &b.Verse, &b.Note, &created); err != nil {
			return nil, fmt.Errorf("store: scanning bookmark: %w", err)
		}
		if b.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("store: bookmark %s: bad timestamp: %w", b.ID, err)
		}
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, rows.Err()
}

// DeleteBookmark removes one of userID's bookmarks. Deleting another
// user's bookmark behaves as if it did not exist.
func (s *Store) DeleteBookmark(ctx context.Context, userID, id string) error {
	if err := validUser(userID); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return errors.NewValidation("id", "must be a UUID")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("store: deleting bookmark: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: deleting bookmark: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("bookmark %s: %w", id, errors.ErrNotFound)
	}
	return nil
}
