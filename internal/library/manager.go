// Package library is the data facade the reader and the API talk to. It
// adds a short-lived cache in front of the corpus parser and exposes the
// navigation arithmetic over a translation's index.
package library

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FocuswithJustin/versereader/core/bible"
	"github.com/FocuswithJustin/versereader/internal/cache"
)

// DefaultTTL is how long the facade keeps indexes and chapters.
const DefaultTTL = 5 * time.Minute

// Source provides parsed corpus data. *corpus.Parser implements it.
type Source interface {
	LoadBooksIndex(ctx context.Context, version string) (*bible.Data, error)
	LoadChapter(ctx context.Context, version, book string, number int) (*bible.Chapter, error)
	SearchVerses(ctx context.Context, version, query string, limit int) []bible.SearchResult
}

// Options configures a Manager.
type Options struct {
	TTL    time.Duration
	Now    func() time.Time
	Logger *slog.Logger
}

// Manager caches indexes and chapters for a bounded time and delegates
// everything else to its Source.
type Manager struct {
	source   Source
	indexes  *cache.TTLCache[string, *bible.Data]
	chapters *cache.TTLCache[string, *bible.Chapter]
	logger   *slog.Logger
}

// New creates a Manager over source.
func New(source Source, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Manager{
		source:   source,
		indexes:  cache.New[string, *bible.Data](opts.TTL),
		chapters: cache.New[string, *bible.Chapter](opts.TTL),
		logger:   opts.Logger,
	}
	if opts.Now != nil {
		m.indexes.WithClock(opts.Now)
		m.chapters.WithClock(opts.Now)
	}
	return m
}

// GetBibleData returns the book index of version.
func (m *Manager) GetBibleData(ctx context.Context, version string) (*bible.Data, error) {
	if data, ok := m.indexes.Get(version); ok {
		return data, nil
	}
	data, err := m.source.LoadBooksIndex(ctx, version)
	if err != nil {
		return nil, err
	}
	m.indexes.Set(version, data)
	return data, nil
}

// GetChapter returns one chapter of version.
func (m *Manager) GetChapter(ctx context.Context, version, book string, number int) (*bible.Chapter, error) {
	key := fmt.Sprintf("%s:%s:%d", version, book, number)
	if ch, ok := m.chapters.Get(key); ok {
		return ch, nil
	}
	ch, err := m.source.LoadChapter(ctx, version, book, number)
	if err != nil {
		return nil, err
	}
	m.chapters.Set(key, ch)
	return ch, nil
}

// SearchVerses delegates to the source without caching.
func (m *Manager) SearchVerses(ctx context.Context, version, query string, limit int) []bible.SearchResult {
	return m.source.SearchVerses(ctx, version, query, limit)
}

// GetNextChapter returns the chapter following (book, chapter).
func (m *Manager) GetNextChapter(data *bible.Data, book string, chapter int) (bible.Position, bool) {
	return bible.NextChapter(data, book, chapter)
}

// GetPreviousChapter returns the chapter preceding (book, chapter).
func (m *Manager) GetPreviousChapter(data *bible.Data, book string, chapter int) (bible.Position, bool) {
	return bible.PreviousChapter(data, book, chapter)
}

// GetBooksForNavigation lists books with explicit chapter numbers.
func (m *Manager) GetBooksForNavigation(data *bible.Data) []bible.NavBook {
	return bible.BooksForNavigation(data)
}

// Invalidate drops everything the facade holds. The parser's own cache
// is untouched.
func (m *Manager) Invalidate() {
	m.indexes.Invalidate()
	m.chapters.Invalidate()
	m.logger.Debug("library_invalidated")
}
