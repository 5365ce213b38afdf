// Package reader holds a reader's current position (translation, book,
// chapter, font size) and keeps the displayed chapter in step with it.
package reader

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/FocuswithJustin/versereader/core/bible"
	"github.com/FocuswithJustin/versereader/core/errors"
)

// MinQueryRunes is the shortest search query sent to the library.
const MinQueryRunes = 3

// Font size bounds accepted by SetFontSize.
const (
	MinFontSize     = 10
	MaxFontSize     = 40
	DefaultFontSize = 18
)

// Library is what the controller needs from the data facade.
// *library.Manager implements it.
type Library interface {
	GetBibleData(ctx context.Context, version string) (*bible.Data, error)
	GetChapter(ctx context.Context, version, book string, number int) (*bible.Chapter, error)
	SearchVerses(ctx context.Context, version, query string, limit int) []bible.SearchResult
	GetNextChapter(data *bible.Data, book string, chapter int) (bible.Position, bool)
	GetPreviousChapter(data *bible.Data, book string, chapter int) (bible.Position, bool)
}

// Settings is the reader's selection.
type Settings struct {
	Version  string `json:"version"`
	Book     string `json:"book"`
	Chapter  int    `json:"chapter"`
	FontSize int    `json:"font_size"`
}

// DefaultSettings opens the first chapter of Genesis.
func DefaultSettings(version string) Settings {
	return Settings{Version: version, Book: "gn", Chapter: 1, FontSize: DefaultFontSize}
}

// State is a snapshot of the controller.
type State struct {
	Settings  Settings
	Data      *bible.Data
	Chapter   *bible.Chapter
	Loading   bool
	LastError error
}

// key identifies the chapter a load was issued for.
type key struct {
	version string
	book    string
	chapter int
}

// Controller serializes state changes behind a mutex and performs loads
// without holding it. A load whose key no longer matches the settings
// when it completes is discarded.
type Controller struct {
	lib    Library
	logger *slog.Logger

	mu          sync.Mutex
	settings    Settings
	data        *bible.Data
	chapter     *bible.Chapter
	inflight    int
	lastErr     error
	subscribers map[int]func(State)
	nextSub     int
}

// New creates a controller positioned at initial. Nothing is loaded until
// Load or one of the setters is called.
func New(lib Library, initial Settings, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if initial.FontSize == 0 {
		initial.FontSize = DefaultFontSize
	}
	if initial.Chapter <= 0 {
		initial.Chapter = 1
	}
	return &Controller{
		lib:         lib,
		logger:      logger,
		settings:    initial,
		subscribers: make(map[int]func(State)),
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Settings returns the current selection.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Subscribe registers fn to receive a snapshot after every change.
// The returned function removes the subscription.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// Load resolves the index and chapter for the current settings.
func (c *Controller) Load(ctx context.Context) error {
	if err := c.loadIndex(ctx); err != nil {
		return err
	}
	return c.loadChapter(ctx)
}

// SetVersion switches translation, reloading the index and then the chapter.
// When the current book is absent from the new index the reader moves to
// the first book.
func (c *Controller) SetVersion(ctx context.Context, version string) error {
	if strings.TrimSpace(version) == "" {
		return errors.NewValidation("version", "must not be empty")
	}
	c.update(func(s *Settings) { s.Version = version })
	return c.Load(ctx)
}

// SetBook opens chapter 1 of book.
func (c *Controller) SetBook(ctx context.Context, book string) error {
	return c.Select(ctx, book, 1)
}

// SetChapter opens another chapter of the current book.
func (c *Controller) SetChapter(ctx context.Context, chapter int) error {
	if chapter <= 0 {
		return errors.NewValidation("chapter", "must be positive")
	}
	c.update(func(s *Settings) { s.Chapter = chapter })
	return c.loadChapter(ctx)
}

// Select opens (book, chapter) in one step.
func (c *Controller) Select(ctx context.Context, book string, chapter int) error {
	if strings.TrimSpace(book) == "" {
		return errors.NewValidation("book", "must not be empty")
	}
	if chapter <= 0 {
		return errors.NewValidation("chapter", "must be positive")
	}
	c.update(func(s *Settings) {
		s.Book = book
		s.Chapter = chapter
	})
	return c.loadChapter(ctx)
}

// SetFontSize changes the display size without any I/O.
func (c *Controller) SetFontSize(size int) error {
	if size < MinFontSize || size > MaxFontSize {
		return errors.NewValidation("font_size", "out of range")
	}
	c.update(func(s *Settings) { s.FontSize = size })
	return nil
}

// NextChapter advances one chapter, crossing book boundaries. It is a
// no-op after the last chapter of the corpus.
func (c *Controller) NextChapter(ctx context.Context) error {
	return c.step(ctx, c.lib.GetNextChapter)
}

// PreviousChapter goes back one chapter. It is a no-op at the first
// chapter of the corpus.
func (c *Controller) PreviousChapter(ctx context.Context) error {
	return c.step(ctx, c.lib.GetPreviousChapter)
}

// Search runs a text search in the current translation. Queries shorter
// than MinQueryRunes after trimming return no results without touching
// the library.
func (c *Controller) Search(ctx context.Context, query string, limit int) []bible.SearchResult {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryRunes {
		return []bible.SearchResult{}
	}
	version := c.Settings().Version
	return c.lib.SearchVerses(ctx, version, query, limit)
}

func (c *Controller) step(ctx context.Context, move func(*bible.Data, string, int) (bible.Position, bool)) error {
	c.mu.Lock()
	data := c.data
	c.mu.Unlock()
	if data == nil {
		if err := c.loadIndex(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		data = c.data
		c.mu.Unlock()
	}

	var moved bool
	c.update(func(s *Settings) {
		pos, ok := move(data, s.Book, s.Chapter)
		if !ok {
			return
		}
		s.Book, s.Chapter = pos.Book, pos.Chapter
		moved = true
	})
	if !moved {
		return nil
	}
	return c.loadChapter(ctx)
}

// update applies fn to the settings and notifies subscribers.
func (c *Controller) update(fn func(*Settings)) {
	c.mu.Lock()
	before := c.settings
	fn(&c.settings)
	changed := before != c.settings
	snap := c.stateLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	if changed {
		notify(subs, snap)
	}
}

func (c *Controller) loadIndex(ctx context.Context) error {
	version := c.Settings().Version

	data, err := c.lib.GetBibleData(ctx, version)

	c.mu.Lock()
	if c.settings.Version != version {
		c.mu.Unlock()
		c.logger.Debug("stale_index_discarded", "version", version)
		return nil
	}
	if err != nil {
		c.lastErr = err
	} else {
		c.data = data
		if _, ok := data.Book(c.settings.Book); !ok && len(data.Books) > 0 {
			c.settings.Book = data.Books[0].Abbrev
			c.settings.Chapter = 1
		}
	}
	snap := c.stateLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, snap)
	if err != nil {
		c.logger.Warn("index_load_failed", "version", version, "error", err)
	}
	return err
}

func (c *Controller) loadChapter(ctx context.Context) error {
	c.mu.Lock()
	k := c.keyLocked()
	c.inflight++
	snap := c.stateLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()
	notify(subs, snap)

	ch, err := c.lib.GetChapter(ctx, k.version, k.book, k.chapter)

	c.mu.Lock()
	c.inflight--
	current := c.keyLocked() == k
	if current {
		if err != nil {
			c.lastErr = err
		} else {
			c.chapter = ch
			c.lastErr = nil
		}
	}
	snap = c.stateLocked()
	subs = c.subscribersLocked()
	c.mu.Unlock()
	notify(subs, snap)

	if !current {
		c.logger.Debug("stale_chapter_discarded",
			"version", k.version, "book", k.book, "chapter", k.chapter)
		return nil
	}
	if err != nil {
		c.logger.Warn("chapter_load_failed",
			"version", k.version, "book", k.book, "chapter", k.chapter, "error", err)
	}
	return err
}

func (c *Controller) keyLocked() key {
	return key{version: c.settings.Version, book: c.settings.Book, chapter: c.settings.Chapter}
}

func (c *Controller) stateLocked() State {
	return State{
		Settings:  c.settings,
		Data:      c.data,
		Chapter:   c.chapter,
		Loading:   c.inflight > 0,
		LastError: c.lastErr,
	}
}

func (c *Controller) subscribersLocked() []func(State) {
	if len(c.subscribers) == 0 {
		return nil
	}
	subs := make([]func(State), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(State), s State) {
	for _, fn := range subs {
		fn(s)
	}
}
