// Package corpus turns a translation's flat XML document into addressable
// books, chapters and verses by scanning text windows instead of building
// a parse tree for the multi-megabyte document.
//
// The whole document is fetched per translation and sliced locally. That
// keeps the serving side static; LoadChapter and SearchVerses are the
// boundary where server-side slicing could be introduced later.
package corpus

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/FocuswithJustin/versereader/core/bible"
	"github.com/FocuswithJustin/versereader/core/cache"
	"github.com/FocuswithJustin/versereader/core/errors"
)

// Config configures a Parser.
type Config struct {
	// Fetcher retrieves raw documents. Required.
	Fetcher Fetcher

	// Cache holds documents, indexes, chapters and search results.
	// A cache with default limits is created when nil.
	Cache *cache.SizeCache[any]

	// Extractor pulls verses out of a book window (default RegexExtractor).
	Extractor Extractor

	// Logger receives diagnostics (default slog.Default()).
	Logger *slog.Logger

	// OnLoad, when set, reports each fetched document instead of the
	// default corpus_loaded log line.
	OnLoad func(version string, size int64, digest string)
}

// Parser loads book indexes, chapters and search results for translations.
type Parser struct {
	fetcher   Fetcher
	cache     *cache.SizeCache[any]
	extractor Extractor
	logger    *slog.Logger
	onLoad    func(version string, size int64, digest string)
	group     singleflight.Group
}

// document is a fetched corpus with its BLAKE3 fingerprint.
type document struct {
	text   string
	digest string
}

// ByteSize implements cache.ByteSizer.
func (d *document) ByteSize() int64 {
	return int64(len(d.text) + len(d.digest))
}

// New creates a Parser.
func New(cfg Config) *Parser {
	if cfg.Cache == nil {
		cfg.Cache = cache.New[any](cache.DefaultConfig())
	}
	if cfg.Extractor == nil {
		cfg.Extractor = RegexExtractor{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Parser{
		fetcher:   cfg.Fetcher,
		cache:     cfg.Cache,
		extractor: cfg.Extractor,
		logger:    cfg.Logger,
		onLoad:    cfg.OnLoad,
	}
}

// Cache returns the parser's byte-bounded cache.
func (p *Parser) Cache() *cache.SizeCache[any] {
	return p.cache
}

func cached[T any](c *cache.SizeCache[any], key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

func docKey(version string) string { return "doc:" + version }

func indexKey(version string) string { return "index:" + version }

func chapterKey(version, book string, number int) string {
	return fmt.Sprintf("chapter:%s:%s:%d", version, book, number)
}

func searchKey(version, query string, limit int) string {
	return fmt.Sprintf("search:%s:%s:%d", version, query, limit)
}

// load returns the document for version, fetching at most once per
// version across concurrent callers. The shared fetch is detached from any
// one caller's cancellation; each caller stops waiting when its own ctx ends.
func (p *Parser) load(ctx context.Context, version string) (*document, error) {
	if doc, ok := cached[*document](p.cache, docKey(version)); ok {
		return doc, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(version, func() (interface{}, error) {
		if doc, ok := cached[*document](p.cache, docKey(version)); ok {
			return doc, nil
		}
		data, err := p.fetcher.Fetch(fetchCtx, version)
		if err != nil {
			var fetchErr *errors.CorpusFetchError
			var validation *errors.ValidationError
			if errors.As(err, &fetchErr) || errors.As(err, &validation) {
				return nil, err
			}
			return nil, &errors.CorpusFetchError{Version: version, Err: err}
		}
		sum := blake3.Sum256(data)
		doc := &document{text: string(data), digest: hex.EncodeToString(sum[:])}
		p.cache.Set(docKey(version), doc)
		if p.onLoad != nil {
			p.onLoad(version, int64(len(data)), doc.digest)
		} else {
			p.logger.Info("corpus_loaded",
				"version", version,
				"bytes", len(data),
				"blake3", doc.digest)
		}
		return doc, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*document), nil
	case <-ctx.Done():
		return nil, &errors.CorpusFetchError{Version: version, Err: ctx.Err()}
	}
}

// Digest returns the hex BLAKE3 digest of the translation document.
func (p *Parser) Digest(ctx context.Context, version string) (string, error) {
	doc, err := p.load(ctx, version)
	if err != nil {
		return "", err
	}
	return doc.digest, nil
}

// LoadBooksIndex returns the ordered book index of a translation.
func (p *Parser) LoadBooksIndex(ctx context.Context, version string) (*bible.Data, error) {
	key := indexKey(version)
	if data, ok := cached[*bible.Data](p.cache, key); ok {
		return data, nil
	}

	doc, err := p.load(ctx, version)
	if err != nil {
		return nil, err
	}

	data := bible.NewData(scanBooks(doc.text))
	p.cache.Set(key, data)
	p.logger.Debug("books_indexed", "version", version, "books", len(data.Books))
	return data, nil
}

// LoadChapter returns the verses of one chapter.
func (p *Parser) LoadChapter(ctx context.Context, version, book string, number int) (*bible.Chapter, error) {
	key := chapterKey(version, book, number)
	if ch, ok := cached[*bible.Chapter](p.cache, key); ok {
		return ch, nil
	}

	if number <= 0 {
		return nil, &errors.ChapterNotFoundError{Version: version, Book: book, Chapter: number}
	}

	doc, err := p.load(ctx, version)
	if err != nil {
		return nil, err
	}

	data, err := p.LoadBooksIndex(ctx, version)
	if err != nil {
		return nil, err
	}
	info, ok := data.Book(book)
	if !ok {
		return nil, &errors.BookNotFoundError{Version: version, Book: book}
	}
	if number > info.Chapters {
		return nil, &errors.ChapterNotFoundError{Version: version, Book: book, Chapter: number}
	}

	window, ok := bookWindow(doc.text, book)
	if !ok {
		return nil, &errors.BookNotFoundError{Version: version, Book: book}
	}

	ch, err := p.extractor.ExtractChapter(window, number)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return nil, &errors.ChapterNotFoundError{Version: version, Book: book, Chapter: number}
	case errors.Is(err, errors.ErrEmpty):
		return nil, &errors.EmptyChapterError{Version: version, Book: book, Chapter: number}
	case err != nil:
		return nil, errors.Wrapf(err, "extracting %s/%s %d", version, book, number)
	}

	p.cache.Set(key, ch)
	return ch, nil
}

// SearchVerses returns up to limit verses containing query, ignoring case.
// There is no minimum query length; an empty query matches every verse.
// Search is best effort: failures are logged and yield no results.
func (p *Parser) SearchVerses(ctx context.Context, version, query string, limit int) []bible.SearchResult {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	key := searchKey(version, query, limit)
	if results, ok := cached[[]bible.SearchResult](p.cache, key); ok {
		return results
	}

	doc, err := p.load(ctx, version)
	if err != nil {
		p.logger.Warn("search_failed", "version", version, "query", query, "error", err)
		return []bible.SearchResult{}
	}

	results, err := searchDocument(doc.text, query, limit)
	if err != nil {
		p.logger.Warn("search_failed", "version", version, "query", query, "error", err)
		return []bible.SearchResult{}
	}

	p.cache.Set(key, results)
	return results
}
