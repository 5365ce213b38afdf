package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/versereader/core/bible"
	"github.com/FocuswithJustin/versereader/core/corpus"
	"github.com/FocuswithJustin/versereader/core/errors"
	"github.com/FocuswithJustin/versereader/internal/logging"
	"github.com/FocuswithJustin/versereader/internal/reader"
)

// Search limits accepted by the search endpoint.
const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 200
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo contains health check information.
type HealthInfo struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	CacheEntries int    `json:"cache_entries"`
	CacheSize    string `json:"cache_size"`
	CacheLimit   string `json:"cache_limit"`
}

// BooksView is the book index of a translation with chapter pickers.
type BooksView struct {
	Version string          `json:"version"`
	Books   []bible.NavBook `json:"books"`
}

// ChapterView is a chapter with its neighbours.
type ChapterView struct {
	Version   string          `json:"version"`
	Book      bible.Book      `json:"book"`
	Chapter   int             `json:"chapter"`
	Reference string          `json:"reference,omitempty"`
	Verses    []bible.Verse   `json:"verses"`
	Previous  *bible.Position `json:"previous,omitempty"`
	Next      *bible.Position `json:"next,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	endpoints := []string{
		"GET /health",
		"GET /metrics",
		"GET /api/versions",
		"GET /api/versions/{version}/books",
		"GET /api/versions/{version}/books/{book}/chapters/{chapter}",
		"GET /api/versions/{version}/chapters/{book}/{chapter}/next",
		"GET /api/versions/{version}/chapters/{book}/{chapter}/previous",
		"GET /api/versions/{version}/ref?q=",
		"GET /api/versions/{version}/search?q=&limit=",
		"WS /ws/reader",
	}
	if s.store != nil {
		endpoints = append(endpoints,
			"GET /api/position",
			"PUT /api/position",
			"GET /api/bookmarks",
			"POST /api/bookmarks",
			"DELETE /api/bookmarks/{id}",
		)
	}

	respond(w, http.StatusOK, map[string]any{
		"name":      "Verse Reader API",
		"version":   s.cfg.BuildVersion,
		"endpoints": endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := HealthInfo{
		Status:  "healthy",
		Version: s.cfg.BuildVersion,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.cacheStats != nil {
		st := s.cacheStats()
		info.CacheEntries = st.Entries
		info.CacheSize = humanize.IBytes(uint64(max(st.TotalBytes, 0)))
		info.CacheLimit = humanize.IBytes(uint64(max(st.MaxBytes, 0)))
	}
	respond(w, http.StatusOK, info)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions := s.cfg.Versions
	if versions == nil {
		versions = []string{}
	}
	respondList(w, http.StatusOK, versions, len(versions))
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	version, err := s.versionParam(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	data, err := s.lib.GetBibleData(r.Context(), version)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	books := s.lib.GetBooksForNavigation(data)
	w.Header().Set("Cache-Control", "public, max-age=300")
	respondList(w, http.StatusOK, BooksView{Version: version, Books: books}, len(books))
}

func (s *Server) handleChapter(w http.ResponseWriter, r *http.Request) {
	version, err := s.versionParam(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	book, err := bookParam(r.PathValue("book"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	number, err := chapterParam(r.PathValue("chapter"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	data, err := s.lib.GetBibleData(r.Context(), version)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	b, ok := data.Book(book)
	if !ok {
		s.respondErr(w, r, &errors.BookNotFoundError{Version: version, Book: book})
		return
	}
	if number > b.Chapters {
		s.respondErr(w, r, &errors.ChapterNotFoundError{Version: version, Book: book, Chapter: number})
		return
	}

	etag := s.chapterETag(r, version, book, number)
	if etag != "" && r.Header.Get("If-None-Match") == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	view, err := s.chapterView(r, version, book, number, nil)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	respond(w, http.StatusOK, view)
}

// handleAdjacent serves the next or previous chapter position.
func (s *Server) handleAdjacent(forward bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version, err := s.versionParam(r)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		book, err := bookParam(r.PathValue("book"))
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		number, err := chapterParam(r.PathValue("chapter"))
		if err != nil {
			s.respondErr(w, r, err)
			return
		}

		data, err := s.lib.GetBibleData(r.Context(), version)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}

		move := s.lib.GetPreviousChapter
		direction := "previous"
		if forward {
			move = s.lib.GetNextChapter
			direction = "next"
		}
		pos, ok := move(data, book, number)
		if !ok {
			respondError(w, http.StatusNotFound, "NOT_FOUND",
				fmt.Sprintf("no %s chapter from %s %d", direction, book, number))
			return
		}
		respond(w, http.StatusOK, pos)
	}
}

func (s *Server) handleRef(w http.ResponseWriter, r *http.Request) {
	version, err := s.versionParam(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	q := r.URL.Query().Get("q")
	ref, err := bible.ParseRef(q)
	if err != nil {
		s.respondErr(w, r, errors.NewValidation("q", err.Error()))
		return
	}

	pos := ref.Position()
	view, err := s.chapterView(r, version, pos.Book, pos.Chapter, ref)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, view)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	version, err := s.versionParam(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if utf8.RuneCountInString(q) < reader.MinQueryRunes {
		s.respondErr(w, r, errors.NewValidation("q",
			fmt.Sprintf("must be at least %d characters", reader.MinQueryRunes)))
		return
	}

	limit := DefaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondErr(w, r, errors.NewValidation("limit", "must be a positive integer"))
			return
		}
		limit = min(n, MaxSearchLimit)
	}

	results := s.lib.SearchVerses(r.Context(), version, q, limit)
	respondList(w, http.StatusOK, results, len(results))
}

// chapterView loads a chapter, optionally narrowed to the verses of ref.
func (s *Server) chapterView(r *http.Request, version, book string, number int, ref *bible.Ref) (*ChapterView, error) {
	ctx := r.Context()
	data, err := s.lib.GetBibleData(ctx, version)
	if err != nil {
		return nil, err
	}
	b, ok := data.Book(book)
	if !ok {
		return nil, &errors.BookNotFoundError{Version: version, Book: book}
	}

	ch, err := s.lib.GetChapter(ctx, version, book, number)
	if err != nil {
		return nil, err
	}

	view := &ChapterView{
		Version: version,
		Book:    b,
		Chapter: ch.Number,
		Verses:  ch.Verses,
	}
	if ref != nil {
		view.Reference = ref.String()
		view.Verses = slices.DeleteFunc(slices.Clone(ch.Verses), func(v bible.Verse) bool {
			return !ref.Contains(v.Number)
		})
		if len(view.Verses) == 0 {
			return nil, &errors.ChapterNotFoundError{Version: version, Book: book, Chapter: number}
		}
	}
	if pos, ok := s.lib.GetPreviousChapter(data, book, number); ok {
		view.Previous = &pos
	}
	if pos, ok := s.lib.GetNextChapter(data, book, number); ok {
		view.Next = &pos
	}
	return view, nil
}

// chapterETag derives a validator from the corpus fingerprint. It returns
// "" when no fingerprint is available.
func (s *Server) chapterETag(r *http.Request, version, book string, number int) string {
	if s.digester == nil {
		return ""
	}
	digest, err := s.digester.Digest(r.Context(), version)
	if err != nil || len(digest) < 16 {
		return ""
	}
	return fmt.Sprintf(`"%s-%s-%s-%d"`, digest[:16], version, book, number)
}

func (s *Server) versionParam(r *http.Request) (string, error) {
	return s.versionValue(r.PathValue("version"))
}

// versionValue accepts well-formed translation codes this server serves.
func (s *Server) versionValue(version string) (string, error) {
	if err := corpus.ValidateVersion(version); err != nil {
		return "", err
	}
	if len(s.cfg.Versions) > 0 && !slices.Contains(s.cfg.Versions, version) {
		return "", errors.Wrapf(errors.ErrNotFound, "translation %q is not served", version)
	}
	return version, nil
}

func bookParam(raw string) (string, error) {
	book := strings.ToLower(strings.TrimSpace(raw))
	if book == "" || len(book) > 16 {
		return "", errors.NewValidation("book", "must be a book abbreviation")
	}
	return book, nil
}

func chapterParam(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.NewValidation("chapter", "must be a positive integer")
	}
	return n, nil
}

// statusFor maps error kinds to HTTP status codes and error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, errNoUser):
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, errors.ErrEmpty):
		return http.StatusUnprocessableEntity, "EMPTY_CHAPTER"
	case errors.Is(err, errors.ErrFetch):
		return http.StatusBadGateway, "CORPUS_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// respondErr logs err and writes it with the status its kind maps to.
// Internal errors are not echoed to the client.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logging.LoggerFromContext(r.Context()).Error("request failed",
			"path", r.URL.Path, "status", status, "error", err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	respondError(w, status, code, msg)
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondList(w http.ResponseWriter, status int, data any, total int) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			Total:     total,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
