package reader

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/FocuswithJustin/versereader/core/bible"
	"github.com/FocuswithJustin/versereader/core/errors"
)

// fakeLibrary serves synthetic chapters. Loads for keys listed in gates
// block until the gate channel is closed.
type fakeLibrary struct {
	mu          sync.Mutex
	indexes     map[string]*bible.Data
	gates       map[string]chan struct{}
	started     chan string
	failChapter map[string]error
	searches    []string
	chapterHits int
}

func newFakeLibrary() *fakeLibrary {
	books := []bible.Book{
		{Name: "Genesis", Abbrev: "gn", Chapters: 50},
		{Name: "Exodus", Abbrev: "ex", Chapters: 40},
	}
	return &fakeLibrary{
		indexes: map[string]*bible.Data{
			"acf": bible.NewData(books),
			"nvi": bible.NewData(books[1:]),
		},
		gates:       map[string]chan struct{}{},
		started:     make(chan string, 16),
		failChapter: map[string]error{},
	}
}

func chapterID(version, book string, n int) string {
	return fmt.Sprintf("%s/%s/%d", version, book, n)
}

func (f *fakeLibrary) GetBibleData(_ context.Context, version string) (*bible.Data, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.indexes[version]
	if !ok {
		return nil, &errors.CorpusFetchError{Version: version, Status: 404}
	}
	return data, nil
}

func (f *fakeLibrary) GetChapter(_ context.Context, version, book string, n int) (*bible.Chapter, error) {
	id := chapterID(version, book, n)
	f.mu.Lock()
	gate := f.gates[id]
	err := f.failChapter[id]
	f.chapterHits++
	f.mu.Unlock()

	select {
	case f.started <- id:
	default:
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &bible.Chapter{Number: n, Verses: []bible.Verse{{Number: 1, Text: id}}}, nil
}

func (f *fakeLibrary) SearchVerses(_ context.Context, _ string, query string, _ int) []bible.SearchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	return []bible.SearchResult{{BookAbbrev: "gn", Chapter: 1, Verse: 1, Text: query}}
}

func (f *fakeLibrary) GetNextChapter(data *bible.Data, book string, n int) (bible.Position, bool) {
	return bible.NextChapter(data, book, n)
}

func (f *fakeLibrary) GetPreviousChapter(data *bible.Data, book string, n int) (bible.Position, bool) {
	return bible.PreviousChapter(data, book, n)
}

func shown(t *testing.T, c *Controller) string {
	t.Helper()
	s := c.State()
	if s.Chapter == nil {
		return ""
	}
	return s.Chapter.Verses[0].Text
}

func TestController_Load(t *testing.T) {
	lib := newFakeLibrary()
	c := New(lib, DefaultSettings("acf"), nil)

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	s := c.State()
	if s.Data == nil || len(s.Data.Books) != 2 {
		t.Fatalf("Data = %+v", s.Data)
	}
	if got := shown(t, c); got != "acf/gn/1" {
		t.Errorf("chapter = %q, want acf/gn/1", got)
	}
	if s.Loading {
		t.Error("Loading should be false after Load returns")
	}
}

func TestController_Navigation(t *testing.T) {
	lib := newFakeLibrary()
	ctx := context.Background()
	c := New(lib, Settings{Version: "acf", Book: "gn", Chapter: 50}, nil)
	if err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}

	if err := c.NextChapter(ctx); err != nil {
		t.Fatal(err)
	}
	if got := shown(t, c); got != "acf/ex/1" {
		t.Errorf("after next = %q, want acf/ex/1", got)
	}

	if err := c.PreviousChapter(ctx); err != nil {
		t.Fatal(err)
	}
	if got := shown(t, c); got != "acf/gn/50" {
		t.Errorf("after previous = %q, want acf/gn/50", got)
	}

	if err := c.Select(ctx, "gn", 1); err != nil {
		t.Fatal(err)
	}
	hits := lib.chapterHits
	if err := c.PreviousChapter(ctx); err != nil {
		t.Fatal(err)
	}
	if got := c.Settings(); got.Book != "gn" || got.Chapter != 1 {
		t.Errorf("previous at start moved to %+v", got)
	}
	if lib.chapterHits != hits {
		t.Error("no-op navigation should not load a chapter")
	}

	if err := c.Select(ctx, "ex", 40); err != nil {
		t.Fatal(err)
	}
	if err := c.NextChapter(ctx); err != nil {
		t.Fatal(err)
	}
	if got := c.Settings(); got.Book != "ex" || got.Chapter != 40 {
		t.Errorf("next at end moved to %+v", got)
	}
}

func TestController_NextWithoutIndexLoadsIt(t *testing.T) {
	c := New(newFakeLibrary(), DefaultSettings("acf"), nil)
	if err := c.NextChapter(context.Background()); err != nil {
		t.Fatalf("NextChapter() error: %v", err)
	}
	if got := shown(t, c); got != "acf/gn/2" {
		t.Errorf("chapter = %q, want acf/gn/2", got)
	}
}

func TestController_SetVersionReloads(t *testing.T) {
	lib := newFakeLibrary()
	ctx := context.Background()
	c := New(lib, DefaultSettings("acf"), nil)
	if err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}

	if err := c.SetVersion(ctx, "nvi"); err != nil {
		t.Fatalf("SetVersion() error: %v", err)
	}
	s := c.State()
	if s.Data != lib.indexes["nvi"] {
		t.Error("index should be reloaded for the new version")
	}
	// gn is absent from the nvi index.
	if got := shown(t, c); got != "nvi/ex/1" {
		t.Errorf("chapter = %q, want nvi/ex/1", got)
	}
}

func TestController_SetBookAndChapter(t *testing.T) {
	lib := newFakeLibrary()
	ctx := context.Background()
	c := New(lib, DefaultSettings("acf"), nil)

	if err := c.SetBook(ctx, "ex"); err != nil {
		t.Fatal(err)
	}
	if got := shown(t, c); got != "acf/ex/1" {
		t.Errorf("after SetBook = %q", got)
	}
	if err := c.SetChapter(ctx, 12); err != nil {
		t.Fatal(err)
	}
	if got := shown(t, c); got != "acf/ex/12" {
		t.Errorf("after SetChapter = %q", got)
	}

	for name, err := range map[string]error{
		"chapter zero":  c.SetChapter(ctx, 0),
		"empty book":    c.Select(ctx, "", 1),
		"empty version": c.SetVersion(ctx, " "),
	} {
		if !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestController_SetFontSize(t *testing.T) {
	lib := newFakeLibrary()
	c := New(lib, DefaultSettings("acf"), nil)

	if err := c.SetFontSize(24); err != nil {
		t.Fatal(err)
	}
	if got := c.Settings().FontSize; got != 24 {
		t.Errorf("FontSize = %d, want 24", got)
	}
	if lib.chapterHits != 0 {
		t.Error("SetFontSize should not load anything")
	}
	if err := c.SetFontSize(MaxFontSize + 1); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestController_ErrorKeepsLastChapter(t *testing.T) {
	lib := newFakeLibrary()
	ctx := context.Background()
	c := New(lib, DefaultSettings("acf"), nil)
	if err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}

	lib.failChapter[chapterID("acf", "gn", 2)] = &errors.EmptyChapterError{Version: "acf", Book: "gn", Chapter: 2}
	err := c.SetChapter(ctx, 2)
	if !errors.Is(err, errors.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	s := c.State()
	if !errors.Is(s.LastError, errors.ErrEmpty) {
		t.Errorf("LastError = %v", s.LastError)
	}
	if got := shown(t, c); got != "acf/gn/1" {
		t.Errorf("chapter = %q, want previous chapter retained", got)
	}

	if err := c.SetChapter(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if c.State().LastError != nil {
		t.Error("LastError should clear after a successful load")
	}
}

func TestController_DiscardsStaleResult(t *testing.T) {
	lib := newFakeLibrary()
	ctx := context.Background()
	c := New(lib, DefaultSettings("acf"), nil)

	gate := make(chan struct{})
	lib.gates[chapterID("acf", "gn", 5)] = gate

	done := make(chan error, 1)
	go func() { done <- c.SetChapter(ctx, 5) }()

	select {
	case id := <-lib.started:
		if id != chapterID("acf", "gn", 5) {
			t.Fatalf("started %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("slow load never started")
	}
	if !c.State().Loading {
		t.Error("Loading should be true while a fetch is in flight")
	}

	if err := c.SetChapter(ctx, 6); err != nil {
		t.Fatal(err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("stale load returned %v", err)
	}

	if got := shown(t, c); got != "acf/gn/6" {
		t.Errorf("chapter = %q, stale result overwrote the current one", got)
	}
	if c.State().Loading {
		t.Error("Loading should be false once every fetch finished")
	}
}

func TestController_Search(t *testing.T) {
	lib := newFakeLibrary()
	c := New(lib, DefaultSettings("acf"), nil)
	ctx := context.Background()

	tests := []struct {
		query string
		sent  bool
	}{
		{"ab", false},
		{"  ab  ", false},
		{"céu", true},
		{"luz", true},
	}
	for _, tt := range tests {
		before := len(lib.searches)
		results := c.Search(ctx, tt.query, 10)
		sent := len(lib.searches) > before
		if sent != tt.sent {
			t.Errorf("Search(%q) sent = %v, want %v", tt.query, sent, tt.sent)
		}
		if results == nil {
			t.Errorf("Search(%q) returned nil", tt.query)
		}
	}
}

func TestController_Subscribe(t *testing.T) {
	lib := newFakeLibrary()
	c := New(lib, DefaultSettings("acf"), nil)

	var mu sync.Mutex
	var states []State
	unsubscribe := c.Subscribe(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	if err := c.Select(context.Background(), "gn", 3); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	n := len(states)
	last := states[n-1]
	sawLoading := false
	for _, s := range states {
		if s.Loading {
			sawLoading = true
		}
	}
	mu.Unlock()

	if !sawLoading {
		t.Error("subscribers should observe the loading state")
	}
	if last.Loading || last.Chapter == nil || last.Settings.Chapter != 3 {
		t.Errorf("last state = %+v", last)
	}

	unsubscribe()
	c.SetFontSize(20)
	mu.Lock()
	defer mu.Unlock()
	if len(states) != n {
		t.Error("unsubscribed callback was invoked")
	}
}
