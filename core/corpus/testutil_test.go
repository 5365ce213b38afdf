package corpus

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
)

// countingFetcher serves fixed documents and counts fetches.
type countingFetcher struct {
	docs  map[string][]byte
	calls atomic.Int64
	err   error
}

func (f *countingFetcher) Fetch(_ context.Context, version string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	doc, ok := f.docs[version]
	if !ok {
		return nil, fmt.Errorf("no document for %s", version)
	}
	return doc, nil
}

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/mini.xml")
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}
	return data
}

func newFixtureParser(t *testing.T) (*Parser, *countingFetcher) {
	t.Helper()
	f := &countingFetcher{docs: map[string][]byte{"acf": loadFixture(t)}}
	return New(Config{Fetcher: f}), f
}

// generateCorpus builds a document with the given books, each chapter
// holding versesPerChapter plain verses.
func generateCorpus(books []struct {
	Name, Abbrev string
	Chapters     int
}, versesPerChapter int) []byte {
	var sb strings.Builder
	sb.WriteString("<bible>\n")
	for _, b := range books {
		fmt.Fprintf(&sb, "<book name=%q abbrev=%q chapters=\"%d\">\n", b.Name, b.Abbrev, b.Chapters)
		for c := 1; c <= b.Chapters; c++ {
			fmt.Fprintf(&sb, "  <c n=\"%d\">\n", c)
			for v := 1; v <= versesPerChapter; v++ {
				fmt.Fprintf(&sb, "    <v n=\"%d\">%s %d:%d texto</v>\n", v, b.Name, c, v)
			}
			sb.WriteString("  </c>\n")
		}
		sb.WriteString("</book>\n")
	}
	sb.WriteString("</bible>\n")
	return []byte(sb.String())
}
