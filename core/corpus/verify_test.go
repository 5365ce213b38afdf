package corpus

import (
	"context"
	"testing"
)

func TestVerify(t *testing.T) {
	p, _ := newFixtureParser(t)

	report, err := p.Verify(context.Background(), "acf", TreeExtractor{})
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}

	if report.Books != 3 {
		t.Errorf("Books = %d, want 3", report.Books)
	}
	if report.Chapters != 6 {
		t.Errorf("Chapters = %d, want 6", report.Chapters)
	}
	if report.Verses != 9 {
		t.Errorf("Verses = %d, want 9", report.Verses)
	}
	if report.Digest == "" {
		t.Error("Digest should be set")
	}
	if report.OK() {
		t.Fatal("report should flag the empty chapter")
	}
	if len(report.Mismatches) != 1 {
		t.Fatalf("Mismatches = %+v, want 1 entry", report.Mismatches)
	}
	m := report.Mismatches[0]
	if m.Book != "ex" || m.Chapter != 2 || m.Reason != "no verses" {
		t.Errorf("mismatch = %+v", m)
	}
}

func TestVerify_DetectsDisagreement(t *testing.T) {
	doc := `<bible>
<book name="Rute" abbrev="rt" chapters="1">
  <c n="1">
    <v n="1">Plain.</v>
    <v n="2">Mixed <i>markup</i>.</v>
  </c>
  <c n="2">
    <v n="1">Undeclared.</v>
  </c>
</book>
</bible>`
	f := &countingFetcher{docs: map[string][]byte{"acf": []byte(doc)}}
	p := New(Config{Fetcher: f})

	report, err := p.Verify(context.Background(), "acf", TreeExtractor{})
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if len(report.Mismatches) != 2 {
		t.Fatalf("Mismatches = %+v, want 2", report.Mismatches)
	}
	if got := report.Mismatches[0]; got.Chapter != 1 {
		t.Errorf("first mismatch = %+v, want chapter 1 content difference", got)
	}
	if got := report.Mismatches[1]; got.Chapter != 2 || got.Reason != "chapter present beyond declared count" {
		t.Errorf("second mismatch = %+v", got)
	}
}
