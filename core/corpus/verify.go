package corpus

import (
	"context"
	"fmt"
	"reflect"

	"github.com/FocuswithJustin/versereader/core/errors"
)

// Mismatch describes a chapter on which two extractors disagree.
type Mismatch struct {
	Book    string
	Chapter int
	Reason  string
}

// Report summarizes a cross-check of every chapter in a translation.
type Report struct {
	Version    string
	Digest     string
	Books      int
	Chapters   int
	Verses     int
	Mismatches []Mismatch
}

// OK reports whether both extractors agreed on every chapter.
func (r *Report) OK() bool {
	return len(r.Mismatches) == 0
}

// Verify extracts every chapter listed in the index with the parser's
// extractor and with alt, and records each disagreement. It also flags
// books whose chapters attribute does not match the chapters present.
func (p *Parser) Verify(ctx context.Context, version string, alt Extractor) (*Report, error) {
	data, err := p.LoadBooksIndex(ctx, version)
	if err != nil {
		return nil, err
	}
	doc, err := p.load(ctx, version)
	if err != nil {
		return nil, err
	}

	report := &Report{Version: version, Digest: doc.digest, Books: len(data.Books)}
	for _, book := range data.Books {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		window, ok := bookWindow(doc.text, book.Abbrev)
		if !ok {
			report.Mismatches = append(report.Mismatches, Mismatch{Book: book.Abbrev, Reason: "book window not found"})
			continue
		}

		for n := 1; n <= book.Chapters; n++ {
			report.Chapters++
			want, wantErr := p.extractor.ExtractChapter(window, n)
			got, gotErr := alt.ExtractChapter(window, n)

			switch {
			case wantErr != nil && gotErr != nil:
				report.Mismatches = append(report.Mismatches, Mismatch{Book: book.Abbrev, Chapter: n, Reason: describe(wantErr)})
			case wantErr != nil || gotErr != nil:
				report.Mismatches = append(report.Mismatches, Mismatch{
					Book:    book.Abbrev,
					Chapter: n,
					Reason:  fmt.Sprintf("primary: %s, alternate: %s", describe(wantErr), describe(gotErr)),
				})
			case !reflect.DeepEqual(want, got):
				report.Verses += len(want.Verses)
				report.Mismatches = append(report.Mismatches, Mismatch{
					Book:    book.Abbrev,
					Chapter: n,
					Reason:  fmt.Sprintf("verse content differs (%d vs %d verses)", len(want.Verses), len(got.Verses)),
				})
			default:
				report.Verses += len(want.Verses)
			}
		}

		if _, extra := chapterWindow(window, book.Chapters+1); extra {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Book:    book.Abbrev,
				Chapter: book.Chapters + 1,
				Reason:  "chapter present beyond declared count",
			})
		}
	}
	return report, nil
}

func describe(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errors.ErrNotFound):
		return "chapter missing"
	case errors.Is(err, errors.ErrEmpty):
		return "no verses"
	default:
		return err.Error()
	}
}
