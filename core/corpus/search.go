package corpus

import (
	"bufio"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/FocuswithJustin/versereader/core/bible"
)

// DefaultSearchLimit caps results when the caller passes no limit.
const DefaultSearchLimit = 50

// maxLineBytes bounds a single corpus line during search scans.
const maxLineBytes = 16 << 20

// searchDocument scans doc line by line, tracking the current book and
// chapter, and collects verses whose text contains query regardless of case.
func searchDocument(doc, query string, limit int) ([]bible.SearchResult, error) {
	fold := cases.Fold()
	needle := fold.String(query)

	results := make([]bible.SearchResult, 0)
	var (
		book    bible.Book
		chapter int
	)

	sc := bufio.NewScanner(strings.NewReader(doc))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := sc.Text()

		if m := bookOpenRe.FindStringSubmatch(line); m != nil {
			if b, ok := bookFromAttrs(m[1]); ok {
				book = b
				chapter = 0
			}
		}
		if m := chapterOpenRe.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				chapter = n
			}
		}

		for _, m := range verseNestedRe.FindAllStringSubmatch(line, -1) {
			text := cleanText(tagRe.ReplaceAllString(m[2], ""))
			if !strings.Contains(fold.String(text), needle) {
				continue
			}
			verse, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			results = append(results, bible.SearchResult{
				BookAbbrev: book.Abbrev,
				BookName:   book.Name,
				Chapter:    chapter,
				Verse:      verse,
				Text:       text,
			})
			if len(results) >= limit {
				return results, nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
