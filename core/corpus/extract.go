package corpus

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/versereader/core/bible"
	"github.com/FocuswithJustin/versereader/core/errors"
)

// Extractor pulls one chapter's verses out of a book window
// (the text from <book ...> through </book>).
//
// Implementations return errors.ErrNotFound when the chapter is absent
// and errors.ErrEmpty when it holds no verses; the Parser attaches the
// translation and book context.
type Extractor interface {
	ExtractChapter(bookXML string, number int) (*bible.Chapter, error)
}

var (
	// verseFastRe matches verses whose text carries no nested markup.
	verseFastRe = regexp.MustCompile(`<v\b[^>]*?\bn="(\d+)"[^>]*>([^<]*)</v>`)
	// verseNestedRe also traverses inline markup inside the verse.
	verseNestedRe = regexp.MustCompile(`(?s)<v\b[^>]*?\bn="(\d+)"[^>]*>(.*?)</v>`)
	tagRe         = regexp.MustCompile(`<[^>]*>`)
)

// RegexExtractor scans the chapter window with regular expressions.
// A fast pass assumes plain verse text; only when it finds nothing does a
// slower pass strip nested tags from the verse bodies.
type RegexExtractor struct{}

// ExtractChapter implements Extractor.
func (RegexExtractor) ExtractChapter(bookXML string, number int) (*bible.Chapter, error) {
	window, ok := chapterWindow(bookXML, number)
	if !ok {
		return nil, errors.ErrNotFound
	}

	verses := collectVerses(verseFastRe.FindAllStringSubmatch(window, -1), false)
	if len(verses) == 0 {
		verses = collectVerses(verseNestedRe.FindAllStringSubmatch(window, -1), true)
	}
	if len(verses) == 0 {
		return nil, errors.ErrEmpty
	}
	return &bible.Chapter{Number: number, Verses: verses}, nil
}

func collectVerses(matches [][]string, nested bool) []bible.Verse {
	verses := make([]bible.Verse, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		text := m[2]
		if nested {
			text = tagRe.ReplaceAllString(text, "")
		}
		verses = append(verses, bible.Verse{Number: n, Text: cleanText(text)})
	}
	return normalizeVerses(verses)
}

// cleanText decodes entity references and collapses runs of whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

// normalizeVerses keeps the first occurrence of each verse number and
// orders verses ascending.
func normalizeVerses(in []bible.Verse) []bible.Verse {
	seen := make(map[int]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, dup := seen[v.Number]; dup {
			continue
		}
		seen[v.Number] = struct{}{}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

var (
	chapterExpr = xpath.MustCompile(`/book/c[@n]`)
	verseExpr   = xpath.MustCompile(`v[@n]`)
)

// TreeExtractor parses only the book window into an XML tree and selects
// the chapter with XPath. It trades speed for tolerance of arbitrary
// nesting and attribute quoting.
type TreeExtractor struct{}

// ExtractChapter implements Extractor.
func (TreeExtractor) ExtractChapter(bookXML string, number int) (*bible.Chapter, error) {
	if number <= 0 {
		return nil, errors.ErrNotFound
	}

	root, err := xmlquery.Parse(strings.NewReader(bookXML))
	if err != nil {
		return nil, fmt.Errorf("parsing book window: %w", err)
	}

	var chapter *xmlquery.Node
	for _, c := range xmlquery.QuerySelectorAll(root, chapterExpr) {
		if n, err := strconv.Atoi(strings.TrimSpace(c.SelectAttr("n"))); err == nil && n == number {
			chapter = c
			break
		}
	}
	if chapter == nil {
		return nil, errors.ErrNotFound
	}

	nodes := xmlquery.QuerySelectorAll(chapter, verseExpr)
	verses := make([]bible.Verse, 0, len(nodes))
	for _, v := range nodes {
		n, err := strconv.Atoi(strings.TrimSpace(v.SelectAttr("n")))
		if err != nil {
			continue
		}
		verses = append(verses, bible.Verse{Number: n, Text: cleanText(v.InnerText())})
	}
	verses = normalizeVerses(verses)
	if len(verses) == 0 {
		return nil, errors.ErrEmpty
	}
	return &bible.Chapter{Number: number, Verses: verses}, nil
}
