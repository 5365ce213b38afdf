package corpus

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/versereader/core/bible"
)

var (
	bookOpenRe    = regexp.MustCompile(`<book\b([^>]*)>`)
	attrRe        = regexp.MustCompile(`([A-Za-z_][\w.-]*)\s*=\s*"([^"]*)"`)
	chapterOpenRe = regexp.MustCompile(`<c\s+n="(\d+)"\s*>`)
)

const (
	bookClose    = "</book>"
	chapterClose = "</c>"
)

// parseAttrs reads name="value" pairs from the inside of an opening tag.
func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string, 3)
	for _, m := range attrRe.FindAllStringSubmatch(s, -1) {
		if _, seen := attrs[m[1]]; !seen {
			attrs[m[1]] = html.UnescapeString(m[2])
		}
	}
	return attrs
}

// bookFromAttrs converts a <book> tag's attributes. Tags without an
// abbreviation or with an unusable chapter count are skipped.
func bookFromAttrs(raw string) (bible.Book, bool) {
	attrs := parseAttrs(raw)
	abbrev := strings.TrimSpace(attrs["abbrev"])
	if abbrev == "" {
		return bible.Book{}, false
	}
	chapters, err := strconv.Atoi(strings.TrimSpace(attrs["chapters"]))
	if err != nil || chapters < 0 {
		return bible.Book{}, false
	}
	return bible.Book{
		Name:     strings.TrimSpace(attrs["name"]),
		Abbrev:   abbrev,
		Chapters: chapters,
	}, true
}

// scanBooks lists every book opening tag in document order.
func scanBooks(doc string) []bible.Book {
	var books []bible.Book
	for _, m := range bookOpenRe.FindAllStringSubmatch(doc, -1) {
		if b, ok := bookFromAttrs(m[1]); ok {
			books = append(books, b)
		}
	}
	return books
}

// bookWindow returns the substring from the opening tag of the book with
// the given abbreviation through its closing tag.
func bookWindow(doc, abbrev string) (string, bool) {
	for _, loc := range bookOpenRe.FindAllStringSubmatchIndex(doc, -1) {
		b, ok := bookFromAttrs(doc[loc[2]:loc[3]])
		if !ok || b.Abbrev != abbrev {
			continue
		}
		start := loc[0]
		end := strings.Index(doc[loc[1]:], bookClose)
		if end < 0 {
			return "", false
		}
		return doc[start : loc[1]+end+len(bookClose)], true
	}
	return "", false
}

// chapterWindow returns the substring from <c n="N"> through its closing tag.
func chapterWindow(bookXML string, number int) (string, bool) {
	if number <= 0 {
		return "", false
	}
	want := strconv.Itoa(number)
	for _, loc := range chapterOpenRe.FindAllStringSubmatchIndex(bookXML, -1) {
		if strings.TrimLeft(bookXML[loc[2]:loc[3]], "0") != want {
			continue
		}
		end := strings.Index(bookXML[loc[1]:], chapterClose)
		if end < 0 {
			return "", false
		}
		return bookXML[loc[0] : loc[1]+end+len(chapterClose)], true
	}
	return "", false
}
