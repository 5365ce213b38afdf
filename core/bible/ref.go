package bible

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Ref is a scripture reference as typed by a reader.
type Ref struct {
	// Book is the lowercase book abbreviation (e.g., "gn", "1co").
	Book string `json:"book"`

	// Chapter is the chapter number (0 for whole-book references).
	Chapter int `json:"chapter,omitempty"`

	// Verse is the first verse (0 for whole-chapter references).
	Verse int `json:"verse,omitempty"`

	// VerseEnd is the last verse of a range (optional).
	VerseEnd int `json:"verse_end,omitempty"`
}

// refGrammar accepts "gn", "gn 1", "gn.1", "1co 13:4", "jo 3.16-18".
//
//nolint:govet // participle grammar tags are not standard struct tags
type refGrammar struct {
	BookPrefix string       `parser:"@Int?"`
	BookName   string       `parser:"@Ident"`
	ChapterRef *chapterPart `parser:"( \".\"? @@ )?"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type chapterPart struct {
	Chapter  int        `parser:"@Int"`
	VerseRef *versePart `parser:"( ( \":\" | \".\" ) @@ )?"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type versePart struct {
	Verse int  `parser:"@Int"`
	Range *int `parser:"( \"-\" @Int )?"`
}

var refLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `\p{L}+`},
	{Name: "Punct", Pattern: `[.:\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var refParser = participle.MustBuild[refGrammar](
	participle.Lexer(refLexer),
	participle.Elide("Whitespace"),
)

// ParseRef parses a reader-typed reference.
// Supported formats:
//   - "gn" (book only)
//   - "gn 1" or "gn.1" (book and chapter)
//   - "jo 3:16" or "jo 3.16" (book, chapter and verse)
//   - "1co 13:4-7" (verse range)
func ParseRef(s string) (*Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty reference string")
	}

	parsed, err := refParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("invalid reference format: %q: %w", s, err)
	}

	ref := &Ref{Book: strings.ToLower(parsed.BookPrefix + parsed.BookName)}
	if c := parsed.ChapterRef; c != nil {
		ref.Chapter = c.Chapter
		if v := c.VerseRef; v != nil {
			ref.Verse = v.Verse
			if v.Range != nil {
				ref.VerseEnd = *v.Range
			}
		}
	}

	if ref.VerseEnd != 0 && ref.VerseEnd < ref.Verse {
		return nil, fmt.Errorf("invalid reference range: %q", s)
	}
	return ref, nil
}

// String formats the reference as "book chapter:verse-end".
func (r *Ref) String() string {
	var sb strings.Builder
	sb.WriteString(r.Book)
	if r.Chapter > 0 {
		sb.WriteString(" ")
		sb.WriteString(strconv.Itoa(r.Chapter))
		if r.Verse > 0 {
			sb.WriteString(":")
			sb.WriteString(strconv.Itoa(r.Verse))
			if r.VerseEnd > r.Verse {
				sb.WriteString("-")
				sb.WriteString(strconv.Itoa(r.VerseEnd))
			}
		}
	}
	return sb.String()
}

// Position returns the chapter the reference points into, defaulting to chapter 1.
func (r *Ref) Position() Position {
	ch := r.Chapter
	if ch == 0 {
		ch = 1
	}
	return Position{Book: r.Book, Chapter: ch}
}

// Contains reports whether verse falls inside the reference.
// Book and whole-chapter references contain every verse.
func (r *Ref) Contains(verse int) bool {
	if r.Verse == 0 {
		return true
	}
	if r.VerseEnd > r.Verse {
		return verse >= r.Verse && verse <= r.VerseEnd
	}
	return verse == r.Verse
}
