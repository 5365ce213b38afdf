// Package bible defines the scripture data model shared by the corpus
// parser, the library facade and the reader controller, together with the
// pure navigation arithmetic over a translation's book index.
package bible

// Book describes a book in a translation's index.
type Book struct {
	Name     string `json:"name"`
	Abbrev   string `json:"abbrev"`
	Chapters int    `json:"chapters"`
}

// Verse is a single numbered verse.
type Verse struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Chapter holds the verses of one chapter, ordered by verse number.
type Chapter struct {
	Number int     `json:"number"`
	Verses []Verse `json:"verses"`
}

// ByteSize estimates the memory held by the chapter's text.
func (c *Chapter) ByteSize() int64 {
	var n int64 = 16
	for _, v := range c.Verses {
		n += int64(len(v.Text)) + 16
	}
	return n
}

// Data is the book index of one translation.
// BookMap contains exactly the entries of Books, keyed by abbreviation.
type Data struct {
	Books   []Book          `json:"books"`
	BookMap map[string]Book `json:"-"`
}

// NewData builds an index from books in corpus order.
// A later book reusing an earlier abbreviation is dropped.
func NewData(books []Book) *Data {
	d := &Data{
		Books:   make([]Book, 0, len(books)),
		BookMap: make(map[string]Book, len(books)),
	}
	for _, b := range books {
		if _, dup := d.BookMap[b.Abbrev]; dup {
			continue
		}
		d.Books = append(d.Books, b)
		d.BookMap[b.Abbrev] = b
	}
	return d
}

// Book returns the book with the given abbreviation.
func (d *Data) Book(abbrev string) (Book, bool) {
	if d == nil {
		return Book{}, false
	}
	b, ok := d.BookMap[abbrev]
	return b, ok
}

// ByteSize estimates the memory held by the index.
func (d *Data) ByteSize() int64 {
	var n int64
	for _, b := range d.Books {
		n += 2*int64(len(b.Name)+len(b.Abbrev)) + 48
	}
	return n
}

// SearchResult is a verse matching a search query.
type SearchResult struct {
	BookAbbrev string `json:"book_abbrev"`
	BookName   string `json:"book_name"`
	Chapter    int    `json:"chapter"`
	Verse      int    `json:"verse"`
	Text       string `json:"text"`
}

// Position identifies a chapter within a translation.
type Position struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
}

// NavBook is a book prepared for book and chapter pickers.
type NavBook struct {
	Name     string `json:"name"`
	Abbrev   string `json:"abbrev"`
	Chapters []int  `json:"chapters"`
}
