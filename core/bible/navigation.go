package bible

// NextChapter returns the chapter after (book, chapter) in corpus order.
// It returns false at the last chapter of the last book or when book is
// not in the index.
func NextChapter(data *Data, book string, chapter int) (Position, bool) {
	i := data.indexOf(book)
	if i < 0 {
		return Position{}, false
	}
	cur := data.Books[i]
	if chapter < cur.Chapters {
		return Position{Book: cur.Abbrev, Chapter: chapter + 1}, true
	}
	if i+1 < len(data.Books) {
		return Position{Book: data.Books[i+1].Abbrev, Chapter: 1}, true
	}
	return Position{}, false
}

// PreviousChapter returns the chapter before (book, chapter) in corpus
// order, crossing into the last chapter of the previous book.
// It returns false at chapter 1 of the first book.
func PreviousChapter(data *Data, book string, chapter int) (Position, bool) {
	i := data.indexOf(book)
	if i < 0 {
		return Position{}, false
	}
	if chapter > 1 {
		return Position{Book: data.Books[i].Abbrev, Chapter: chapter - 1}, true
	}
	if i > 0 {
		prev := data.Books[i-1]
		return Position{Book: prev.Abbrev, Chapter: prev.Chapters}, true
	}
	return Position{}, false
}

// BooksForNavigation expands each book's chapter count into an explicit list.
func BooksForNavigation(data *Data) []NavBook {
	if data == nil {
		return nil
	}
	out := make([]NavBook, len(data.Books))
	for i, b := range data.Books {
		chapters := make([]int, b.Chapters)
		for n := range chapters {
			chapters[n] = n + 1
		}
		out[i] = NavBook{Name: b.Name, Abbrev: b.Abbrev, Chapters: chapters}
	}
	return out
}

func (d *Data) indexOf(abbrev string) int {
	if d == nil {
		return -1
	}
	for i, b := range d.Books {
		if b.Abbrev == abbrev {
			return i
		}
	}
	return -1
}
