package catalog

import (
	"testing"

	"chapterly/pkg/domain"
)

func TestMemoryStoreChapters(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveBook(domain.Book{
		ID:    "b1",
		Title: "The Long Walk",
		Chapters: []domain.Chapter{
			{Index: 0, Title: "One", DurationMs: 1000},
			{Index: 1, Title: "Two", DurationMs: 2000},
		},
	}); err != nil {
		t.Fatalf("save book: %v", err)
	}

	chapters, ok := store.Chapters("b1")
	if !ok || len(chapters) != 2 {
		t.Fatalf("Chapters(b1) = %v, %v", chapters, ok)
	}
	if chapters[1].DurationMs != 2000 {
		t.Fatalf("chapter duration = %d, want 2000", chapters[1].DurationMs)
	}
	if _, ok := store.Chapters("missing"); ok {
		t.Fatalf("unknown book should report not found")
	}
}

func TestMemoryStoreListOrdersByTitle(t *testing.T) {
	store := NewMemoryStore()
	_ = store.SaveBook(domain.Book{ID: "b2", Title: "Zebra", Chapters: []domain.Chapter{{DurationMs: 1}}})
	_ = store.SaveBook(domain.Book{ID: "b1", Title: "Aardvark", Chapters: []domain.Chapter{{DurationMs: 1}}})
	books, err := store.ListBooks()
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	if len(books) != 2 || books[0].Title != "Aardvark" {
		t.Fatalf("unexpected order: %v", books)
	}
}
