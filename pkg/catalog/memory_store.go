package catalog

import (
	"sort"
	"sync"

	"chapterly/pkg/domain"
)

// MemoryStore keeps the catalog in-process for tests and single-node dev.
type MemoryStore struct {
	mu    sync.RWMutex
	books map[string]domain.Book
}

// NewMemoryStore initializes an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{books: make(map[string]domain.Book)}
}

// SaveBook stores or replaces a book record.
func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[b.ID] = b
	return nil
}

// ListBooks returns all books ordered by title.
func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.books))
	for _, b := range m.books {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Title < res[j].Title })
	return res, nil
}

// GetBook retrieves a book by ID.
func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// Chapters returns the ordered chapter list for a book.
func (m *MemoryStore) Chapters(bookID string) ([]domain.Chapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[bookID]
	if !ok || len(b.Chapters) == 0 {
		return nil, false
	}
	return b.Chapters, true
}
