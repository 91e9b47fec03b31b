// Package catalog provides the read-only book/chapter catalog the playback
// engine and the surface API consume. Persistence is GORM + Postgres; an
// in-memory store backs tests and single-node development.
package catalog

import "chapterly/pkg/domain"

// Store defines synchronous catalog reads. Chapter lists are ordered by
// index and immutable for the lifetime of a listening session.
type Store interface {
	ListBooks() ([]domain.Book, error)
	GetBook(id string) (domain.Book, bool, error)
	Chapters(bookID string) ([]domain.Chapter, bool)
	SaveBook(domain.Book) error
}
