package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chapterly/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&BookModel{}, &ChapterModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveBook stores or updates a book and replaces its chapter list.
func (s *GormStore) SaveBook(b domain.Book) error {
	model, chapters := bookToModel(b)
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "author", "cover_url", "tags", "duration_ms"}),
		}).Create(&model).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ChapterModel{}, "book_id = ?", b.ID).Error; err != nil {
			return err
		}
		if len(chapters) == 0 {
			return nil
		}
		return tx.Create(&chapters).Error
	})
}

// ListBooks returns all books with chapters, ordered by title.
func (s *GormStore) ListBooks() ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.Order("title ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		chapters, err := s.chapters(m.ID)
		if err != nil {
			return nil, err
		}
		res = append(res, bookFromModel(m, chapters))
	}
	return res, nil
}

// GetBook retrieves a book with its ordered chapters.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	chapters, err := s.chapters(id)
	if err != nil {
		return domain.Book{}, false, err
	}
	return bookFromModel(model, chapters), true, nil
}

// Chapters satisfies the playback engine's synchronous catalog read.
// Lookup failures surface as "unknown book" so transport controls stay
// no-ops instead of erroring mid-playback.
func (s *GormStore) Chapters(bookID string) ([]domain.Chapter, bool) {
	chapters, err := s.chapters(bookID)
	if err != nil {
		slog.Error("catalog chapter lookup failed", "book_id", bookID, "err", err)
		return nil, false
	}
	if len(chapters) == 0 {
		return nil, false
	}
	return chapters, true
}

func (s *GormStore) chapters(bookID string) ([]domain.Chapter, error) {
	var models []ChapterModel
	if err := s.db.Order("idx ASC").Find(&models, "book_id = ?", bookID).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Chapter, 0, len(models))
	for _, m := range models {
		res = append(res, domain.Chapter{Index: m.Idx, Title: m.Title, DurationMs: m.DurationMs})
	}
	return res, nil
}

func bookToModel(b domain.Book) (BookModel, []ChapterModel) {
	tags, _ := json.Marshal(b.Tags)
	chapters := make([]ChapterModel, 0, len(b.Chapters))
	for _, c := range b.Chapters {
		chapters = append(chapters, ChapterModel{
			BookID:     b.ID,
			Idx:        c.Index,
			Title:      c.Title,
			DurationMs: c.DurationMs,
		})
	}
	return BookModel{
		ID:         b.ID,
		Title:      b.Title,
		Author:     b.Author,
		CoverURL:   b.CoverURL,
		Tags:       tags,
		DurationMs: b.DurationMs,
	}, chapters
}

func bookFromModel(m BookModel, chapters []domain.Chapter) domain.Book {
	var tags []string
	if len(m.Tags) > 0 {
		_ = json.Unmarshal(m.Tags, &tags)
	}
	return domain.Book{
		ID:         m.ID,
		Title:      m.Title,
		Author:     m.Author,
		CoverURL:   m.CoverURL,
		Tags:       tags,
		Chapters:   chapters,
		DurationMs: m.DurationMs,
	}
}
