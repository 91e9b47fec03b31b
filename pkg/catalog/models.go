package catalog

import "gorm.io/datatypes"

// GORM models used for persistence.
type BookModel struct {
	ID         string `gorm:"primaryKey"`
	Title      string `gorm:"not null"`
	Author     string `gorm:"not null;index"`
	CoverURL   string
	Tags       datatypes.JSON
	DurationMs int64 `gorm:"not null"`
}

type ChapterModel struct {
	BookID     string `gorm:"primaryKey;index"`
	Idx        int    `gorm:"primaryKey;column:idx"`
	Title      string `gorm:"not null"`
	DurationMs int64  `gorm:"not null"`
}
