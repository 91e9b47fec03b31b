// Package progress persists the last listened position per signed-in user,
// so a listener resumes where they left off across devices. Guests are
// never persisted.
package progress

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Position is a saved resume point within a book.
type Position struct {
	BookID       string    `json:"bookId"`
	ChapterIndex int       `json:"chapterIndex"`
	PositionMs   int64     `json:"positionMs"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store persists resume positions.
type Store interface {
	Save(ctx context.Context, userID string, pos Position) error
	Load(ctx context.Context, userID, bookID string) (Position, bool, error)
}

// RedisStore keeps resume positions in Redis hashes with TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a Redis-backed progress store.
func NewRedisStore(addr, password string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// Save writes the resume point for (user, book).
func (s *RedisStore) Save(ctx context.Context, userID string, pos Position) error {
	key := progressKey(userID, pos.BookID)
	payload := map[string]any{
		"chapterIndex": strconv.Itoa(pos.ChapterIndex),
		"positionMs":   strconv.FormatInt(pos.PositionMs, 10),
		"updatedAt":    pos.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := s.client.HSet(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	_ = s.client.Expire(ctx, key, s.ttl).Err()
	return nil
}

// Load reads the resume point for (user, book).
func (s *RedisStore) Load(ctx context.Context, userID, bookID string) (Position, bool, error) {
	data, err := s.client.HGetAll(ctx, progressKey(userID, bookID)).Result()
	if err != nil {
		return Position{}, false, fmt.Errorf("load progress: %w", err)
	}
	if len(data) == 0 {
		return Position{}, false, nil
	}
	pos := Position{BookID: bookID}
	if v := data["chapterIndex"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			pos.ChapterIndex = n
		}
	}
	if v := data["positionMs"]; v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			pos.PositionMs = n
		}
	}
	if v := data["updatedAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			pos.UpdatedAt = t
		}
	}
	return pos, true, nil
}

func progressKey(userID, bookID string) string {
	return fmt.Sprintf("progress:%s:%s", userID, bookID)
}
