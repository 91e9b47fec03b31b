package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"chapterly/internal/app"
	"chapterly/internal/identity"
	"chapterly/pkg/catalog"
	"chapterly/pkg/domain"
)

type fakeAudio struct{}

func (fakeAudio) StreamURL(_ context.Context, bookID string, chapterIndex int, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://cdn.test/%s/%d", bookID, chapterIndex), nil
}

func (fakeAudio) PutChapter(context.Context, string, int, io.Reader, int64) error { return nil }

func (fakeAudio) DeleteBook(context.Context, string, int) error { return nil }

const testSecret = "test-secret"

func seedCatalog(t *testing.T) *catalog.MemoryStore {
	t.Helper()
	store := catalog.NewMemoryStore()
	err := store.SaveBook(domain.Book{
		ID:     "book-a",
		Title:  "The Long Walk",
		Author: "A. Writer",
		Chapters: []domain.Chapter{
			{Index: 0, Title: "Opening", DurationMs: 600000},
			{Index: 1, Title: "Middle", DurationMs: 900000},
		},
		DurationMs: 1500000,
	})
	if err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	return store
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	verifier, err := identity.NewVerifier(identity.Config{Secret: testSecret, Issuer: "issuer-a", Audience: "aud-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	a := app.New(ctx, app.Deps{
		Catalog:      seedCatalog(t),
		Audio:        fakeAudio{},
		TickInterval: time.Hour,
	})
	srv := httptest.NewServer(New(Config{App: a, TokenVerifier: verifier}).Router())
	t.Cleanup(srv.Close)
	return srv
}

func signUserToken(t *testing.T, subject string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "issuer-a",
		Audience:  jwt.ClaimStrings{"aud-a"},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(now),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, method, url, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Client-Id", "client-1")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := signUserToken(t, "user-1")

	var view sessionView
	if code := doJSON(t, http.MethodGet, srv.URL+"/session", token, nil, &view); code != http.StatusOK {
		t.Fatalf("get session status = %d", code)
	}
	if view.Status != domain.StatusIdle {
		t.Fatalf("fresh session status = %s, want idle", view.Status)
	}

	doJSON(t, http.MethodPost, srv.URL+"/session/load", token, map[string]any{"bookId": "book-a"}, &view)
	if view.BookID != "book-a" || view.Status != domain.StatusPaused {
		t.Fatalf("after load: %+v", view)
	}
	if view.DurationLabel != "10:00" {
		t.Fatalf("durationLabel = %q, want 10:00", view.DurationLabel)
	}

	doJSON(t, http.MethodPost, srv.URL+"/session/play", token, nil, &view)
	if view.Status != domain.StatusPlaying {
		t.Fatalf("after play status = %s", view.Status)
	}

	doJSON(t, http.MethodPost, srv.URL+"/session/seek", token, map[string]any{"positionMs": 125000}, &view)
	if view.PositionMs != 125000 || view.PositionLabel != "2:05" {
		t.Fatalf("after seek: position=%d label=%q", view.PositionMs, view.PositionLabel)
	}

	doJSON(t, http.MethodPost, srv.URL+"/session/rate", token, map[string]any{"rate": 1.5}, &view)
	if view.Rate != 1.5 {
		t.Fatalf("rate = %v, want 1.5", view.Rate)
	}
	doJSON(t, http.MethodPost, srv.URL+"/session/rate", token, map[string]any{"rate": 3.3}, &view)
	if view.Rate != 1.5 {
		t.Fatalf("unsupported rate accepted: %v", view.Rate)
	}

	doJSON(t, http.MethodPost, srv.URL+"/session/chapter/next", token, nil, &view)
	if view.ChapterIndex != 1 || view.PositionMs != 0 {
		t.Fatalf("after next chapter: %+v", view)
	}

	doJSON(t, http.MethodPost, srv.URL+"/session/sleep", token, map[string]any{"minutes": 15}, &view)
	if !view.SleepTimerActive {
		t.Fatalf("sleep timer should be active")
	}
	doJSON(t, http.MethodDelete, srv.URL+"/session/sleep", token, nil, &view)
	if view.SleepTimerActive {
		t.Fatalf("sleep timer should be cancelled")
	}
}

func TestGuestSessionIsKeyedByClient(t *testing.T) {
	srv := newTestServer(t)

	var view sessionView
	doJSON(t, http.MethodPost, srv.URL+"/session/load", "", map[string]any{"bookId": "book-a", "chapterIndex": 1}, &view)
	if view.ChapterIndex != 0 {
		t.Fatalf("guest locked chapter load should clamp to 0, got %d", view.ChapterIndex)
	}
	if view.Identity != domain.KindGuest {
		t.Fatalf("identity = %s, want guest", view.Identity)
	}
}

func TestBookViewsMarkLockedChaptersForGuests(t *testing.T) {
	srv := newTestServer(t)

	var book bookView
	if code := doJSON(t, http.MethodGet, srv.URL+"/books/book-a", "", nil, &book); code != http.StatusOK {
		t.Fatalf("get book status = %d", code)
	}
	if book.Chapters[0].Locked || !book.Chapters[1].Locked {
		t.Fatalf("guest lock flags wrong: %+v", book.Chapters)
	}
	if book.DurationLabel != "25m" {
		t.Fatalf("book durationLabel = %q, want 25m", book.DurationLabel)
	}

	token := signUserToken(t, "user-1")
	if code := doJSON(t, http.MethodGet, srv.URL+"/books/book-a", token, nil, &book); code != http.StatusOK {
		t.Fatalf("get book status = %d", code)
	}
	if book.Chapters[1].Locked {
		t.Fatalf("signed-in listener should see no locked chapters")
	}
}

func TestStreamURLEnforcesGuestChapterLock(t *testing.T) {
	srv := newTestServer(t)

	var out map[string]string
	if code := doJSON(t, http.MethodGet, srv.URL+"/books/book-a/chapters/0/stream", "", nil, &out); code != http.StatusOK {
		t.Fatalf("guest chapter 0 stream status = %d", code)
	}
	if out["url"] == "" {
		t.Fatalf("expected stream url")
	}

	var errResp errorResponse
	if code := doJSON(t, http.MethodGet, srv.URL+"/books/book-a/chapters/1/stream", "", nil, &errResp); code != http.StatusForbidden {
		t.Fatalf("guest chapter 1 stream status = %d, want 403", code)
	}
	if errResp.Code != "CHAPTER_LOCKED" {
		t.Fatalf("error code = %q, want CHAPTER_LOCKED", errResp.Code)
	}

	token := signUserToken(t, "user-1")
	if code := doJSON(t, http.MethodGet, srv.URL+"/books/book-a/chapters/1/stream", token, nil, &out); code != http.StatusOK {
		t.Fatalf("signed-in chapter 1 stream status = %d", code)
	}

	if code := doJSON(t, http.MethodGet, srv.URL+"/books/nope/chapters/0/stream", token, nil, &errResp); code != http.StatusNotFound {
		t.Fatalf("unknown book stream status = %d, want 404", code)
	}
}

func TestInvalidBodyRejected(t *testing.T) {
	srv := newTestServer(t)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/session/seek", bytes.NewBufferString("{"))
	req.Header.Set("X-Client-Id", "client-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid body status = %d, want 400", resp.StatusCode)
	}
}
