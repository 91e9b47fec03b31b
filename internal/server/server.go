package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chapterly/internal/app"
	"chapterly/internal/identity"
	"chapterly/internal/util"
	"chapterly/pkg/domain"
	"chapterly/pkg/playback"
	"chapterly/pkg/timeutil"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	TokenVerifier  *identity.Verifier
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the playback service.
type Server struct {
	app           *app.App
	tokenVerifier *identity.Verifier
	trusted       *util.TrustedProxies
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:           cfg.App,
		tokenVerifier: cfg.TokenVerifier,
		trusted:       cfg.TrustedProxies,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("player", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// session
	s.mux.Handle("/session", s.withIdentity(s.handleSession))
	s.mux.Handle("/session/", s.withIdentity(s.handleSessionOp))

	// catalog
	s.mux.Handle("/books", s.withIdentity(s.handleBooks))
	s.mux.Handle("/books/", s.withIdentity(s.handleBookByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type identityHandler func(http.ResponseWriter, *http.Request, domain.Identity, string)

// withIdentity resolves the caller. A valid bearer token yields a signed-in
// listener; anything else degrades to a guest keyed by X-Client-Id or, for
// bare clients, the caller IP.
func (s *Server) withIdentity(next identityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := domain.Identity{Kind: domain.KindGuest}
		if s.tokenVerifier != nil {
			if token, ok := bearerToken(r); ok {
				id = s.tokenVerifier.Resolve(token)
			}
		}
		clientKey := strings.TrimSpace(r.Header.Get("X-Client-Id"))
		if clientKey == "" {
			clientKey = util.ClientIP(r, s.trusted)
		}
		next(w, r, id, clientKey)
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, id domain.Identity, clientKey string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	session := s.app.Session(id, clientKey)
	writeJSON(w, http.StatusOK, newSessionView(session.Snapshot(), time.Now()))
}

// /session/{op} where op is one of load, play, pause, seek, skip, rate,
// sleep, chapter, chapter/next, chapter/previous.
func (s *Server) handleSessionOp(w http.ResponseWriter, r *http.Request, id domain.Identity, clientKey string) {
	op := strings.TrimPrefix(r.URL.Path, "/session/")
	session := s.app.Session(id, clientKey)

	if op == "sleep" && r.Method == http.MethodDelete {
		session.CancelSleepTimer()
		writeJSON(w, http.StatusOK, newSessionView(session.Snapshot(), time.Now()))
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	switch op {
	case "load":
		var req struct {
			BookID       string `json:"bookId"`
			ChapterIndex int    `json:"chapterIndex"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		s.app.LoadBook(r.Context(), session, id, req.BookID, req.ChapterIndex)
	case "play":
		session.Play()
	case "pause":
		session.Pause()
	case "seek":
		var req struct {
			PositionMs int64 `json:"positionMs"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		session.Seek(req.PositionMs)
	case "skip":
		var req struct {
			DeltaMs int64 `json:"deltaMs"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		session.Skip(req.DeltaMs)
	case "rate":
		var req struct {
			Rate float64 `json:"rate"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		session.SetPlaybackRate(req.Rate)
	case "sleep":
		var req struct {
			Minutes int `json:"minutes"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		session.StartSleepTimer(req.Minutes)
	case "chapter":
		var req struct {
			Index int `json:"index"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		session.SetChapter(req.Index)
	case "chapter/next":
		session.NextChapter()
	case "chapter/previous":
		session.PreviousChapter()
	default:
		notFound(w, "not found")
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(session.Snapshot(), time.Now()))
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, id domain.Identity, _ string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.ListBooks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]bookView, 0, len(books))
	for _, book := range books {
		items = append(items, newBookView(book, id.Kind))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// /books/{id} or /books/{id}/chapters/{index}/stream
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, id domain.Identity, clientKey string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/books/")
	parts := strings.Split(path, "/")
	bookID := parts[0]
	if bookID == "" {
		notFound(w, "not found")
		return
	}

	switch {
	case len(parts) == 1:
		book, ok, err := s.app.GetBook(bookID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !ok {
			notFound(w, "book not found")
			return
		}
		writeJSON(w, http.StatusOK, newBookView(book, id.Kind))
	case len(parts) == 4 && parts[1] == "chapters" && parts[3] == "stream":
		index, err := strconv.Atoi(parts[2])
		if err != nil {
			notFound(w, "not found")
			return
		}
		s.handleStream(w, r, id, clientKey, bookID, index)
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, id domain.Identity, clientKey, bookID string, index int) {
	url, err := s.app.StreamURL(r.Context(), id, clientKey, bookID, index)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		notFound(w, "book not found")
	case errors.Is(err, domain.ErrChapterLocked):
		writeError(w, http.StatusForbidden, "chapter locked")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to generate stream URL")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}

// sessionView is the snapshot plus display labels, so surfaces render the
// same strings everywhere.
type sessionView struct {
	playback.Snapshot
	PositionLabel    string  `json:"positionLabel"`
	DurationLabel    string  `json:"durationLabel"`
	ProgressPercent  float64 `json:"progressPercent"`
	SleepTimerActive bool    `json:"sleepTimerActive"`
}

func newSessionView(snap playback.Snapshot, now time.Time) sessionView {
	return sessionView{
		Snapshot:         snap,
		PositionLabel:    timeutil.FormatTime(snap.PositionMs / 1000),
		DurationLabel:    timeutil.FormatTime(snap.DurationMs / 1000),
		ProgressPercent:  timeutil.ProgressPercentage(snap.PositionMs, snap.DurationMs),
		SleepTimerActive: snap.SleepTimerActive(now),
	}
}

type chapterView struct {
	domain.Chapter
	DurationLabel string `json:"durationLabel"`
	Locked        bool   `json:"locked"`
}

type bookView struct {
	domain.Book
	DurationLabel string        `json:"durationLabel"`
	Chapters      []chapterView `json:"chapters"`
}

func newBookView(book domain.Book, kind domain.IdentityKind) bookView {
	chapters := make([]chapterView, 0, len(book.Chapters))
	for _, ch := range book.Chapters {
		chapters = append(chapters, chapterView{
			Chapter:       ch,
			DurationLabel: timeutil.FormatDuration(ch.DurationMs / 1000),
			Locked:        kind == domain.KindGuest && ch.Index > 0,
		})
	}
	return bookView{
		Book:          book,
		DurationLabel: timeutil.FormatDuration(book.DurationMs / 1000),
		Chapters:      chapters,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForPlayer(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeForPlayer(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "book not found":
		return "BOOK_NOT_FOUND"
	case message == "chapter locked":
		return "CHAPTER_LOCKED"
	case message == "rate limited":
		return "STREAM_RATE_LIMITED"
	case message == "failed to generate stream url":
		return "STREAM_URL_FAILED"
	case message == "invalid json body":
		return "PLAYER_INVALID_REQUEST"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "PLAYER_INVALID_REQUEST"
	case http.StatusForbidden:
		return "CHAPTER_LOCKED"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "STREAM_RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
