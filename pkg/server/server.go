package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/shiv248/kolabpad/pkg/database"
	"github.com/shiv248/kolabpad/pkg/logger"
	"github.com/shiv248/kolabpad/pkg/notebook"
)

// sessionEntry tracks one in-memory Session alongside the bookkeeping the
// cleaner needs: when it was last touched.
type sessionEntry struct {
	LastAccessed time.Time
	Session      *Session
}

// Stats mirrors the teacher's /api/stats payload, generalized from document
// counts to notebook-session counts.
type Stats struct {
	StartTime     int64 `json:"startTime"`
	NumSessions   int   `json:"numSessions"`
	DatabaseCount int   `json:"databaseCount"`
}

// Server is the collaborative notebook server: an HTTP mux serving the
// WebSocket upgrade, a snapshot read endpoint, and stats, fronting a map of
// in-memory Sessions (one revision-log actor per notebook) and an optional
// SQLite-backed persistence layer.
type Server struct {
	mux *http.ServeMux

	sessions  sync.Map // map[notebook.Base64Uuid]*sessionEntry
	startTime time.Time
	db        *database.Database

	userIDCounter atomic.Uint64

	maxCells            int
	broadcastBufferSize int
	wsReadTimeout       time.Duration
	wsWriteTimeout      time.Duration
}

// NewServer wires up the HTTP routes for a fresh server. db may be nil, in
// which case sessions exist only for the lifetime of the process.
func NewServer(db *database.Database, maxCells, broadcastBufferSize int, wsReadTimeout, wsWriteTimeout time.Duration) *Server {
	s := &Server{
		mux:                 http.NewServeMux(),
		startTime:           time.Now(),
		db:                  db,
		maxCells:            maxCells,
		broadcastBufferSize: broadcastBufferSize,
		wsReadTimeout:       wsReadTimeout,
		wsWriteTimeout:      wsWriteTimeout,
	}

	s.mux.HandleFunc("/api/socket/", s.handleSocket)
	s.mux.HandleFunc("/api/notebook/", s.handleNotebook)
	s.mux.HandleFunc("/api/stats", s.handleStats)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// nextUserID returns a fresh per-connection user ID, unique for the life of
// the process (not scoped to any one session).
func (s *Server) nextUserID() uint64 {
	return s.userIDCounter.Add(1) - 1
}

// activeSessionCount reports the number of notebooks currently loaded
// in-memory, for the debug_request/debug_response round trip.
func (s *Server) activeSessionCount() int {
	count := 0
	s.sessions.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// handleSocket upgrades to a WebSocket and hands the connection to a
// Connection. Route: /api/socket/{notebookId}; the notebook is created empty
// on first connection if it does not already exist, the same bootstrap the
// teacher's handleSocket performs for a freeform document ID.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/socket/")
	if idStr == "" {
		http.Error(w, "notebook id required", http.StatusBadRequest)
		return
	}
	notebookID, err := notebook.ParseBase64Uuid(idStr)
	if err != nil {
		http.Error(w, "invalid notebook id", http.StatusBadRequest)
		return
	}

	logger.Info("websocket connection request for notebook %s", notebookID)

	if _, err := s.getOrCreateSession(notebookID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if s.db != nil {
		go s.persister(r.Context(), notebookID)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		logger.Error("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	connHandler := NewConnection(s, conn)
	if err := connHandler.Handle(r.Context()); err != nil {
		logger.Debug("connection %d closed: %v", connHandler.userID, err)
	}
}

// handleNotebook returns the current JSON snapshot of a notebook.
// Route: /api/notebook/{notebookId}
func (s *Server) handleNotebook(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/notebook/")
	if idStr == "" {
		http.Error(w, "notebook id required", http.StatusBadRequest)
		return
	}
	notebookID, err := notebook.ParseBase64Uuid(idStr)
	if err != nil {
		http.Error(w, "invalid notebook id", http.StatusBadRequest)
		return
	}

	if val, ok := s.sessions.Load(notebookID); ok {
		nb, _ := val.(*sessionEntry).Session.GetInitialState()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(nb)
		return
	}

	if s.db != nil {
		if persisted, err := s.db.LoadNotebook(notebookID.String()); err == nil && persisted != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write(persisted.Notebook)
			return
		}
	}

	http.Error(w, "notebook not found", http.StatusNotFound)
}

// handleStats returns server-wide counters. Route: /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	dbCount := 0
	if s.db != nil {
		if count, err := s.db.Count(); err == nil {
			dbCount = count
		}
	}

	stats := Stats{
		StartTime:     s.startTime.Unix(),
		NumSessions:   s.activeSessionCount(),
		DatabaseCount: dbCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// getOrCreateSession loads an existing in-memory session, or rehydrates one
// from the database, or creates a fresh empty notebook at id.
func (s *Server) getOrCreateSession(id notebook.Base64Uuid) (*Session, error) {
	if val, ok := s.sessions.Load(id); ok {
		entry := val.(*sessionEntry)
		entry.LastAccessed = time.Now()
		return entry.Session, nil
	}

	var sess *Session
	if s.db != nil {
		if persisted, err := s.db.LoadNotebook(id.String()); err != nil {
			logger.Error("loading notebook %s from database: %v", id, err)
		} else if persisted != nil {
			var nb notebook.Notebook
			if err := json.Unmarshal(persisted.Notebook, &nb); err != nil {
				return nil, fmt.Errorf("server: corrupt persisted notebook %s: %w", id, err)
			}
			logger.Info("loaded notebook %s from database at revision %d", id, persisted.Revision)
			sess = FromPersistedNotebook(&nb, s.maxCells, s.broadcastBufferSize)
		}
	}

	if sess == nil {
		nb := notebook.NewNotebook("", "")
		nb.ID = id
		sess = NewSession(nb, s.maxCells, s.broadcastBufferSize)
	}

	entry := &sessionEntry{LastAccessed: time.Now(), Session: sess}
	actual, _ := s.sessions.LoadOrStore(id, entry)
	return actual.(*sessionEntry).Session, nil
}

// StartCleaner runs the background eviction loop: every interval, sessions
// untouched for longer than expiry and with no connected users are persisted
// one last time (when a database is configured), killed, and dropped from
// memory — the same shape as the teacher's StartCleaner, scaled
// to a configurable tick instead of a fixed hour.
func (s *Server) StartCleaner(ctx context.Context, expiryDays int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupExpiredSessions(expiryDays)
		}
	}
}

func (s *Server) cleanupExpiredSessions(expiryDays int) {
	expiry := time.Duration(expiryDays) * 24 * time.Hour
	now := time.Now()
	var toDelete []notebook.Base64Uuid

	s.sessions.Range(func(key, value any) bool {
		id := key.(notebook.Base64Uuid)
		entry := value.(*sessionEntry)
		if now.Sub(entry.LastAccessed) > expiry && entry.Session.UserCount() == 0 {
			toDelete = append(toDelete, id)
		}
		return true
	})

	if len(toDelete) == 0 {
		return
	}
	logger.Info("cleaner removing %d idle session(s)", len(toDelete))
	for _, id := range toDelete {
		s.persistOnce(id)
		if val, ok := s.sessions.LoadAndDelete(id); ok {
			val.(*sessionEntry).Session.Kill()
		}
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	logger.Info("server listening on %s", addr)
	return http.ListenAndServe(addr, s)
}

// Shutdown kills every loaded session so its connections drop cleanly.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessions.Range(func(_, value any) bool {
		value.(*sessionEntry).Session.Kill()
		return true
	})
	return nil
}

// persister periodically snapshots a notebook to the database while it has
// revisions newer than the last persisted one, mirroring the teacher's
// interval-plus-jitter persister loop adapted to notebook JSON snapshots
// instead of (text, language) pairs.
func (s *Server) persister(ctx context.Context, id notebook.Base64Uuid) {
	if s.db == nil {
		return
	}

	const persistInterval = 3 * time.Second
	const persistJitter = 1 * time.Second

	for {
		jitter := time.Duration(rand.Int63n(int64(persistJitter)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(persistInterval + jitter):
		}

		val, ok := s.sessions.Load(id)
		if !ok {
			return
		}
		sess := val.(*sessionEntry).Session
		if sess.Killed() {
			return
		}

		revision := sess.Revision()
		if revision > sess.LastPersistedRevision() {
			s.persistOnce(id)
		}
	}
}

func (s *Server) persistOnce(id notebook.Base64Uuid) {
	if s.db == nil {
		return
	}
	val, ok := s.sessions.Load(id)
	if !ok {
		return
	}
	sess := val.(*sessionEntry).Session

	nb := sess.Snapshot()
	body, err := json.Marshal(nb)
	if err != nil {
		logger.Error("marshaling notebook %s for persistence: %v", id, err)
		return
	}

	logger.Debug("persisting revision %d for notebook %s", nb.Revision, id)
	if err := s.db.StoreNotebook(&database.PersistedNotebook{
		ID:       id.String(),
		Revision: nb.Revision,
		Notebook: body,
	}); err != nil {
		logger.Error("persisting notebook %s: %v", id, err)
		return
	}
	sess.MarkPersisted(nb.Revision)
}
