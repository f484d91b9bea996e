// Package server implements the Kolabpad collaborative notebook server.
package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shiv248/kolabpad/internal/protocol"
	"github.com/shiv248/kolabpad/pkg/logger"
	"github.com/shiv248/kolabpad/pkg/notebook"
	"github.com/shiv248/kolabpad/pkg/ot"
)

// HistoryEntry records one accepted operation alongside the user that
// committed it, so late subscribers can replay from any prior revision.
type HistoryEntry struct {
	UserID    uint64
	Operation ot.Operation
}

// subscriberInfo tracks what the transport layer needs to know about one
// connected user beyond their operation stream: display name and current
// cell focus, both broadcast to the rest of the session on change.
type subscriberInfo struct {
	Name   string
	CellID *notebook.Base64Uuid
}

// Session is the revision-log actor for one notebook: every accepted
// operation is rebased against whatever has landed since the client's known
// revision, applied, and appended to history under a single lock, the same
// shape as the teacher's Kolabpad but built around ot.Operation/ot.Change
// instead of plain-text OperationSeq.
type Session struct {
	mu      sync.RWMutex
	nb      *notebook.Notebook
	history []HistoryEntry

	subscriberInfos map[uint64]subscriberInfo

	count                atomic.Uint64
	killed               atomic.Bool
	lastEditTime         atomic.Int64
	lastPersistedRevision atomic.Int64

	subscribers         map[uint64]chan *protocol.ServerMsg
	notify              chan struct{}
	maxCells            int
	broadcastBufferSize int
}

// NewSession creates a fresh session around an empty notebook.
func NewSession(nb *notebook.Notebook, maxCells, broadcastBufferSize int) *Session {
	return &Session{
		nb:                  nb,
		history:             make([]HistoryEntry, 0),
		subscriberInfos:      make(map[uint64]subscriberInfo),
		subscribers:         make(map[uint64]chan *protocol.ServerMsg),
		notify:              make(chan struct{}),
		maxCells:            maxCells,
		broadcastBufferSize: broadcastBufferSize,
	}
}

// FromPersistedNotebook rehydrates a session from a stored snapshot. The
// persisted revision is not replayed as operation history — a snapshot is
// trusted at face value, exactly as the teacher's FromPersistedDocument
// trusts its seed text without a synthetic history entry for it.
func FromPersistedNotebook(nb *notebook.Notebook, maxCells, broadcastBufferSize int) *Session {
	s := NewSession(nb, maxCells, broadcastBufferSize)
	s.lastPersistedRevision.Store(int64(nb.Revision))
	return s
}

// NextUserID returns the next available user ID for this session.
func (s *Session) NextUserID() uint64 {
	return s.count.Add(1) - 1
}

// Revision returns the current revision number (count of accepted operations).
func (s *Session) Revision() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint32(len(s.history))
}

// Snapshot returns a deep-enough copy of the notebook for persistence or for
// seeding a newly subscribing client.
func (s *Session) Snapshot() notebook.Notebook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nb := *s.nb
	nb.Cells = append([]notebook.Cell(nil), s.nb.Cells...)
	nb.Labels = append([]notebook.Label(nil), s.nb.Labels...)
	return nb
}

// UserCount returns the number of connected users.
func (s *Session) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscriberInfos)
}

// HasUser reports whether userID is currently connected to this session.
func (s *Session) HasUser(userID uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subscriberInfos[userID]
	return ok
}

// LastEditTime returns the time of the last accepted operation.
func (s *Session) LastEditTime() time.Time {
	ts := s.lastEditTime.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// LastPersistedRevision returns the revision as of the last successful
// database write, for the persister goroutine's debouncing.
func (s *Session) LastPersistedRevision() uint32 {
	return uint32(s.lastPersistedRevision.Load())
}

// MarkPersisted records that revision has been durably written.
func (s *Session) MarkPersisted(revision uint32) {
	s.lastPersistedRevision.Store(int64(revision))
}

// Kill marks this session as destroyed and disconnects every subscriber.
func (s *Session) Kill() {
	if s.killed.CompareAndSwap(false, true) {
		s.mu.Lock()
		for _, ch := range s.subscribers {
			close(ch)
		}
		s.subscribers = make(map[uint64]chan *protocol.ServerMsg)
		close(s.notify)
		s.mu.Unlock()
	}
}

// Killed reports whether this session has been destroyed.
func (s *Session) Killed() bool {
	return s.killed.Load()
}

// Subscribe opens a channel of server messages for userID, named displayName.
// It broadcasts subscriber_added to the rest of the session.
func (s *Session) Subscribe(userID uint64, name string) <-chan *protocol.ServerMsg {
	s.mu.Lock()
	ch := make(chan *protocol.ServerMsg, s.broadcastBufferSize)
	s.subscribers[userID] = ch
	s.subscriberInfos[userID] = subscriberInfo{Name: name}
	notebookID := s.nb.ID
	s.mu.Unlock()

	s.broadcast(notebookID, protocol.NewSubscriberAddedMsg(notebookID, userID, name))
	return ch
}

// Unsubscribe closes userID's channel and broadcasts subscriber_removed.
func (s *Session) Unsubscribe(userID uint64) {
	s.mu.Lock()
	notebookID := s.nb.ID
	if ch, ok := s.subscribers[userID]; ok {
		close(ch)
		delete(s.subscribers, userID)
	}
	delete(s.subscriberInfos, userID)
	s.mu.Unlock()

	s.broadcast(notebookID, protocol.NewSubscriberRemovedMsg(notebookID, userID))
}

// NotifyChannel returns the current notify channel, closed whenever a new
// operation lands so blocked readers can wake and re-subscribe.
func (s *Session) NotifyChannel() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notify
}

func (s *Session) broadcast(notebookID notebook.Base64Uuid, msg protocol.ServerMsg) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- &msg:
		default:
			logger.Debug("session %s: dropping broadcast, subscriber channel full", notebookID)
		}
	}
}

// GetInitialState returns the snapshot and revision a newly subscribed
// client needs to bootstrap its view.
func (s *Session) GetInitialState() (nb notebook.Notebook, revision uint32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := *s.nb
	cp.Cells = append([]notebook.Cell(nil), s.nb.Cells...)
	cp.Labels = append([]notebook.Label(nil), s.nb.Labels...)
	return cp, uint32(len(s.history))
}

// GetHistory returns accepted operations from revision start onward, or an
// Outdated rejection if start lies past the current revision. History is
// never trimmed, so every start up to the current revision is available.
func (s *Session) GetHistory(start uint32) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	length := uint32(len(s.history))
	if start > length {
		return nil, ot.RejectOutdated(length)
	}
	out := make([]HistoryEntry, length-start)
	copy(out, s.history[start:])
	return out, nil
}

// ApplyOperation is the actor's core: it rebases op against every operation
// committed since revision, applies the result to the notebook, and appends
// it to history. It mirrors the teacher's ApplyEdit rebase loop, generalized
// from OperationSeq.Transform to ot.Transform/ot.Apply/ot.ApplyChanges.
//
// A nil returned Operation with a nil error means op became a no-op during
// rebase (nothing to broadcast, but the submitting client still gets an
// ack). A non-nil error means op is rejected outright.
func (s *Session) ApplyOperation(userID uint64, revision uint32, op ot.Operation) (*ot.Operation, uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentLen := uint32(len(s.history))
	if revision > currentLen {
		return nil, 0, fmt.Errorf("session: invalid revision: got %d, current is %d", revision, currentLen)
	}

	transformed := &op
	for _, entry := range s.history[revision:] {
		var err error
		transformed, err = ot.Transform(s.nb, entry.Operation, *transformed)
		if err != nil {
			return nil, 0, fmt.Errorf("session: transform failed: %w", err)
		}
		if transformed == nil {
			return nil, currentLen, nil
		}
	}

	changes, err := ot.Apply(s.nb, *transformed)
	if err != nil {
		return nil, 0, err
	}
	if transformed.Type == ot.OpReplaceCells && len(s.nb.Cells)+len(transformed.ReplaceCells.NewlyInsertedCells())-len(transformed.ReplaceCells.OldRemovedCells()) > s.maxCells {
		return nil, 0, fmt.Errorf("session: %w", ot.RejectOutdated(currentLen))
	}
	if err := ot.ApplyChanges(s.nb, changes); err != nil {
		return nil, 0, err
	}

	s.lastEditTime.Store(time.Now().Unix())
	s.history = append(s.history, HistoryEntry{UserID: userID, Operation: *transformed})
	newRevision := uint32(len(s.history))
	s.nb.Revision = newRevision

	s.emitMentions(transformed)

	if !s.killed.Load() {
		close(s.notify)
		s.notify = make(chan struct{})
	}

	return transformed, newRevision, nil
}

// emitMentions broadcasts a mention message for every Annotation of type
// mention carried by a committed ReplaceText operation's new formatting.
// Mentions are read off the committed operation itself rather than diffed
// against the prior formatting, so retyping over an existing mention
// re-notifies — the same trade-off the teacher's SetUserInfo broadcast makes
// by always re-announcing on every call rather than diffing old state.
func (s *Session) emitMentions(op *ot.Operation) {
	if op.Type != ot.OpReplaceText {
		return
	}
	rt := op.ReplaceText
	for _, a := range rt.NewFormatting {
		if a.Annotation.Type != notebook.AnnotationMention {
			continue
		}
		go s.broadcast(s.nb.ID, protocol.ServerMsg{
			Type: protocol.ServerMention,
			Mention: &protocol.MentionMsg{
				NotebookID: s.nb.ID,
				CellID:     rt.CellID,
				UserID:     a.Annotation.MentionUserID,
			},
		})
	}
}

// SetFocus records which cell userID is focused on and broadcasts the
// change to the rest of the session.
func (s *Session) SetFocus(userID uint64, cellID *notebook.Base64Uuid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.subscriberInfos[userID]
	info.CellID = cellID
	s.subscriberInfos[userID] = info
	notebookID := s.nb.ID
	msg := protocol.NewSubscriberChangedFocusMsg(notebookID, userID, cellID)
	for id, ch := range s.subscribers {
		if id == userID {
			continue
		}
		select {
		case ch <- &msg:
		default:
			logger.Debug("session %s: dropping broadcast, subscriber channel full", notebookID)
		}
	}
}
