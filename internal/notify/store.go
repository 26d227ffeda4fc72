package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/backdesk/backdesk/internal/logging"
	"github.com/backdesk/backdesk/internal/model"
)

// DefaultLimit caps the number of retained notifications; eviction
// removes the oldest.
const DefaultLimit = 50

// RemoteMutationError wraps a failed remote confirmation of an
// optimistic read-state change. By the time the caller sees it, the
// local flip has already been rolled back.
type RemoteMutationError struct {
	Op  string
	Err error
}

func (e *RemoteMutationError) Error() string {
	return fmt.Sprintf("%s confirmation failed: %v", e.Op, e.Err)
}

func (e *RemoteMutationError) Unwrap() error {
	return e.Err
}

// Remote is the server surface the store confirms read-state against.
type Remote interface {
	ListNotifications(ctx context.Context) ([]model.Notification, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
}

// Mirror persists the store's view locally so history survives
// restarts. Mirror failures are logged and never fatal; the in-memory
// view is the truth for the session.
type Mirror interface {
	UpsertNotifications(ctx context.Context, notifications []model.Notification) error
	MarkNotificationRead(ctx context.Context, id int64, read bool) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Store holds the authoritative client-side view of notifications:
// newest first, deduplicated by id, with unread accounting derived
// from the entries rather than tracked separately.
type Store struct {
	mu     sync.Mutex
	items  []model.Notification
	limit  int
	remote Remote
	mirror Mirror
	logger *logrus.Logger
}

// NewStore creates an empty store confirming against remote. mirror
// and logger may be nil.
func NewStore(remote Remote, mirror Mirror, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		limit:  DefaultLimit,
		remote: remote,
		mirror: mirror,
		logger: logger,
	}
}

// Ingest adds a notification unless its id is already present, keeping
// newest-first order with ties broken by descending id. It reports
// whether the notification was new; duplicate ids are no-ops, so
// re-delivery after a reconnect cannot corrupt state.
func (s *Store) Ingest(n model.Notification) bool {
	s.mu.Lock()
	if s.indexOf(n.ID) >= 0 {
		s.mu.Unlock()
		return false
	}

	pos := 0
	for pos < len(s.items) && newer(s.items[pos], n) {
		pos++
	}

	next := make([]model.Notification, 0, len(s.items)+1)
	next = append(next, s.items[:pos]...)
	next = append(next, n)
	next = append(next, s.items[pos:]...)
	if len(next) > s.limit {
		next = next[:s.limit]
	}
	s.items = next
	s.mu.Unlock()

	s.mirrorUpsert([]model.Notification{n})
	return true
}

// Notifications returns a copy of the current entries, newest first.
func (s *Store) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the entry with the given id, if present.
func (s *Store) Get(id int64) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	return model.Notification{}, false
}

// UnreadCount returns the number of unread entries. The value is
// always derived from the entries so it cannot drift.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// Len returns the number of retained entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// MarkAsRead optimistically flips the entry's read flag, then confirms
// remotely. On remote failure the flag is rolled back to its prior
// value and a RemoteMutationError is returned. Unknown ids and
// already-read entries are no-ops.
func (s *Store) MarkAsRead(ctx context.Context, id int64) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 || s.items[i].Read {
		s.mu.Unlock()
		return nil
	}
	s.setRead(i, true)
	s.mu.Unlock()

	if err := s.remote.MarkRead(ctx, id); err != nil {
		s.mu.Lock()
		if i := s.indexOf(id); i >= 0 {
			s.setRead(i, false)
		}
		s.mu.Unlock()
		return &RemoteMutationError{Op: "mark-read", Err: err}
	}

	s.mirrorMarkRead(id, true)
	return nil
}

// MarkAllAsRead optimistically flips every unread entry, then confirms
// with the server's atomic read-all operation. On failure all affected
// entries roll back together.
func (s *Store) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	var affected []int64
	for i := range s.items {
		if !s.items[i].Read {
			affected = append(affected, s.items[i].ID)
			s.setRead(i, true)
		}
	}
	s.mu.Unlock()

	if len(affected) == 0 {
		return nil
	}

	if err := s.remote.MarkAllRead(ctx); err != nil {
		s.mu.Lock()
		for _, id := range affected {
			if i := s.indexOf(id); i >= 0 {
				s.setRead(i, false)
			}
		}
		s.mu.Unlock()
		return &RemoteMutationError{Op: "mark-all-read", Err: err}
	}

	if s.mirror != nil {
		if err := s.mirror.MarkAllNotificationsRead(context.Background()); err != nil {
			s.logger.WithError(err).Warn("mirroring mark-all-read failed")
		}
	}
	return nil
}

// Refetch replaces the store's contents with a fresh server snapshot,
// reconciling entries whose read state changed while disconnected.
func (s *Store) Refetch(ctx context.Context) error {
	fresh, err := s.remote.ListNotifications(ctx)
	if err != nil {
		return err
	}

	next := make([]model.Notification, 0, len(fresh))
	seen := make(map[int64]bool, len(fresh))
	for _, n := range fresh {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		next = append(next, n)
		if len(next) == s.limit {
			break
		}
	}

	s.mu.Lock()
	s.items = next
	s.mu.Unlock()

	s.mirrorUpsert(next)
	return nil
}

// indexOf returns the position of id, or -1. Caller holds the lock.
func (s *Store) indexOf(id int64) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// setRead flips the read flag at index i as a single assignment, so no
// partially-updated entry is ever observable. Caller holds the lock.
func (s *Store) setRead(i int, read bool) {
	n := s.items[i]
	n.Read = read
	s.items[i] = n
}

// newer reports whether a sorts before b: newest first, ties broken by
// descending id.
func newer(a, b model.Notification) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (s *Store) mirrorUpsert(batch []model.Notification) {
	if s.mirror == nil || len(batch) == 0 {
		return
	}
	if err := s.mirror.UpsertNotifications(context.Background(), batch); err != nil {
		s.logger.WithError(err).Warn("mirroring notifications failed")
	}
}

func (s *Store) mirrorMarkRead(id int64, read bool) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.MarkNotificationRead(context.Background(), id, read); err != nil {
		s.logger.WithError(err).WithField("id", id).Warn("mirroring read flag failed")
	}
}
