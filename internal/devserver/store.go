package devserver

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sadnxai/chatlink/internal/model"
)

// Store holds sessions in memory. Values handed out are copies.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*model.Session),
		now:      time.Now,
	}
}

// timeLayout is fixed width so timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// Create adds a new idle session and returns it.
func (s *Store) Create() model.Session {
	ts := s.timestamp()
	sess := &model.Session{
		ID:       uuid.NewString(),
		Title:    "New Session",
		Status:   model.StatusIdle,
		Columns:  []string{},
		Messages: []model.ChatMessage{},
		Thresholds: model.PrivacyThresholds{
			KAnonymity: model.ThresholdRange{Minimum: 5, Target: 10},
			LDiversity: model.ThresholdRange{Minimum: 2, Target: 3},
			TCloseness: model.ThresholdRange{Minimum: 0.2, Target: 0.15},
			RiskScore:  model.ThresholdRange{Minimum: 0.2, Target: 0.1},
		},
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return clone(sess)
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, false
	}
	return clone(sess), true
}

// Update applies fn to the stored session under the write lock and bumps
// UpdatedAt. It returns the updated copy.
func (s *Store) Update(id string, fn func(*model.Session)) (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, false
	}
	fn(sess)
	sess.UpdatedAt = s.timestamp()
	return clone(sess), true
}

// Delete removes a session and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// List returns summaries ordered by most recent update.
func (s *Store) List(limit, offset int) []model.SessionSummary {
	s.mu.RLock()
	out := make([]model.SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Summary())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})

	if offset >= len(out) {
		return []model.SessionSummary{}
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func clone(sess *model.Session) model.Session {
	c := *sess
	c.Columns = slices.Clone(sess.Columns)
	c.SampleData = slices.Clone(sess.SampleData)
	c.Messages = slices.Clone(sess.Messages)
	return c
}
