package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/healthwise/companion/internal/model/chat"
	"github.com/healthwise/companion/internal/model/health"
)

// MemoryStore keeps everything in process memory. Suitable for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]chat.Session
	messages   map[string][]chat.Message
	reminders  map[string]health.Reminder
	activities map[string][]health.Activity
}

// NewMemoryStore bootstraps an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]chat.Session),
		messages:   make(map[string][]chat.Message),
		reminders:  make(map[string]health.Reminder),
		activities: make(map[string][]health.Activity),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, session chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	if _, ok := s.messages[session.ID]; !ok {
		s.messages[session.ID] = make([]chat.Message, 0, 16)
	}
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return session, nil
}

func (s *MemoryStore) LatestSession(_ context.Context, userID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest chat.Session
	found := false
	for _, session := range s.sessions {
		if session.UserID != userID {
			continue
		}
		if !found || session.CreatedAt.After(latest.CreatedAt) {
			latest, found = session, true
		}
	}
	if !found {
		return chat.Session{}, fmt.Errorf("session for user %s: %w", userID, ErrNotFound)
	}
	return latest, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[msg.SessionID]; !ok {
		return fmt.Errorf("session %s: %w", msg.SessionID, ErrNotFound)
	}
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (s *MemoryStore) DeleteMessages(_ context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages, ok := s.messages[sessionID]
	if !ok {
		return 0, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	s.messages[sessionID] = make([]chat.Message, 0, 16)
	return int64(len(messages)), nil
}

func (s *MemoryStore) Upsert(_ context.Context, r health.Reminder) (health.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.reminders {
		if existing.UserID == r.UserID && strings.EqualFold(existing.Symptom, r.Symptom) {
			existing.Symptom = r.Symptom
			existing.Advice = r.Advice
			existing.LastShown = r.LastShown
			s.reminders[id] = existing
			return existing, nil
		}
	}
	s.reminders[r.ID] = r
	return r, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (health.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reminders[id]
	if !ok {
		return health.Reminder{}, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]health.Reminder, error) {
	return s.filterReminders(func(r health.Reminder) bool { return r.UserID == userID }), nil
}

func (s *MemoryStore) ListShownBefore(_ context.Context, cutoff int64) ([]health.Reminder, error) {
	return s.filterReminders(func(r health.Reminder) bool { return r.LastShown < cutoff }), nil
}

func (s *MemoryStore) ClaimShown(_ context.Context, id string, cutoff, at int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return false, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	if r.LastShown >= cutoff {
		return false, nil
	}
	r.LastShown = at
	s.reminders[id] = r
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[id]; !ok {
		return fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	delete(s.reminders, id)
	return nil
}

func (s *MemoryStore) filterReminders(keep func(health.Reminder) bool) []health.Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]health.Reminder, 0)
	for _, r := range s.reminders {
		if keep(r) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

// Create 记录一次运动。
func (s *MemoryStore) Create(_ context.Context, a health.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[a.UserID] = append(s.activities[a.UserID], a)
	return nil
}

func (s *MemoryStore) ListRecent(_ context.Context, userID string, limit int) ([]health.Activity, error) {
	s.mu.RLock()
	items := make([]health.Activity, len(s.activities[userID]))
	copy(items, s.activities[userID])
	s.mu.RUnlock()

	sort.SliceStable(items, func(i, j int) bool { return items[i].Date.After(items[j].Date) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) Summary(_ context.Context, userID string) (health.ActivitySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var summary health.ActivitySummary
	for _, a := range s.activities[userID] {
		summary.Count++
		summary.TotalMinutes += a.Duration
		summary.TotalDistance += a.Distance
	}
	return summary, nil
}
