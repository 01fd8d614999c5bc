package tip

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound 提示不存在。
var ErrNotFound = errors.New("tip not found")

// Tip 每日健康小贴士。
type Tip struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Category string `json:"category"`
}

// Store exposes the tip catalog.
type Store interface {
	List(ctx context.Context) ([]Tip, error)
	FindByID(ctx context.Context, id string) (*Tip, error)
	Today(ctx context.Context, date time.Time) (Tip, error)
}

// MemoryStore 内存中的只读目录。
type MemoryStore struct {
	mu   sync.RWMutex
	tips []Tip
	byID map[string]Tip
}

// NewMemoryStore 使用默认目录初始化。
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWith(Seed())
}

func NewMemoryStoreWith(tips []Tip) *MemoryStore {
	sorted := make([]Tip, len(tips))
	copy(sorted, tips)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[string]Tip, len(sorted))
	for _, t := range sorted {
		byID[t.ID] = t
	}
	return &MemoryStore{tips: sorted, byID: byID}
}

func (s *MemoryStore) List(_ context.Context) ([]Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tip, len(s.tips))
	copy(out, s.tips)
	return out, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// Today 按日历日选取，同一天总是返回同一条。
func (s *MemoryStore) Today(_ context.Context, date time.Time) (Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.tips) == 0 {
		return Tip{}, ErrNotFound
	}
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
	idx := int(day % int64(len(s.tips)))
	if idx < 0 {
		idx += len(s.tips)
	}
	return s.tips[idx], nil
}
