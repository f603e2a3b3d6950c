package archive

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps archived games in process memory. It is used
// when no database is configured.
type MemoryRepository struct {
	mu    sync.RWMutex
	games map[string]*Game
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{games: make(map[string]*Game)}
}

func (m *MemoryRepository) Save(_ context.Context, g *Game) error {
	cp := *g
	cp.Moves = append([]string(nil), g.Moves...)
	m.mu.Lock()
	m.games[g.ID] = &cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	cp.Moves = append([]string(nil), g.Moves...)
	return &cp, nil
}

// List returns archived games, most recently ended first.
func (m *MemoryRepository) List() []*Game {
	m.mu.RLock()
	items := make([]*Game, 0, len(m.games))
	for _, g := range m.games {
		cp := *g
		items = append(items, &cp)
	}
	m.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}
