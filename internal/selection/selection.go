package selection

import (
	"sync"

	"github.com/lack0fcode/destructorbr/internal/assets"
)

// Manager is an insertion-ordered set of selected asset ids.
// The order is what keeps batch token and amount arrays aligned.
type Manager struct {
	mu    sync.Mutex
	order []string
	index map[string]struct{}
}

func New() *Manager {
	return &Manager{index: map[string]struct{}{}}
}

// Toggle flips membership of id and reports whether it is now selected.
func (m *Manager) Toggle(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.index[id]; ok {
		delete(m.index, id)
		for i, v := range m.order {
			if v == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
		return false
	}
	m.index[id] = struct{}{}
	m.order = append(m.order, id)
	return true
}

func (m *Manager) Contains(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.index[id]
	return ok
}

// Remove drops ids from the selection, keeping the order of the rest.
func (m *Manager) Remove(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := m.index[id]; ok {
			drop[id] = struct{}{}
			delete(m.index, id)
		}
	}
	if len(drop) == 0 {
		return
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if _, gone := drop[id]; !gone {
			kept = append(kept, id)
		}
	}
	m.order = kept
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.index = map[string]struct{}{}
}

// Selected returns ids in the order they were selected.
func (m *Manager) Selected() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Resolve maps the selection onto records, in selection order.
// Ids with no matching record are skipped.
func (m *Manager) Resolve(records []assets.AssetRecord) []assets.AssetRecord {
	byID := make(map[string]assets.AssetRecord, len(records))
	for _, r := range records {
		byID[r.ID()] = r
	}

	var out []assets.AssetRecord
	for _, id := range m.Selected() {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}
