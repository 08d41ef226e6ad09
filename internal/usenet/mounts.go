package usenet

import (
	"context"
	"sync"
	"time"
)

// MemoryMounts is an in-memory MountManager. Mount lifecycle lives in
// an external collaborator; this backing is used by the server for
// self-registered mounts and by tests.
type MemoryMounts struct {
	mu      sync.RWMutex
	mounts  map[string]*MountInfo
	touched map[string]time.Time
}

func NewMemoryMounts() *MemoryMounts {
	return &MemoryMounts{
		mounts:  make(map[string]*MountInfo),
		touched: make(map[string]time.Time),
	}
}

func (m *MemoryMounts) AddMount(mount MountInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounts[mount.ID] = &mount
}

func (m *MemoryMounts) RemoveMount(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mounts, id)
	delete(m.touched, id)
}

func (m *MemoryMounts) GetMount(ctx context.Context, id string) (*MountInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mount, ok := m.mounts[id]
	if !ok {
		return nil, nil
	}
	copied := *mount
	return &copied, nil
}

func (m *MemoryMounts) TouchMount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[id] = time.Now()
	return nil
}

// LastTouched reports the most recent access for a mount.
func (m *MemoryMounts) LastTouched(id string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.touched[id]
	return t, ok
}
