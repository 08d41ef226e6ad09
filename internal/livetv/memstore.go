package livetv

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory AccountStore and LineupStore. The core
// treats persistence as a collaborator; this is the built-in backing
// used by the server and by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[int64]*Account
	lineups  map[string]*LineupItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[int64]*Account),
		lineups:  make(map[string]*LineupItem),
	}
}

func (s *MemoryStore) UpsertAccount(account Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = &account
}

func (s *MemoryStore) GetAccount(ctx context.Context, id int64) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

func (s *MemoryStore) UpsertLineupItem(item LineupItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lineups[item.ID] = &item
}

func (s *MemoryStore) GetLineupItem(ctx context.Context, id string) (*LineupItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.lineups[id]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}
