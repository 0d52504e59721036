package stats

import (
	"context"
	"sync"
)

type record struct {
	games, wins, losses int
}

// MemoryStore 以互斥鎖保護的記憶體戰績，重啟後資料消失
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewMemoryStore 建立記憶體後端
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*record)}
}

func (s *MemoryStore) Get(_ context.Context, name string) (Stats, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return Stats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[key]
	if !ok {
		return newStats(key, 0, 0, 0), nil
	}
	return newStats(key, r.games, r.wins, r.losses), nil
}

func (s *MemoryStore) Record(_ context.Context, name string, won bool) (Stats, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return Stats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if !ok {
		r = &record{}
		s.records[key] = r
	}
	r.games++
	if won {
		r.wins++
	} else {
		r.losses++
	}
	return newStats(key, r.games, r.wins, r.losses), nil
}

func (s *MemoryStore) Summary(_ context.Context) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{TotalPlayers: len(s.records)}
	for _, r := range s.records {
		sum.TotalGames += r.wins
	}
	return sum, nil
}

func (s *MemoryStore) Close() error { return nil }
