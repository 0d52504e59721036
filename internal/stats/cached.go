package stats

import (
	"context"
	"sync"
)

// CachedStore 在遠端後端前加一層 LRU（Cache-Aside）
//
// 讀取：先查快取，未命中才查後端並回填。
// 寫入：先寫後端，再以後端回傳的最新值更新快取；後端失敗時刪除快取。
// 只適用於單一實例寫入同一份資料的部署。
type CachedStore struct {
	backend Store
	cache   *lru[Stats]
	// keys 同一玩家的回填與寫入互斥，舊值不會覆蓋新值；不同玩家互不等待
	keys keyedMutex
}

// NewCachedStore 包裝 backend；capacity 不大於 0 時直接回傳 backend
func NewCachedStore(backend Store, capacity int) Store {
	if capacity <= 0 {
		return backend
	}
	return &CachedStore{
		backend: backend,
		cache:   newLRU[Stats](capacity),
		keys:    keyedMutex{locks: make(map[string]*keyLock)},
	}
}

func (s *CachedStore) Get(ctx context.Context, name string) (Stats, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return Stats{}, err
	}
	if st, ok := s.cache.get(key); ok {
		return st, nil
	}

	defer s.keys.lock(key)()

	if st, ok := s.cache.get(key); ok {
		return st, nil
	}
	st, err := s.backend.Get(ctx, key)
	if err != nil {
		return Stats{}, err
	}
	s.cache.set(key, st)
	return st, nil
}

func (s *CachedStore) Record(ctx context.Context, name string, won bool) (Stats, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return Stats{}, err
	}

	defer s.keys.lock(key)()

	st, err := s.backend.Record(ctx, key, won)
	if err != nil {
		s.cache.delete(key)
		return Stats{}, err
	}
	s.cache.set(key, st)
	return st, nil
}

// Summary 不快取
func (s *CachedStore) Summary(ctx context.Context) (Summary, error) {
	return s.backend.Summary(ctx)
}

func (s *CachedStore) Close() error {
	return s.backend.Close()
}

// keyedMutex 依 key 取得的互斥鎖，沒有人持有時即從 map 移除
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// lock 鎖住 key，回傳解鎖函式
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
