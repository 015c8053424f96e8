package cache

import (
	"sync"
	"time"
)

const janitorInterval = 5 * time.Minute

type heldKey struct {
	token     string
	expiresAt time.Time
}

// keySet is a set of keys that each expire on their own. A key can carry a
// token so only the holder that set it can remove it.
type keySet struct {
	mu   sync.RWMutex
	keys map[string]heldKey
	now  func() time.Time
}

func newKeySet() *keySet {
	return &keySet{keys: make(map[string]heldKey), now: time.Now}
}

// setIfAbsent stores key unless a live entry holds it.
func (s *keySet) setIfAbsent(key, token string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if held, ok := s.keys[key]; ok && now.Before(held.expiresAt) {
		return false
	}
	s.keys[key] = heldKey{token: token, expiresAt: now.Add(ttl)}
	return true
}

func (s *keySet) has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	held, ok := s.keys[key]
	return ok && s.now().Before(held.expiresAt)
}

func (s *keySet) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// deleteIfToken removes key only while token still owns it.
func (s *keySet) deleteIfToken(key, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held, ok := s.keys[key]; ok && held.token == token {
		delete(s.keys, key)
	}
}

// sweep drops expired keys.
func (s *keySet) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, held := range s.keys {
		if !now.Before(held.expiresAt) {
			delete(s.keys, key)
		}
	}
}

func (s *keySet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// janitor sweeps a keySet periodically until stopped.
type janitor struct {
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func startJanitor(set *keySet, interval time.Duration) *janitor {
	j := &janitor{stop: make(chan struct{})}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-j.stop:
				return
			case <-ticker.C:
				set.sweep()
			}
		}
	}()
	return j
}

// Close is safe to call more than once.
func (j *janitor) Close() {
	j.closeOnce.Do(func() {
		close(j.stop)
		j.wg.Wait()
	})
}
