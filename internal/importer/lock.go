package importer

import "sync"

// keyLocks is a set of held keys. A key can be held by one caller at a time.
type keyLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// abbreviationLocks guards imports of the same translation within the
// process.
var abbreviationLocks = &keyLocks{held: make(map[string]struct{})}

// tryAcquire takes key if it is free. The returned func releases it.
func (l *keyLocks) tryAcquire(key string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, false
	}
	l.held[key] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true
}
