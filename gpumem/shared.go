package gpumem

// sharedEntry is a resource shared by key with an access counter.
type sharedEntry[K comparable, V any] struct {
	key   K
	value V
	count int
}

// sharedList keeps resources in creation order so leaks are reported in the
// order they were made.
type sharedList[K comparable, V comparable] struct {
	entries []*sharedEntry[K, V]
}

func newSharedList[K comparable, V comparable]() *sharedList[K, V] {
	return &sharedList[K, V]{}
}

// acquire returns the resource for key, creating it if absent, and increments
// its access counter.
func (l *sharedList[K, V]) acquire(key K, create func() (V, error)) (V, error) {
	for _, e := range l.entries {
		if e.key == key {
			e.count++
			return e.value, nil
		}
	}
	v, err := create()
	if err != nil {
		var zero V
		return zero, err
	}
	l.entries = append(l.entries, &sharedEntry[K, V]{key: key, value: v, count: 1})
	return v, nil
}

// release decrements the access counter of v.  It returns true if the counter
// dropped to zero and the entry was removed, and found false if v is not listed.
func (l *sharedList[K, V]) release(v V) (last, found bool) {
	for i, e := range l.entries {
		if e.value != v {
			continue
		}
		e.count--
		if e.count > 0 {
			return false, true
		}
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
		return true, true
	}
	return false, false
}

// drain removes and returns every entry.
func (l *sharedList[K, V]) drain() []*sharedEntry[K, V] {
	entries := l.entries
	l.entries = nil
	return entries
}

func (l *sharedList[K, V]) len() int {
	return len(l.entries)
}
