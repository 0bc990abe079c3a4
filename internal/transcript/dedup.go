package transcript

import lru "github.com/hashicorp/golang-lru/v2"

type dedupKey struct {
	text  string
	index int
}

// dedupWindow remembers recently accepted finals. Keys are never touched after
// insertion, so eviction is oldest-first.
type dedupWindow struct {
	cache *lru.Cache[dedupKey, struct{}]
}

func newDedupWindow(capacity int) *dedupWindow {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	cache, err := lru.New[dedupKey, struct{}](capacity)
	if err != nil {
		panic(err)
	}
	return &dedupWindow{cache: cache}
}

func (w *dedupWindow) seen(text string, index int) bool {
	return w.cache.Contains(dedupKey{text: text, index: index})
}

func (w *dedupWindow) add(text string, index int) {
	w.cache.Add(dedupKey{text: text, index: index}, struct{}{})
}

func (w *dedupWindow) len() int {
	return w.cache.Len()
}

func (w *dedupWindow) purge() {
	w.cache.Purge()
}
