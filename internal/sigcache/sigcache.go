// Package sigcache holds short-lived "thought signature" state keyed by
// model name, letting a multi-turn conversation echo back the opaque
// signature the upstream attached to a prior thinking or tool-call block.
package sigcache

import (
	"sync"
	"time"

	"github.com/openrelay/antigravity-gateway/internal/memory"
)

const (
	maxEntriesPerModel = 16
	entryTTL           = 30 * time.Minute
)

// timeNow is stubbed in tests to drive TTL expiry deterministically.
var timeNow = time.Now

type entry struct {
	signature string
	expiresAt time.Time
}

// Cache holds two independent, model-keyed signature slots: one for
// reasoning (thinking) blocks, one for tool-call blocks. Both are
// intentionally coarse — keyed by model only, not by conversation or
// message — so a later turn for the same model can recover whichever
// signature was most recently seen.
type Cache struct {
	mu       sync.Mutex
	thinking map[string][]entry
	toolCall map[string][]entry
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{
		thinking: make(map[string][]entry),
		toolCall: make(map[string][]entry),
	}
}

// PutThinking records signature as the most recent reasoning signature
// seen for model.
func (c *Cache) PutThinking(model, signature string) {
	c.put(c.thinking, model, signature)
}

// PutToolCall records signature as the most recent tool-call signature
// seen for model.
func (c *Cache) PutToolCall(model, signature string) {
	c.put(c.toolCall, model, signature)
}

func (c *Cache) put(bucket map[string][]entry, model, signature string) {
	if signature == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	list := bucket[model]
	list = append(list, entry{signature: signature, expiresAt: timeNow().Add(entryTTL)})
	if len(list) > maxEntriesPerModel {
		list = list[len(list)-maxEntriesPerModel:]
	}
	bucket[model] = list
}

// GetThinking returns the most recent non-expired reasoning signature for
// model, if any.
func (c *Cache) GetThinking(model string) (string, bool) {
	return c.get(c.thinking, model)
}

// GetToolCall returns the most recent non-expired tool-call signature for
// model, if any.
func (c *Cache) GetToolCall(model string) (string, bool) {
	return c.get(c.toolCall, model)
}

func (c *Cache) get(bucket map[string][]entry, model string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := bucket[model]
	now := timeNow()
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].expiresAt.After(now) {
			return list[i].signature, true
		}
	}
	return "", false
}

// Cleanup implements memory.Subscriber: under HIGH pressure it drops
// expired entries, under CRITICAL it clears both buckets entirely.
func (c *Cache) Cleanup(pressure memory.Pressure) {
	switch pressure {
	case memory.HIGH:
		c.pruneExpired()
	case memory.CRITICAL:
		c.Clear()
	}
}

func (c *Cache) pruneExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := timeNow()
	pruneBucket(c.thinking, now)
	pruneBucket(c.toolCall, now)
}

func pruneBucket(bucket map[string][]entry, now time.Time) {
	for model, list := range bucket {
		kept := list[:0]
		for _, e := range list {
			if e.expiresAt.After(now) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(bucket, model)
		} else {
			bucket[model] = kept
		}
	}
}

// Clear empties both buckets entirely.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thinking = make(map[string][]entry)
	c.toolCall = make(map[string][]entry)
}
