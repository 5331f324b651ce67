package convo

import (
	"sync"
	"time"
)

type bufferEntry struct {
	values    []string
	expiresAt time.Time
}

// Buffer is the hot per-session staging area for serialized exchanges not
// yet merged into the durable record. Threadsafe; entries carry a TTL
// refreshed on every append. A drain is all-or-nothing: a reader sees the
// whole list or, after a drain, nothing.
type Buffer struct {
	mu    sync.Mutex
	items map[string]*bufferEntry
	ttl   time.Duration
}

func NewBuffer(ttl time.Duration) *Buffer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Buffer{
		items: make(map[string]*bufferEntry),
		ttl:   ttl,
	}
}

// Append adds serialized values to a key's list and refreshes its TTL.
func (b *Buffer) Append(key string, values ...string) {
	if len(values) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ent, ok := b.items[key]
	if !ok || time.Now().After(ent.expiresAt) {
		ent = &bufferEntry{}
		b.items[key] = ent
	}
	ent.values = append(ent.values, values...)
	ent.expiresAt = time.Now().Add(b.ttl)
}

// Peek returns a copy of a key's list without mutating it.
func (b *Buffer) Peek(key string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ent, ok := b.items[key]
	if !ok {
		return nil
	}
	if time.Now().After(ent.expiresAt) {
		delete(b.items, key)
		return nil
	}
	out := make([]string, len(ent.values))
	copy(out, ent.values)
	return out
}

// DrainAll atomically removes and returns everything buffered for a key.
func (b *Buffer) DrainAll(key string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ent, ok := b.items[key]
	if !ok {
		return nil
	}
	delete(b.items, key)
	if time.Now().After(ent.expiresAt) {
		return nil
	}
	return ent.values
}

// Restore puts previously drained values back at the front of a key's
// list, so a failed flush can be retried without losing order.
func (b *Buffer) Restore(key string, values []string) {
	if len(values) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ent, ok := b.items[key]
	if !ok || time.Now().After(ent.expiresAt) {
		b.items[key] = &bufferEntry{
			values:    append([]string(nil), values...),
			expiresAt: time.Now().Add(b.ttl),
		}
		return
	}
	ent.values = append(append([]string(nil), values...), ent.values...)
	ent.expiresAt = time.Now().Add(b.ttl)
}

// Keys lists every key currently holding unexpired data.
func (b *Buffer) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	out := make([]string, 0, len(b.items))
	for k, ent := range b.items {
		if now.After(ent.expiresAt) {
			delete(b.items, k)
			continue
		}
		out = append(out, k)
	}
	return out
}

// Len reports how many values a key currently buffers.
func (b *Buffer) Len(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	ent, ok := b.items[key]
	if !ok || time.Now().After(ent.expiresAt) {
		return 0
	}
	return len(ent.values)
}
