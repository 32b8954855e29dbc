package cache

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// DiskBackend persists cached segments as files under a directory,
// surviving process restarts, spec §4.3 "on-disk (bounded bytes,
// persistent across restarts)". Eviction bookkeeping mirrors
// MemoryBackend; only the value bytes live on disk instead of in memory.
type DiskBackend struct {
	dir string
	mu  sync.Mutex

	order     *list.List
	index     map[Key]*list.Element
	maxBytes  int64
	usedBytes int64
	ttl       time.Duration

	evictions atomic.Int64
	now       func() time.Time
}

type diskEntry struct {
	key         Key
	path        string
	contentType string
	size        int64
	expiresAt   time.Time
}

func NewDiskBackend(dir string, maxBytes int64, ttl time.Duration) (*DiskBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskBackend{
		dir:      dir,
		order:    list.New(),
		index:    make(map[Key]*list.Element),
		maxBytes: maxBytes,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

func (d *DiskBackend) pathFor(key Key) string {
	return filepath.Join(d.dir, fmt.Sprintf("%s-%d.seg", key.VideoID, key.Ordinal))
}

func (d *DiskBackend) Get(key Key) (Value, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.index[key]
	if !ok {
		return Value{}, false
	}
	entry := el.Value.(*diskEntry)

	if d.ttl > 0 && d.now().After(entry.expiresAt) {
		d.removeElement(el)
		d.evictions.Add(1)
		return Value{}, false
	}

	data, err := os.ReadFile(entry.path)
	if err != nil {
		d.removeElement(el)
		return Value{}, false
	}

	d.order.MoveToFront(el)
	return Value{Data: data, ContentType: entry.contentType}, true
}

func (d *DiskBackend) Set(key Key, value Value) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[key]; ok {
		d.removeElement(el)
	}

	path := d.pathFor(key)
	if err := os.WriteFile(path, value.Data, 0o644); err != nil {
		return
	}

	entry := &diskEntry{key: key, path: path, contentType: value.ContentType, size: value.size()}
	if d.ttl > 0 {
		entry.expiresAt = d.now().Add(d.ttl)
	}

	el := d.order.PushFront(entry)
	d.index[key] = el
	d.usedBytes += entry.size

	for d.usedBytes > d.maxBytes && d.order.Len() > 0 {
		back := d.order.Back()
		if back == nil || back == el {
			break
		}
		d.removeElement(back)
		d.evictions.Add(1)
	}
}

func (d *DiskBackend) Delete(key Key) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.index[key]; ok {
		d.removeElement(el)
	}
}

func (d *DiskBackend) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, el := range d.index {
		entry := el.Value.(*diskEntry)
		os.Remove(entry.path)
	}
	d.order.Init()
	d.index = make(map[Key]*list.Element)
	d.usedBytes = 0
}

func (d *DiskBackend) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

func (d *DiskBackend) Bytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usedBytes
}

func (d *DiskBackend) Evictions() int64 {
	return d.evictions.Load()
}

// removeElement must be called with mu held.
func (d *DiskBackend) removeElement(el *list.Element) {
	entry := el.Value.(*diskEntry)
	os.Remove(entry.path)
	d.order.Remove(el)
	delete(d.index, entry.key)
	d.usedBytes -= entry.size
}
