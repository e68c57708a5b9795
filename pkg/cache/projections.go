// Package cache provides a memory-bounded LRU cache of tree projections for
// the stateless hosts (HTTP parse endpoint, MCP tools), so repeated queries
// skip the reparse.
package cache

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/Sumatoshi-tech/sqltree/pkg/projector"
)

// DefaultMaxBytes is the default memory budget (16 MB).
const DefaultMaxBytes = 16 << 20

// nodeOverhead approximates the fixed size of one DisplayNode.
const nodeOverhead = 96

// Key identifies a projection: the same text under the same grammar and
// projection options always yields the same rows.
type Key struct {
	Grammar    string
	Digest     uint64
	Length     int
	AllNodes   bool
	MaxSnippet int

	text string
}

// NewKey builds the key for text.
func NewKey(grammar, text string, allNodes bool, maxSnippet int) Key {
	return Key{
		Grammar:    grammar,
		Digest:     xxhash.Sum64String(text),
		Length:     len(text),
		AllNodes:   allNodes,
		MaxSnippet: maxSnippet,
		text:       text,
	}
}

// slot is the map key: Key without the text. Entries keep the text and Get
// compares it, so two texts sharing a digest never share rows.
type slot struct {
	grammar    string
	digest     uint64
	length     int
	allNodes   bool
	maxSnippet int
}

func (k Key) slot() slot {
	return slot{
		grammar:    k.Grammar,
		digest:     k.Digest,
		length:     k.Length,
		allNodes:   k.AllNodes,
		maxSnippet: k.MaxSnippet,
	}
}

// entry is a doubly-linked list node holding a key-value pair.
type entry struct {
	key   slot
	text  string
	nodes []projector.DisplayNode
	size  int64
	prev  *entry
	next  *entry
}

// Projections is a thread-safe LRU cache of display rows.
type Projections struct {
	mu      sync.Mutex
	entries map[slot]*entry
	head    *entry // Most recently used.
	tail    *entry // Least recently used.

	maxSize int64
	curSize int64

	// Metrics (atomic for lock-free reads).
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache holding at most maxBytes of rows. A non-positive
// budget uses DefaultMaxBytes.
func New(maxBytes int64) *Projections {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	return &Projections{
		entries: make(map[slot]*entry),
		maxSize: maxBytes,
	}
}

// Get returns a copy of the cached rows for key.
func (c *Projections) Get(key Key) ([]projector.DisplayNode, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.slot()]
	if !ok || e.text != key.text {
		c.misses.Add(1)

		return nil, false
	}

	c.hits.Add(1)
	c.moveToFront(e)

	return slices.Clone(e.nodes), true
}

// Put stores a copy of nodes under key, evicting least recently used entries
// to stay within budget. A text sharing the slot of another replaces it.
// Projections larger than the whole budget are not cached.
func (c *Projections) Put(key Key, nodes []projector.DisplayNode) {
	if c == nil {
		return
	}

	size := sizeOf(nodes) + int64(len(key.text))
	if size > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key.slot()]; ok {
		c.curSize += size - e.size
		e.text = key.text
		e.nodes = slices.Clone(nodes)
		e.size = size
		c.moveToFront(e)
		c.evict()

		return
	}

	e := &entry{key: key.slot(), text: key.text, nodes: slices.Clone(nodes), size: size}
	c.entries[e.key] = e
	c.curSize += size
	c.pushFront(e)
	c.evict()
}

// Len returns the number of cached projections.
func (c *Projections) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Projections) Stats() Stats {
	c.mu.Lock()
	entries, size := len(c.entries), c.curSize
	c.mu.Unlock()

	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: entries,
		Bytes:   size,
	}
}

func (c *Projections) evict() {
	for c.curSize > c.maxSize && c.tail != nil {
		victim := c.tail
		c.unlink(victim)
		delete(c.entries, victim.key)
		c.curSize -= victim.size
	}
}

func (c *Projections) pushFront(e *entry) {
	e.prev = nil
	e.next = c.head

	if c.head != nil {
		c.head.prev = e
	}

	c.head = e

	if c.tail == nil {
		c.tail = e
	}
}

func (c *Projections) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}

	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}

	e.prev, e.next = nil, nil
}

func (c *Projections) moveToFront(e *entry) {
	if c.head == e {
		return
	}

	c.unlink(e)
	c.pushFront(e)
}

func sizeOf(nodes []projector.DisplayNode) int64 {
	var size int64

	for idx := range nodes {
		node := &nodes[idx]
		size += nodeOverhead + int64(len(node.Type)+len(node.FieldName)+len(node.Snippet))
	}

	return size
}

// Stats holds cache counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}
