package sync

import (
	"sync"

	"github.com/driftboard/driftboard/internal/model"
)

// snapnode is a doubly linked list node in the snapshot cache.
type snapnode struct {
	boardID string
	board   model.Board
	dirty   bool
	prev    *snapnode
	next    *snapnode
}

// Snapcache is a bounded, thread-safe cache of the boards seen in the
// current workspace, keyed by board id, with LRU eviction.
//
// It implements push-as-invalidation: a board-updated event for a cached
// board marks the entry dirty instead of patching it, and a dirty entry is
// a cache miss, forcing a refetch on the next board switch.
type Snapcache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*snapnode
	head     *snapnode // most recently used (sentinel)
	tail     *snapnode // least recently used (sentinel)
}

// NewSnapcache creates a cache with the given capacity.
// Panics if capacity < 1.
func NewSnapcache(capacity int) *Snapcache {
	if capacity < 1 {
		panic("snapcache: capacity must be >= 1")
	}

	head := &snapnode{}
	tail := &snapnode{}
	head.next = tail
	tail.prev = head

	return &Snapcache{
		capacity: capacity,
		items:    make(map[string]*snapnode, capacity),
		head:     head,
		tail:     tail,
	}
}

// Get returns the cached snapshot for a board. Dirty entries miss: once a
// push invalidated a board, only a refetch may serve it again.
func (c *Snapcache) Get(boardID string) (model.Board, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[boardID]
	if !ok || n.dirty {
		return model.Board{}, false
	}
	c.moveToFront(n)
	return n.board.Clone(), true
}

// Put stores a fresh snapshot, clearing any dirty mark. The least recently
// used entry is evicted at capacity.
func (c *Snapcache) Put(b model.Board) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[b.ID]; ok {
		n.board = b.Clone()
		n.dirty = false
		c.moveToFront(n)
		return
	}

	n := &snapnode{boardID: b.ID, board: b.Clone()}
	c.items[b.ID] = n
	c.pushFront(n)

	if len(c.items) > c.capacity {
		lru := c.tail.prev
		c.unlink(lru)
		delete(c.items, lru.boardID)
	}
}

// Refresh stores the latest locally observed snapshot without clearing a
// pending dirty mark. Used when switching away from a board: the outgoing
// view's state is newer than whatever was cached at entry, but a push that
// raced the write-back must still force a refetch on the next access.
func (c *Snapcache) Refresh(b model.Board) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[b.ID]; ok {
		n.board = b.Clone()
		c.moveToFront(n)
		return
	}

	n := &snapnode{boardID: b.ID, board: b.Clone()}
	c.items[b.ID] = n
	c.pushFront(n)

	if len(c.items) > c.capacity {
		lru := c.tail.prev
		c.unlink(lru)
		delete(c.items, lru.boardID)
	}
}

// MarkDirty flags a cached board as stale. Reports whether the board was
// cached at all.
func (c *Snapcache) MarkDirty(boardID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[boardID]
	if !ok {
		return false
	}
	n.dirty = true
	return true
}

// Len returns the number of cached entries, dirty ones included.
func (c *Snapcache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Snapcache) moveToFront(n *snapnode) {
	c.unlink(n)
	c.pushFront(n)
}

func (c *Snapcache) pushFront(n *snapnode) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *Snapcache) unlink(n *snapnode) {
	n.prev.next = n.next
	n.next.prev = n.prev
}
