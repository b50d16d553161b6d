// Package slab implements a two-tier allocator for fixed-size objects: a
// shared [Zone] of pages, and unsynchronised per-owner [Cache] free lists
// that refill from, and drain back into, the zone in page-sized batches.
//
// Objects are typed. Each one embeds a [Slot], stamped when its page is
// created, which identifies the page (by index into the zone's page table)
// and the object's position within it. Releasing a page drops the zone's
// only reference to it, handing the memory back to the Go runtime.
package slab

import (
	"unsafe"

	"github.com/joeycumines/go-actorloop/internal/spinlock"
)

const (
	// PageSize is the nominal page size in bytes.
	PageSize = 4096
	// CacheLineSize is the alignment, in bytes, of each chunk.
	CacheLineSize = 64
)

type (
	// Slot identifies an object's home page and position. Slots are
	// assigned by the zone, and survive [Cache.Free].
	Slot struct {
		page  int32
		index int32
	}

	// Object is the constraint for zone element pointers.
	Object[T any] interface {
		*T
		SlabSlot() *Slot
	}

	// Stats is a point-in-time view of a zone's counters.
	Stats struct {
		// ChunkSize is the cache-line aligned size of one object.
		ChunkSize int
		// ChunksPerPage is the number of objects per page.
		ChunksPerPage int
		// PageBytes is the size of one page.
		PageBytes int
		// AllocatedPages counts pages ever created.
		AllocatedPages int
		// FreedPages counts pages ever released.
		FreedPages int
		// FreeChunks is the number of free objects held by the zone itself,
		// excluding those sitting in caches.
		FreeChunks int
	}

	// Zone is the shared page pool for objects of type T. It is safe for
	// concurrent use by the caches created from it.
	Zone[T any, P Object[T]] struct {
		lock      spinlock.Lock
		pages     []*page[T]
		spare     []int32
		partial   *page[T]
		chunkSize int
		perPage   int
		pageBytes int
		allocated int
		freed     int
		free      int
	}

	// Cache is a LIFO free list drawing on a zone. It is not safe for
	// concurrent use.
	Cache[T any, P Object[T]] struct {
		zone *Zone[T, P]
		free []P
	}

	page[T any] struct {
		items  []T
		free   []int32
		prev   *page[T]
		next   *page[T]
		id     int32
		listed bool
	}
)

// NewZone creates an empty zone. The object size is rounded up to a whole
// number of cache lines, and a page always holds at least two objects.
func NewZone[T any, P Object[T]]() *Zone[T, P] {
	size := int(unsafe.Sizeof(*new(T)))
	if size == 0 {
		size = 1
	}
	aligned := (size + CacheLineSize - 1) &^ (CacheLineSize - 1)
	z := &Zone[T, P]{
		chunkSize: aligned,
		perPage:   PageSize / aligned,
		pageBytes: PageSize,
	}
	if z.perPage < 2 {
		z.perPage = 2
		z.pageBytes = 2 * aligned
	}
	return z
}

// NewCache returns an empty cache bound to the zone.
func (z *Zone[T, P]) NewCache() *Cache[T, P] {
	return &Cache[T, P]{zone: z}
}

// UsedBytes is the memory held by live pages, including free chunks that
// sit on them or in caches.
func (z *Zone[T, P]) UsedBytes() uint64 {
	z.lock.Lock()
	defer z.lock.Unlock()
	return uint64(z.allocated-z.freed) * uint64(z.pageBytes)
}

// Stats returns a snapshot of the zone counters.
func (z *Zone[T, P]) Stats() Stats {
	z.lock.Lock()
	defer z.lock.Unlock()
	return Stats{
		ChunkSize:      z.chunkSize,
		ChunksPerPage:  z.perPage,
		PageBytes:      z.pageBytes,
		AllocatedPages: z.allocated,
		FreedPages:     z.freed,
		FreeChunks:     z.free,
	}
}

// fill moves at least one page worth of free chunks into c, allocating a
// page first if the zone runs short.
func (z *Zone[T, P]) fill(c *Cache[T, P]) {
	z.lock.Lock()
	defer z.lock.Unlock()

	if z.free < z.perPage {
		z.allocPage()
	}

	moved := 0
	for pg := z.partial; pg != nil; {
		next := pg.next
		for _, idx := range pg.free {
			c.free = append(c.free, P(&pg.items[idx]))
		}
		moved += len(pg.free)
		z.free -= len(pg.free)
		pg.free = pg.free[:0]
		z.unlist(pg)
		if moved >= z.perPage {
			break
		}
		pg = next
	}
}

// drain returns every chunk held by c to its page.
func (z *Zone[T, P]) drain(c *Cache[T, P]) {
	z.lock.Lock()
	defer z.lock.Unlock()

	for _, p := range c.free {
		slot := p.SlabSlot()
		if slot.page < 0 || int(slot.page) >= len(z.pages) || z.pages[slot.page] == nil {
			panic("slab: chunk does not belong to this zone")
		}
		pg := z.pages[slot.page]
		if len(pg.free) == 0 {
			z.list(pg)
		}
		pg.free = append(pg.free, slot.index)
		z.free++
		switch {
		case len(pg.free) > z.perPage:
			panic("slab: chunk freed twice")
		case len(pg.free) == z.perPage:
			z.releasePage(pg)
		}
	}
}

func (z *Zone[T, P]) allocPage() {
	var id int32
	if n := len(z.spare); n != 0 {
		id = z.spare[n-1]
		z.spare = z.spare[:n-1]
	} else {
		id = int32(len(z.pages))
		z.pages = append(z.pages, nil)
	}
	pg := &page[T]{
		items: make([]T, z.perPage),
		free:  make([]int32, z.perPage),
		id:    id,
	}
	for i := range pg.items {
		*P(&pg.items[i]).SlabSlot() = Slot{page: id, index: int32(i)}
		pg.free[i] = int32(i)
	}
	z.pages[id] = pg
	z.list(pg)
	z.free += z.perPage
	z.allocated++
}

func (z *Zone[T, P]) releasePage(pg *page[T]) {
	z.unlist(pg)
	z.free -= z.perPage
	z.pages[pg.id] = nil
	z.spare = append(z.spare, pg.id)
	z.freed++
}

func (z *Zone[T, P]) list(pg *page[T]) {
	pg.prev = nil
	pg.next = z.partial
	if z.partial != nil {
		z.partial.prev = pg
	}
	z.partial = pg
	pg.listed = true
}

func (z *Zone[T, P]) unlist(pg *page[T]) {
	if !pg.listed {
		return
	}
	if pg.prev != nil {
		pg.prev.next = pg.next
	} else {
		z.partial = pg.next
	}
	if pg.next != nil {
		pg.next.prev = pg.prev
	}
	pg.prev, pg.next, pg.listed = nil, nil, false
}

// Alloc returns a zeroed object, refilling from the zone when empty.
func (c *Cache[T, P]) Alloc() P {
	if len(c.free) == 0 {
		c.zone.fill(c)
	}
	n := len(c.free) - 1
	p := c.free[n]
	c.free[n] = nil
	c.free = c.free[:n]
	return p
}

// Free zeroes p and pushes it onto the cache. p may have been allocated
// through any cache of the same zone.
func (c *Cache[T, P]) Free(p P) {
	slot := *p.SlabSlot()
	var zero T
	*p = zero
	*p.SlabSlot() = slot
	c.free = append(c.free, p)
}

// Drain returns every cached object to the zone, releasing pages that end
// up entirely free.
func (c *Cache[T, P]) Drain() {
	if len(c.free) == 0 {
		return
	}
	c.zone.drain(c)
	clear(c.free)
	c.free = c.free[:0]
}

// Len is the number of objects currently cached.
func (c *Cache[T, P]) Len() int { return len(c.free) }
