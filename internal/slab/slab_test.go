package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chunk struct {
	slot  Slot
	value int
	ref   *int
}

func (x *chunk) SlabSlot() *Slot { return &x.slot }

type bigChunk struct {
	slot Slot
	buf  [3000]byte
}

func (x *bigChunk) SlabSlot() *Slot { return &x.slot }

func TestNewZone_geometry(t *testing.T) {
	z := NewZone[chunk]()
	s := z.Stats()
	assert.Equal(t, CacheLineSize, s.ChunkSize)
	assert.Equal(t, PageSize/CacheLineSize, s.ChunksPerPage)
	assert.Equal(t, PageSize, s.PageBytes)

	b := NewZone[bigChunk]()
	s = b.Stats()
	assert.Equal(t, 0, s.ChunkSize%CacheLineSize)
	assert.Equal(t, 2, s.ChunksPerPage)
	assert.Equal(t, 2*s.ChunkSize, s.PageBytes)
}

func TestCache_allocFreeLoopUsesOnePage(t *testing.T) {
	z := NewZone[chunk]()
	c := z.NewCache()
	for i := range 100000 {
		p := c.Alloc()
		p.value = i
		c.Free(p)
	}
	s := z.Stats()
	assert.Equal(t, 1, s.AllocatedPages)
	assert.Equal(t, 0, s.FreedPages)
	assert.Equal(t, uint64(PageSize), z.UsedBytes())
}

func TestCache_freeZeroesButKeepsSlot(t *testing.T) {
	z := NewZone[chunk]()
	c := z.NewCache()
	v := 7
	p := c.Alloc()
	slot := p.slot
	p.value = 42
	p.ref = &v
	c.Free(p)
	assert.Equal(t, slot, p.slot)
	assert.Zero(t, p.value)
	assert.Nil(t, p.ref)
	require.Same(t, p, c.Alloc())
}

func TestCache_drainReleasesPages(t *testing.T) {
	z := NewZone[chunk]()
	c := z.NewCache()
	per := z.Stats().ChunksPerPage

	live := make([]*chunk, 3*per)
	for i := range live {
		live[i] = c.Alloc()
	}
	require.Equal(t, 3, z.Stats().AllocatedPages)
	require.Equal(t, uint64(3*PageSize), z.UsedBytes())

	// free all but one chunk, which pins its page
	for _, p := range live[1:] {
		c.Free(p)
	}
	c.Drain()
	assert.Equal(t, 0, c.Len())
	s := z.Stats()
	assert.Equal(t, 2, s.FreedPages)
	assert.Equal(t, per-1, s.FreeChunks)
	assert.Equal(t, uint64(PageSize), z.UsedBytes())

	c.Free(live[0])
	c.Drain()
	assert.Equal(t, 3, z.Stats().FreedPages)
	assert.Equal(t, 0, z.Stats().FreeChunks)
	assert.Zero(t, z.UsedBytes())
}

func TestCache_crossCacheFree(t *testing.T) {
	z := NewZone[chunk]()
	a, b := z.NewCache(), z.NewCache()

	ptrs := make([]*chunk, 10)
	for i := range ptrs {
		ptrs[i] = a.Alloc()
	}
	for _, p := range ptrs {
		b.Free(p)
	}
	a.Drain()
	b.Drain()
	assert.Zero(t, z.UsedBytes())
	assert.Equal(t, 1, z.Stats().FreedPages)
}

func TestCache_fillReusesPartialPages(t *testing.T) {
	z := NewZone[chunk]()
	a, b := z.NewCache(), z.NewCache()
	per := z.Stats().ChunksPerPage

	p := a.Alloc()
	a.Drain() // returns per-1 chunks to the only page
	require.Equal(t, per-1, z.Stats().FreeChunks)

	// zone is short of a full page, so a second page is made, and that one
	// alone satisfies the refill
	b.Alloc()
	s := z.Stats()
	assert.Equal(t, 2, s.AllocatedPages)
	assert.Equal(t, per-1, s.FreeChunks)
	assert.Equal(t, per-1, b.Len())

	a.Free(p)
	a.Drain()
	s = z.Stats()
	assert.Equal(t, 0, s.FreeChunks)
	assert.Equal(t, 1, s.FreedPages)
}

func TestCache_doubleFreePanics(t *testing.T) {
	z := NewZone[bigChunk]()
	c := z.NewCache()
	p := c.Alloc()
	c.Free(p)
	c.Free(p)
	c.Free(p)
	assert.Panics(t, c.Drain)
}

func TestZone_pageIDsRecycled(t *testing.T) {
	z := NewZone[bigChunk]()
	c := z.NewCache()
	for range 5 {
		x, y := c.Alloc(), c.Alloc()
		c.Free(x)
		c.Free(y)
		c.Drain()
	}
	assert.Len(t, z.pages, 1)
	assert.Equal(t, 5, z.Stats().AllocatedPages)
	assert.Equal(t, 5, z.Stats().FreedPages)
}
