package actorloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fifoItem struct {
	next *fifoItem
	v    int
}

func (x *fifoItem) link() **fifoItem { return &x.next }

func fifoValues(q *fifo[fifoItem, *fifoItem]) []int {
	var out []int
	for x := q.get(); x != nil; x = q.get() {
		out = append(out, x.v)
	}
	return out
}

func fifoOf(values ...int) *fifo[fifoItem, *fifoItem] {
	q := new(fifo[fifoItem, *fifoItem])
	for _, v := range values {
		q.put(&fifoItem{v: v})
	}
	return q
}

func TestFifo_putGet(t *testing.T) {
	var q fifo[fifoItem, *fifoItem]
	assert.True(t, q.empty())
	assert.True(t, q.put(&fifoItem{v: 1}))
	assert.False(t, q.put(&fifoItem{v: 2}))
	q.putHead(&fifoItem{v: 0})
	assert.Equal(t, 3, q.len())
	assert.Equal(t, []int{0, 1, 2}, fifoValues(&q))
	assert.True(t, q.empty())
	assert.Zero(t, q.len())
}

func TestFifo_splice(t *testing.T) {
	q := fifoOf(1, 2)
	src := fifoOf(3, 4)
	q.splice(src)
	assert.True(t, src.empty())
	q.splice(fifoOf())
	assert.Equal(t, 4, q.len())
	assert.Equal(t, []int{1, 2, 3, 4}, fifoValues(q))

	q = fifoOf()
	q.splice(fifoOf(5))
	q.put(&fifoItem{v: 6})
	assert.Equal(t, []int{5, 6}, fifoValues(q))
}

func TestFifo_splicePrepend(t *testing.T) {
	q := fifoOf(3, 4)
	q.splicePrepend(fifoOf(1, 2))
	assert.Equal(t, []int{1, 2, 3, 4}, fifoValues(q))

	q = fifoOf()
	q.splicePrepend(fifoOf(1))
	q.put(&fifoItem{v: 2})
	assert.Equal(t, []int{1, 2}, fifoValues(q))
}

func TestFifo_remove(t *testing.T) {
	items := []*fifoItem{{v: 0}, {v: 1}, {v: 2}}
	var q fifo[fifoItem, *fifoItem]
	for _, x := range items {
		q.put(x)
	}
	require.True(t, q.remove(items[2]))
	assert.False(t, q.remove(items[2]))
	q.put(&fifoItem{v: 3})
	require.True(t, q.remove(items[0]))
	assert.Equal(t, []int{1, 3}, fifoValues(&q))
}
