package intentions

import (
	"container/heap"
	"math"
	"sort"

	"parcelbot.ai/internal/agent/options"
)

type item struct {
	opt   options.Option
	seq   uint64
	index int
}

type optionHeap []*item

func (h optionHeap) Len() int { return len(h) }

func (h optionHeap) Less(i, j int) bool {
	a, b := h[i].opt.Utility, h[j].opt.Utility
	if math.IsNaN(a) {
		a = math.Inf(-1)
	}
	if math.IsNaN(b) {
		b = math.Inf(-1)
	}
	if a != b {
		return a > b
	}
	return h[i].seq < h[j].seq
}

func (h optionHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *optionHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *optionHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is a max-priority queue of Options keyed by utility, with at most one
// entry per id. Equal utilities pop in insertion order.
type Queue struct {
	h    optionHeap
	byID map[options.ID]*item
	seq  uint64
}

func NewQueue() *Queue {
	return &Queue{byID: make(map[options.ID]*item)}
}

func (q *Queue) Len() int { return len(q.h) }

func (q *Queue) Has(id options.ID) bool {
	_, ok := q.byID[id]
	return ok
}

func (q *Queue) Get(id options.ID) (options.Option, bool) {
	it, ok := q.byID[id]
	if !ok {
		return options.Option{}, false
	}
	return it.opt, true
}

// Push inserts o, or overwrites the entry with the same id in place.
func (q *Queue) Push(o options.Option) (replaced bool) {
	if it, ok := q.byID[o.ID]; ok {
		it.opt = o
		heap.Fix(&q.h, it.index)
		return true
	}
	q.seq++
	it := &item{opt: o, seq: q.seq}
	heap.Push(&q.h, it)
	q.byID[o.ID] = it
	return false
}

func (q *Queue) Pop() (options.Option, bool) {
	if len(q.h) == 0 {
		return options.Option{}, false
	}
	it := heap.Pop(&q.h).(*item)
	delete(q.byID, it.opt.ID)
	return it.opt, true
}

func (q *Queue) Peek() (options.Option, bool) {
	if len(q.h) == 0 {
		return options.Option{}, false
	}
	return q.h[0].opt, true
}

func (q *Queue) Remove(id options.ID) bool {
	it, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.h, it.index)
	delete(q.byID, id)
	return true
}

// Update rewrites every entry with fn and restores heap order.
func (q *Queue) Update(fn func(options.Option) options.Option) {
	for _, it := range q.h {
		o := fn(it.opt)
		o.ID = it.opt.ID
		it.opt = o
	}
	heap.Init(&q.h)
}

// Options lists the queued Options in pop order.
func (q *Queue) Options() []options.Option {
	items := append(optionHeap(nil), q.h...)
	sort.Slice(items, func(i, j int) bool { return items.Less(i, j) })
	out := make([]options.Option, len(items))
	for i, it := range items {
		out[i] = it.opt
	}
	return out
}
