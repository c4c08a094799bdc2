package lsmt

import (
	"container/heap"

	"lsmkv/utils"
)

type heapWrapper struct {
	// 越小优先级越高，相同key时取idx最小的
	idx  int
	iter utils.Iterator
}

type mergeHeap struct {
	cmp   *utils.Comparer
	items []*heapWrapper
}

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) Less(i, j int) bool {
	return h.less(h.items[i], h.items[j])
}

func (h *mergeHeap) less(a, b *heapWrapper) bool {
	if c := h.cmp.Compare(a.iter.Key(), b.iter.Key()); c != 0 {
		return c < 0
	}
	return a.idx < b.idx
}

func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *mergeHeap) Push(x interface{}) { h.items = append(h.items, x.(*heapWrapper)) }

func (h *mergeHeap) Pop() interface{} {
	n := len(h.items)
	item := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	return item
}

// MergeIterator 归并多个有序的迭代器，同一个key只输出一次，取下标最小(最新)的迭代器中的值
type MergeIterator struct {
	heap    *mergeHeap
	current *heapWrapper
	// 所有子迭代器，Close时统一关闭
	all    []utils.Iterator
	closed bool
}

var _ utils.Iterator = (*MergeIterator)(nil)

// NewMergeIterator iters中越靠前的优先级越高；MergeIterator接管所有iters，Close时关闭它们
func NewMergeIterator(cmp *utils.Comparer, iters []utils.Iterator) *MergeIterator {
	if cmp == nil {
		cmp = utils.DefaultComparer
	}
	mi := &MergeIterator{
		heap: &mergeHeap{cmp: cmp},
		all:  iters,
	}
	for i, iter := range iters {
		if iter.Valid() {
			mi.heap.items = append(mi.heap.items, &heapWrapper{idx: i, iter: iter})
		}
	}
	heap.Init(mi.heap)
	if mi.heap.Len() > 0 {
		mi.current = heap.Pop(mi.heap).(*heapWrapper)
	}
	return mi
}

func (mi *MergeIterator) Valid() bool {
	return mi.current != nil && mi.current.iter.Valid()
}

func (mi *MergeIterator) Key() []byte {
	utils.CondPanic(!mi.Valid(), utils.ErrInvalidIterator)
	return mi.current.iter.Key()
}

func (mi *MergeIterator) Value() []byte {
	utils.CondPanic(!mi.Valid(), utils.ErrInvalidIterator)
	return mi.current.iter.Value()
}

// Next 先跳过其他迭代器中和当前key相同的entry，再推进当前迭代器
func (mi *MergeIterator) Next() error {
	utils.CondPanic(!mi.Valid(), utils.ErrInvalidIterator)
	cur := mi.current
	for mi.heap.Len() > 0 {
		top := mi.heap.items[0]
		if mi.heap.cmp.Compare(top.iter.Key(), cur.iter.Key()) != 0 {
			break
		}
		if err := top.iter.Next(); err != nil {
			heap.Pop(mi.heap)
			return err
		}
		if top.iter.Valid() {
			heap.Fix(mi.heap, 0)
		} else {
			heap.Pop(mi.heap)
		}
	}

	if err := cur.iter.Next(); err != nil {
		return err
	}
	if !cur.iter.Valid() {
		mi.current = nil
		if mi.heap.Len() > 0 {
			mi.current = heap.Pop(mi.heap).(*heapWrapper)
		}
		return nil
	}
	// 当前迭代器不再是最小的，和堆顶交换
	if mi.heap.Len() > 0 && mi.heap.less(mi.heap.items[0], cur) {
		mi.current = mi.heap.items[0]
		mi.heap.items[0] = cur
		heap.Fix(mi.heap, 0)
	}
	return nil
}

// 所有仍然有效的子迭代器的活跃数之和
func (mi *MergeIterator) NumActiveIterators() int {
	n := 0
	for _, w := range mi.heap.items {
		n += w.iter.NumActiveIterators()
	}
	if mi.current != nil {
		n += mi.current.iter.NumActiveIterators()
	}
	return n
}

func (mi *MergeIterator) Close() error {
	if mi.closed {
		return nil
	}
	mi.closed = true
	errs := make([]error, 0, len(mi.all))
	for _, iter := range mi.all {
		errs = append(errs, iter.Close())
	}
	mi.current = nil
	mi.heap.items = nil
	return utils.WarpErr(errs...)
}
