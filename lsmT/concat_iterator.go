package lsmt

import (
	"fmt"
	"sort"

	"lsmkv/utils"
)

// ConcatIterator 把多个key范围互不重叠并且有序的sstable当作一个有序的流，
// 同一时刻只打开一个TableIterator，下一个table在需要时才打开
type ConcatIterator struct {
	current    *TableIterator
	nextSSTIdx int
	tables     []*Table
	closed     bool
}

var _ utils.Iterator = (*ConcatIterator)(nil)

// 每个table内 first <= last，相邻table之间 tables[i].last < tables[i+1].first
func checkSSTValid(tables []*Table) {
	for _, t := range tables {
		utils.AssertTruef(t.cmp.Compare(t.FirstKey(), t.LastKey()) <= 0,
			"sstable %d first key %q > last key %q", t.ID(), t.FirstKey(), t.LastKey())
	}
	for i := 0; i+1 < len(tables); i++ {
		utils.AssertTruef(tables[i].cmp.Compare(tables[i].LastKey(), tables[i+1].FirstKey()) < 0,
			"sstable %d overlaps or is out of order with sstable %d", tables[i].ID(), tables[i+1].ID())
	}
}

// 持有所有table的引用，保证还没打开的table不会被删除
func newConcatIterator(tables []*Table) *ConcatIterator {
	checkSSTValid(tables)
	for _, t := range tables {
		t.IncrRef()
	}
	return &ConcatIterator{tables: tables}
}

// NewConcatIteratorSeekToFirst 定位到第一个table的第一个entry，tables为空时直接无效
func NewConcatIteratorSeekToFirst(tables []*Table) (*ConcatIterator, error) {
	itr := newConcatIterator(tables)
	if len(tables) == 0 {
		return itr, nil
	}
	if err := itr.openAt(0, nil); err != nil {
		_ = itr.Close()
		return nil, err
	}
	return itr, nil
}

// NewConcatIteratorSeekToKey 从最后一个 first_key <= key 的table开始查找；
// key比所有table都小时从第一个table的开头开始
func NewConcatIteratorSeekToKey(tables []*Table, key []byte) (*ConcatIterator, error) {
	itr := newConcatIterator(tables)
	if len(tables) == 0 {
		return itr, nil
	}
	idx := sort.Search(len(tables), func(i int) bool {
		return tables[i].cmp.Compare(tables[i].FirstKey(), key) > 0
	})
	if idx > 0 {
		idx--
	}
	if err := itr.openAt(idx, key); err != nil {
		_ = itr.Close()
		return nil, err
	}
	return itr, nil
}

// 在tables[idx]上打开迭代器，key为nil时定位到开头，然后跳过已经遍历完的table
func (itr *ConcatIterator) openAt(idx int, key []byte) error {
	var (
		tblIter *TableIterator
		err     error
	)
	if key == nil {
		tblIter, err = NewTableIteratorSeekToFirst(itr.tables[idx])
	} else {
		tblIter, err = NewTableIteratorSeekToKey(itr.tables[idx], key)
	}
	if err != nil {
		return err
	}
	itr.current = tblIter
	itr.nextSSTIdx = idx + 1
	return itr.moveUntilValid()
}

// 当前的table遍历完了就换到下一个table，直到当前迭代器有效或者所有table都遍历完
func (itr *ConcatIterator) moveUntilValid() error {
	for itr.current != nil {
		if itr.current.Valid() {
			return nil
		}
		if err := itr.current.Close(); err != nil {
			return err
		}
		itr.current = nil
		if itr.nextSSTIdx >= len(itr.tables) {
			return nil
		}
		tblIter, err := NewTableIteratorSeekToFirst(itr.tables[itr.nextSSTIdx])
		if err != nil {
			return err
		}
		itr.current = tblIter
		itr.nextSSTIdx++
	}
	return nil
}

func (itr *ConcatIterator) Valid() bool {
	if itr.current == nil {
		return false
	}
	utils.AssertTrue(itr.current.Valid())
	return true
}

func (itr *ConcatIterator) Key() []byte {
	utils.CondPanic(!itr.Valid(), utils.ErrInvalidIterator)
	return itr.current.Key()
}

func (itr *ConcatIterator) Value() []byte {
	utils.CondPanic(!itr.Valid(), utils.ErrInvalidIterator)
	return itr.current.Value()
}

func (itr *ConcatIterator) Next() error {
	utils.CondPanic(!itr.Valid(), utils.ErrInvalidIterator)
	if err := itr.current.Next(); err != nil {
		return err
	}
	return itr.moveUntilValid()
}

// 同一时刻只有一个TableIterator
func (itr *ConcatIterator) NumActiveIterators() int {
	return 1
}

// Close 释放当前的TableIterator和所有table的引用
func (itr *ConcatIterator) Close() error {
	if itr.closed {
		return nil
	}
	itr.closed = true
	var errs []error
	if itr.current != nil {
		errs = append(errs, itr.current.Close())
		itr.current = nil
	}
	for _, t := range itr.tables {
		errs = append(errs, t.DecrRef())
	}
	return utils.WarpErr(errs...)
}

func (itr *ConcatIterator) String() string {
	return fmt.Sprintf("concat(%d tables, next=%d)", len(itr.tables), itr.nextSSTIdx)
}
