package lsmt

import (
	"lsmkv/utils"
)

// TableIterator 组合BlockIterator和block meta，顺序遍历整个sstable
type TableIterator struct {
	table   *Table
	blkIter *BlockIterator
	blkIdx  int
	closed  bool
}

var _ utils.Iterator = (*TableIterator)(nil)

// 创建迭代器会持有table的一个引用，Close时释放
func newTableIterator(table *Table) *TableIterator {
	table.IncrRef()
	return &TableIterator{table: table}
}

// NewTableIteratorSeekToFirst 创建迭代器并定位到table的第一个entry
func NewTableIteratorSeekToFirst(table *Table) (*TableIterator, error) {
	itr := newTableIterator(table)
	if err := itr.SeekToFirst(); err != nil {
		_ = itr.Close()
		return nil, err
	}
	return itr, nil
}

// NewTableIteratorSeekToKey 创建迭代器并定位到第一个 >= key 的entry
func NewTableIteratorSeekToKey(table *Table, key []byte) (*TableIterator, error) {
	itr := newTableIterator(table)
	if err := itr.SeekToKey(key); err != nil {
		_ = itr.Close()
		return nil, err
	}
	return itr, nil
}

// 加载第idx个block并定位到它的第一个entry
func (itr *TableIterator) loadBlock(idx int) error {
	blk, err := itr.table.ReadBlockCached(idx)
	if err != nil {
		return err
	}
	itr.blkIdx = idx
	itr.blkIter = NewBlockIteratorSeekToFirst(blk, itr.table.cmp)
	return nil
}

func (itr *TableIterator) SeekToFirst() error {
	return itr.loadBlock(0)
}

// SeekToKey 在key可能所在的block中查找，这个block中没有就从下一个block的开头开始
func (itr *TableIterator) SeekToKey(key []byte) error {
	idx := itr.table.FindBlockIdx(key)
	blk, err := itr.table.ReadBlockCached(idx)
	if err != nil {
		return err
	}
	itr.blkIdx = idx
	itr.blkIter = NewBlockIteratorSeekToKey(blk, itr.table.cmp, key)
	if !itr.blkIter.Valid() && idx+1 < itr.table.NumBlocks() {
		return itr.loadBlock(idx + 1)
	}
	return nil
}

func (itr *TableIterator) Valid() bool {
	return itr.blkIter != nil && itr.blkIter.Valid()
}

func (itr *TableIterator) Key() []byte {
	utils.CondPanic(!itr.Valid(), utils.ErrInvalidIterator)
	return itr.blkIter.Key()
}

func (itr *TableIterator) Value() []byte {
	utils.CondPanic(!itr.Valid(), utils.ErrInvalidIterator)
	return itr.blkIter.Value()
}

// Next 当前block遍历完之后进入下一个block
func (itr *TableIterator) Next() error {
	utils.CondPanic(!itr.Valid(), utils.ErrInvalidIterator)
	if err := itr.blkIter.Next(); err != nil {
		return err
	}
	if !itr.blkIter.Valid() && itr.blkIdx+1 < itr.table.NumBlocks() {
		return itr.loadBlock(itr.blkIdx + 1)
	}
	return nil
}

func (itr *TableIterator) NumActiveIterators() int {
	return 1
}

// Table 返回迭代器所在的table
func (itr *TableIterator) Table() *Table {
	return itr.table
}

// Close 释放table的引用，可以重复调用
func (itr *TableIterator) Close() error {
	if itr.closed {
		return nil
	}
	itr.closed = true
	itr.blkIter = nil
	return itr.table.DecrRef()
}
