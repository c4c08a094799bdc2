package lsmt

import (
	"sort"

	"lsmkv/utils"
)

// BlockIterator 是一个block内的游标
type BlockIterator struct {
	block *Block
	cmp   *utils.Comparer
	idx   int
	key   []byte
	value []byte
}

var _ utils.Iterator = (*BlockIterator)(nil)

// NewBlockIterator 创建一个还没有定位的迭代器，需要调用SeekToFirst或者SeekToKey
func NewBlockIterator(block *Block, cmp *utils.Comparer) *BlockIterator {
	if cmp == nil {
		cmp = utils.DefaultComparer
	}
	return &BlockIterator{block: block, cmp: cmp, idx: -1}
}

// NewBlockIteratorSeekToFirst 创建迭代器并定位到第一个entry
func NewBlockIteratorSeekToFirst(block *Block, cmp *utils.Comparer) *BlockIterator {
	bitr := NewBlockIterator(block, cmp)
	bitr.SeekToFirst()
	return bitr
}

// NewBlockIteratorSeekToKey 创建迭代器并定位到第一个 >= key 的entry
func NewBlockIteratorSeekToKey(block *Block, cmp *utils.Comparer, key []byte) *BlockIterator {
	bitr := NewBlockIterator(block, cmp)
	bitr.SeekToKey(key)
	return bitr
}

// 将迭代器调整到第i个entry，越界就变为无效
func (bitr *BlockIterator) setIdx(i int) {
	bitr.idx = i
	if i < 0 || i >= bitr.block.NumEntries() {
		bitr.key, bitr.value = nil, nil
		return
	}
	bitr.key, bitr.value = bitr.block.entry(i)
}

func (bitr *BlockIterator) SeekToFirst() {
	bitr.setIdx(0)
}

// SeekToKey 二分查找第一个 key >= target 的entry，没有就变为无效
func (bitr *BlockIterator) SeekToKey(target []byte) {
	idx := sort.Search(bitr.block.NumEntries(), func(i int) bool {
		key, _ := bitr.block.entry(i)
		return bitr.cmp.Compare(key, target) >= 0
	})
	bitr.setIdx(idx)
}

func (bitr *BlockIterator) Valid() bool {
	return bitr.idx >= 0 && bitr.idx < bitr.block.NumEntries()
}

func (bitr *BlockIterator) Key() []byte {
	utils.CondPanic(!bitr.Valid(), utils.ErrInvalidIterator)
	return bitr.key
}

func (bitr *BlockIterator) Value() []byte {
	utils.CondPanic(!bitr.Valid(), utils.ErrInvalidIterator)
	return bitr.value
}

func (bitr *BlockIterator) Next() error {
	utils.CondPanic(!bitr.Valid(), utils.ErrInvalidIterator)
	bitr.setIdx(bitr.idx + 1)
	return nil
}

func (bitr *BlockIterator) NumActiveIterators() int {
	return 1
}

// block不持有任何引用
func (bitr *BlockIterator) Close() error {
	return nil
}
