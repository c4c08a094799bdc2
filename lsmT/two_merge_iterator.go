package lsmt

import (
	"lsmkv/utils"
)

// TwoMergeIterator 归并两个迭代器，key相同时取a的值并跳过b
type TwoMergeIterator struct {
	a, b    utils.Iterator
	cmp     *utils.Comparer
	chooseA bool
	closed  bool
}

var _ utils.Iterator = (*TwoMergeIterator)(nil)

// NewTwoMergeIterator 接管a和b，Close时关闭它们
func NewTwoMergeIterator(cmp *utils.Comparer, a, b utils.Iterator) (*TwoMergeIterator, error) {
	if cmp == nil {
		cmp = utils.DefaultComparer
	}
	itr := &TwoMergeIterator{a: a, b: b, cmp: cmp}
	if err := itr.skipB(); err != nil {
		_ = itr.Close()
		return nil, err
	}
	itr.chooseA = itr.pickA()
	return itr, nil
}

func (itr *TwoMergeIterator) pickA() bool {
	if !itr.a.Valid() {
		return false
	}
	if !itr.b.Valid() {
		return true
	}
	return itr.cmp.Compare(itr.a.Key(), itr.b.Key()) < 0
}

// a和b的key相同时跳过b
func (itr *TwoMergeIterator) skipB() error {
	if itr.a.Valid() && itr.b.Valid() && itr.cmp.Compare(itr.a.Key(), itr.b.Key()) == 0 {
		return itr.b.Next()
	}
	return nil
}

func (itr *TwoMergeIterator) Valid() bool {
	if itr.chooseA {
		return itr.a.Valid()
	}
	return itr.b.Valid()
}

func (itr *TwoMergeIterator) Key() []byte {
	utils.CondPanic(!itr.Valid(), utils.ErrInvalidIterator)
	if itr.chooseA {
		return itr.a.Key()
	}
	return itr.b.Key()
}

func (itr *TwoMergeIterator) Value() []byte {
	utils.CondPanic(!itr.Valid(), utils.ErrInvalidIterator)
	if itr.chooseA {
		return itr.a.Value()
	}
	return itr.b.Value()
}

func (itr *TwoMergeIterator) Next() error {
	utils.CondPanic(!itr.Valid(), utils.ErrInvalidIterator)
	var err error
	if itr.chooseA {
		err = itr.a.Next()
	} else {
		err = itr.b.Next()
	}
	if err != nil {
		return err
	}
	if err := itr.skipB(); err != nil {
		return err
	}
	itr.chooseA = itr.pickA()
	return nil
}

func (itr *TwoMergeIterator) NumActiveIterators() int {
	return itr.a.NumActiveIterators() + itr.b.NumActiveIterators()
}

func (itr *TwoMergeIterator) Close() error {
	if itr.closed {
		return nil
	}
	itr.closed = true
	return utils.WarpErr(itr.a.Close(), itr.b.Close())
}
