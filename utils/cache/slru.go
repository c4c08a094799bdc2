package cache

import (
	"container/list"
	"fmt"
)

// 分别对应 probation A1 和 protected A2
const (
	STAGE_ONE = iota + 1
	STAGE_TWO
)

// segmentedLRU，A1是缓冲区，A2是较为安全的区域
type segmentedLRU struct {
	data         map[uint64]*list.Element
	a1Cap, a2Cap int
	a1, a2       *list.List
}

func (sl *segmentedLRU) Len() int {
	return sl.a1.Len() + sl.a2.Len()
}

// 所有进入SLRU的数据都先放到A1，A1满了会直接覆盖A1的末尾
func (sl *segmentedLRU) add(newItem storeItem) {
	newItem.stage = STAGE_ONE

	if sl.a1.Len() < sl.a1Cap || sl.Len() < sl.a1Cap+sl.a2Cap {
		sl.data[newItem.key] = sl.a1.PushFront(&newItem)
		return
	}

	element := sl.a1.Back()
	item := element.Value.(*storeItem)
	delete(sl.data, item.key)

	*item = newItem
	sl.data[item.key] = element
	sl.a1.MoveToFront(element)
}

// A1中的数据被访问会升级到A2，A2满了会和A2的末尾交换
func (sl *segmentedLRU) get(element *list.Element) {
	item := element.Value.(*storeItem)

	if item.stage == STAGE_TWO {
		sl.a2.MoveToFront(element)
		return
	}

	if sl.a2.Len() < sl.a2Cap {
		sl.a1.Remove(element)
		item.stage = STAGE_TWO
		sl.data[item.key] = sl.a2.PushFront(item)
		return
	}

	a2Back := sl.a2.Back()
	a2Item := a2Back.Value.(*storeItem)

	*a2Item, *item = *item, *a2Item
	a2Item.stage = STAGE_TWO
	item.stage = STAGE_ONE

	sl.data[item.key] = element
	sl.data[a2Item.key] = a2Back

	sl.a1.MoveToFront(element)
	sl.a2.MoveToFront(a2Back)
}

func (sl *segmentedLRU) remove(element *list.Element) {
	item := element.Value.(*storeItem)
	if item.stage == STAGE_TWO {
		sl.a2.Remove(element)
	} else {
		sl.a1.Remove(element)
	}
	delete(sl.data, item.key)
}

// SLRU满了才返回A1末尾的victim，没满返回nil
func (sl *segmentedLRU) victim() *storeItem {
	if sl.Len() < sl.a1Cap+sl.a2Cap {
		return nil
	}
	if sl.a1.Len() == 0 {
		return nil
	}
	return sl.a1.Back().Value.(*storeItem)
}

func newSLRU(data map[uint64]*list.Element, a1Cap, a2Cap int) *segmentedLRU {
	return &segmentedLRU{
		data:  data,
		a1Cap: a1Cap,
		a2Cap: a2Cap,
		a1:    list.New(),
		a2:    list.New(),
	}
}

func (sl *segmentedLRU) String() string {
	var res string
	for e := sl.a2.Front(); e != nil; e = e.Next() {
		res += fmt.Sprintf("%v,", e.Value.(*storeItem).value)
	}
	res += " | "
	for e := sl.a1.Front(); e != nil; e = e.Next() {
		res += fmt.Sprintf("%v,", e.Value.(*storeItem).value)
	}
	return res
}
