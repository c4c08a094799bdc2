package cache

import (
	"container/list"
	"fmt"
)

// windowLRU
type windowLRU struct {
	// 与slru共用的索引，key为keyHash
	data map[uint64]*list.Element
	cap  int
	list *list.List
}

// list.Element.Value中存储的实际的数据
type storeItem struct {
	// stage == 0 ：windowLRU
	// stage == 1 ： segmentedLRU A1 probation
	// stage == 2 ： segmentedLRU A2 protected
	stage    int
	key      uint64
	conflict uint64
	value    interface{}
}

// 向Window-LRU中添加数据，满了会返回被淘汰的item
func (wl *windowLRU) add(newItem storeItem) (eItem storeItem, evicted bool) {
	if wl.list.Len() < wl.cap {
		wl.data[newItem.key] = wl.list.PushFront(&newItem)
		return storeItem{}, false
	}

	// 复用链表尾部的element
	element := wl.list.Back()
	item := element.Value.(*storeItem)
	delete(wl.data, item.key)

	eItem, *item = *item, newItem
	wl.data[item.key] = element
	wl.list.MoveToFront(element)
	return eItem, true
}

func (wl *windowLRU) get(element *list.Element) {
	wl.list.MoveToFront(element)
}

func (wl *windowLRU) remove(element *list.Element) {
	item := wl.list.Remove(element).(*storeItem)
	delete(wl.data, item.key)
}

func newWindowLRU(size int, data map[uint64]*list.Element) *windowLRU {
	return &windowLRU{
		data: data,
		cap:  size,
		list: list.New(),
	}
}

func (wl *windowLRU) String() string {
	var res string
	for e := wl.list.Front(); e != nil; e = e.Next() {
		res += fmt.Sprintf("%v,", e.Value.(*storeItem).value)
	}
	return res
}
