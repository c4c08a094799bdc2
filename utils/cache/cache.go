package cache

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

/*
	所有的数据都会先进入 Window-LRU，WLRU满了之后弹出链表末尾的节点W；
	W尝试进入 segment-LRU 的 Probation(A1)，A1中的数据再被访问会升级到 Protected(A2)；
	W和A1末尾的victim比较CMSketch中的访问计数，计数更高的留下；
	door(BloomFilter)用于快速判断W是否至少被访问过一次，没有被访问过的直接淘汰。

	1. 只访问一次的数据在WLRU中很快就被淘汰了，不会占用SLRU空间；
	2. 短时间内的突发访问由WLRU吸收；
	3. 真正的热点数据很快进入A2，并由计数的定期减半保鲜。
*/

// WLRU占据所有空间的百分比
const wlruPct = 1

// 每访问 size*resetFactor 次对计数做一次减半
const resetFactor = 10

// 基于Window-TinyLFU实现的Cache
type Cache struct {
	m sync.Mutex
	// wlru
	wlru *windowLRU
	// slru
	slru *segmentedLRU
	// 快速判断是否至少被访问过一次，用于A1的准入策略
	door *BloomFilter
	// 计数器
	cs *cmSketch
	// 对Cache的访问数
	total int32
	// 需要reset的阈值
	threshold int32
	// 数据存储的map，wlru和slru共用
	data map[uint64]*list.Element
}

// 根据size创建cache，size指的是需要缓存的个数
// 默认其中1%的空间是wlru，剩下的空间的20%是Probation A1，80%是Protected A2；
func NewCache(size int) *Cache {
	if size < 3 {
		size = 3
	}
	wlruSize := (wlruPct * size) / 100
	if wlruSize < 1 {
		wlruSize = 1
	}

	slruSize := size - wlruSize
	a1Size := int(0.2 * float64(slruSize))
	if a1Size < 1 {
		a1Size = 1
	}

	data := make(map[uint64]*list.Element, size)

	return &Cache{
		wlru:      newWindowLRU(wlruSize, data),
		slru:      newSLRU(data, a1Size, slruSize-a1Size),
		door:      newFilter(size, 0.01),
		cs:        newCmSketch(int64(size)),
		threshold: int32(size * resetFactor),
		data:      data,
	}
}

func (c *Cache) set(key interface{}, value interface{}) bool {
	// keyHash用于快速定位，conflictHash用于判断冲突
	keyHash, conflictHash := keyToHash(key)

	// 已经存在就原地更新
	if element, ok := c.data[keyHash]; ok {
		item := element.Value.(*storeItem)
		if item.conflict == conflictHash {
			item.value = value
			c.touch(element)
			return true
		}
		c.remove(element)
	}

	item := storeItem{
		stage:    0,
		key:      keyHash,
		conflict: conflictHash,
		value:    value,
	}

	// 所有的数据都一定要加入到wlru中
	eitem, evicted := c.wlru.add(item)
	if !evicted {
		return true
	}

	// 从wlru淘汰出来的eitem尝试进入slru，slru没满直接放入A1
	vitem := c.slru.victim()
	if vitem == nil {
		c.slru.add(eitem)
		return true
	}

	// 之前没有被访问过的数据直接淘汰
	if !c.door.Allow(uint32(eitem.key)) {
		return true
	}

	vcount := c.cs.Estimate(vitem.key)
	ocount := c.cs.Estimate(eitem.key)
	if vcount > ocount {
		return true
	}
	// 通过了准入策略，A1末尾的vitem会被替换掉
	c.slru.add(eitem)
	return true
}

// Set 写入key-value，key支持 uint64、string、[]byte
func (c *Cache) Set(key interface{}, value interface{}) bool {
	c.m.Lock()
	defer c.m.Unlock()
	return c.set(key, value)
}

func (c *Cache) get(key interface{}) (interface{}, bool) {
	c.total++
	if c.total >= c.threshold {
		c.cs.Reset()
		c.door.reset()
		c.total = 0
	}

	keyHash, conflictHash := keyToHash(key)
	// 不管是否命中都要记录一次访问
	c.door.Allow(uint32(keyHash))
	c.cs.Increment(keyHash)

	element, ok := c.data[keyHash]
	if !ok {
		return nil, false
	}
	item := element.Value.(*storeItem)
	if item.conflict != conflictHash {
		return nil, false
	}
	c.touch(element)
	return item.value, true
}

// Get 查询key，命中时会调整数据所在的lru位置，所以需要写锁
func (c *Cache) Get(key interface{}) (interface{}, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.get(key)
}

func (c *Cache) del(key interface{}) (interface{}, bool) {
	keyHash, conflictHash := keyToHash(key)

	element, ok := c.data[keyHash]
	if !ok {
		return nil, false
	}
	item := element.Value.(*storeItem)
	if conflictHash != 0 && conflictHash != item.conflict {
		return nil, false
	}
	// 计数和door中的记录不会删除，只在reset的时候衰减
	c.remove(element)
	return item.value, true
}

// Del 删除key，返回被删除的value
func (c *Cache) Del(key interface{}) (interface{}, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.del(key)
}

// Len 当前缓存的数据个数
func (c *Cache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.data)
}

func (c *Cache) touch(element *list.Element) {
	if element.Value.(*storeItem).stage == 0 {
		c.wlru.get(element)
	} else {
		c.slru.get(element)
	}
}

func (c *Cache) remove(element *list.Element) {
	if element.Value.(*storeItem).stage == 0 {
		c.wlru.remove(element)
	} else {
		c.slru.remove(element)
	}
}

// keyHash使用xxhash，conflictHash使用murmur3，两个都一致才认为是同一个key
func keyToHash(key interface{}) (uint64, uint64) {
	if key == nil {
		return 0, 0
	}
	switch k := key.(type) {
	case uint64:
		return k, 0
	case string:
		return xxhash.Sum64String(k), murmur3.Sum64([]byte(k))
	case []byte:
		return xxhash.Sum64(k), murmur3.Sum64(k)
	case int:
		return uint64(k), 0
	case uint32:
		return uint64(k), 0
	default:
		panic("Key type not supported")
	}
}

// test
func (c *Cache) String() string {
	return c.wlru.String() + " | " + c.slru.String()
}
