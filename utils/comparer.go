package utils

import "bytes"

// Comparer 定义了key的顺序，builder、iterator和compaction都必须使用同一个Comparer
type Comparer struct {
	Name string
	// Compare 返回 -1, 0, +1
	Compare func(a, b []byte) int
	// Split 返回key中的realKey部分，用于bloomFilter和判断是否是同一个key的不同版本
	Split func(key []byte) []byte
	// Timestamp 返回key携带的时间戳，没有时间戳返回0
	Timestamp func(key []byte) uint64
}

// DefaultComparer 按字节序比较，不带时间戳
var DefaultComparer = &Comparer{
	Name:      "lsmkv.bytewise",
	Compare:   bytes.Compare,
	Split:     func(key []byte) []byte { return key },
	Timestamp: func([]byte) uint64 { return 0 },
}

// TimestampComparer 用于KeyWithTS编码的key，realKey升序，ts降序
var TimestampComparer = &Comparer{
	Name:      "lsmkv.timestamp",
	Compare:   CompareKeys,
	Split:     ParseKey,
	Timestamp: ParseTimeStamp,
}

// Versioned 是否会存在同一个realKey的多个版本
func (c *Comparer) Versioned() bool {
	return c.Name != DefaultComparer.Name
}

// SameUserKey 判断两个key是否是同一个realKey
func (c *Comparer) SameUserKey(a, b []byte) bool {
	return bytes.Equal(c.Split(a), c.Split(b))
}
