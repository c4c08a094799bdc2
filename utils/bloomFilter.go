package utils

import (
	"math"

	"github.com/spaolacci/murmur3"
)

// Filter 最后一个byte记录hash函数的个数k
type Filter []byte

// 对于给定的误判率P和给定的entries数量
// 计算出size的最优解，返回计算hash函数个数k的前提值
// size = bitperkey * entriesNum
// k = bitsperkey * 0.69
func BitsPerkey(entriesNum int, probability float64) int {
	if entriesNum <= 0 || probability <= 0 || probability >= 1 {
		return 0
	}
	size := -1 * float64(entriesNum) * math.Log(probability) / math.Pow(float64(0.69314718056), 2)
	locs := math.Ceil(size / float64(entriesNum))
	return int(locs)
}

// 将keys插入到BloomFilter中
func insertFilter(keys []uint32, bitsperkey int) []byte {
	if bitsperkey < 0 {
		bitsperkey = 0
	}
	k := uint32(float64(bitsperkey) * 0.69)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}

	size := uint32(len(keys) * bitsperkey)
	if size < 64 {
		size = 64
	}
	nBytes := (size + 7) / 8
	nBits := nBytes * 8
	filter := make([]byte, nBytes+1)
	for _, hash := range keys {
		delta := hash>>17 | hash<<15
		for j := uint32(0); j < k; j++ {
			offset := hash % nBits
			filter[offset/8] |= 1 << (offset % 8)
			hash += delta
		}
	}
	filter[nBytes] = uint8(k)
	return filter
}

// 创建一个bloomFilter
func NewFilter(keys []uint32, bitperkey int) Filter {
	return Filter(insertFilter(keys, bitperkey))
}

// Hash 使用murmur3计算key的32位hash
func Hash(key []byte) uint32 {
	return murmur3.Sum32(key)
}

// 判断是否有可能存在于Bloom Filter
func (f Filter) MayContain(hash uint32) bool {
	if len(f) < 2 {
		return false
	}
	k := f[len(f)-1]
	// 超过30说明是不认识的编码，直接认为可能存在
	if k > 30 {
		return true
	}
	bits := uint32(8 * (len(f) - 1))
	delta := hash>>17 | hash<<15
	for j := uint8(0); j < k; j++ {
		offset := hash % bits
		if f[offset/8]&(1<<(offset%8)) == 0 {
			return false
		}
		hash += delta
	}
	return true
}

// 判断是否可能存在于Bloom Filter
func (f Filter) MayContainKey(key []byte) bool {
	return f.MayContain(Hash(key))
}
