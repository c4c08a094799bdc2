package cache

import "math"

// BloomFilter 用作cache的door，只记录hash值
type BloomFilter struct {
	bitmap []byte
	k      uint8
}

// 对于给定的误判率和entries数量，计算每个key需要的bit数
func bitsPerkey(entriesNum int, probability float64) int {
	size := -1 * float64(entriesNum) * math.Log(probability) / math.Pow(float64(0.69314718056), 2)
	return int(math.Ceil(size / float64(entriesNum)))
}

func initFilter(entriesNum, bitsperkey int) *BloomFilter {
	bf := &BloomFilter{}
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
	bf.k = uint8(k)

	size := entriesNum * bitsperkey
	if size < 64 {
		size = 64
	}
	nBytes := (size + 7) / 8
	bf.bitmap = make([]byte, nBytes)
	return bf
}

func newFilter(entriesNum int, probability float64) *BloomFilter {
	return initFilter(entriesNum, bitsPerkey(entriesNum, probability))
}

func (bf *BloomFilter) bits() uint32 {
	return uint32(8 * len(bf.bitmap))
}

func (bf *BloomFilter) Insert(hash uint32) {
	bits := bf.bits()
	delta := hash>>17 | hash<<15
	for j := uint8(0); j < bf.k; j++ {
		offset := hash % bits
		bf.bitmap[offset/8] |= 1 << (offset % 8)
		hash += delta
	}
}

func (bf *BloomFilter) MayContain(hash uint32) bool {
	bits := bf.bits()
	delta := hash>>17 | hash<<15
	for j := uint8(0); j < bf.k; j++ {
		offset := hash % bits
		if bf.bitmap[offset/8]&(1<<(offset%8)) == 0 {
			return false
		}
		hash += delta
	}
	return true
}

// Allow 检查是否存在，不存在就插入，返回插入前是否存在
func (bf *BloomFilter) Allow(hash uint32) bool {
	if bf == nil {
		return true
	}
	already := bf.MayContain(hash)
	if !already {
		bf.Insert(hash)
	}
	return already
}

func (bf *BloomFilter) reset() {
	if bf == nil {
		return
	}
	for i := range bf.bitmap {
		bf.bitmap[i] = 0
	}
}
