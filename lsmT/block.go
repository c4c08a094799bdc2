package lsmt

import (
	"encoding/binary"
	"math"

	"lsmkv/utils"

	"github.com/pkg/errors"
)

/*
	block 的编码，所有整数都是大端
	+-------------------------------------------------------------+
	| entry | entry | ... | offset(u16) | ... | num_offsets(u16)  |
	+-------------------------------------------------------------+
	entry:
	+-------------------------------------------+
	| key_len(u16) | key | value_len(u16) | value |
	+-------------------------------------------+
*/

const (
	sizeOfU16 = 2
	sizeOfU32 = 4
)

// Block 是sstable中最小的存储和缓存单元，构建后不可修改
type Block struct {
	data    []byte
	offsets []uint16
}

// Encode 将block编码为 data + offsets + num_offsets
func (b *Block) Encode() []byte {
	buf := make([]byte, 0, len(b.data)+len(b.offsets)*sizeOfU16+sizeOfU16)
	buf = append(buf, b.data...)
	for _, off := range b.offsets {
		buf = binary.BigEndian.AppendUint16(buf, off)
	}
	return binary.BigEndian.AppendUint16(buf, uint16(len(b.offsets)))
}

// DecodeBlock 从buf中解码出block，数据会被拷贝，返回的block不再引用buf
func DecodeBlock(buf []byte) (*Block, error) {
	if len(buf) < sizeOfU16 {
		return nil, errors.Wrapf(utils.ErrCorruptedBlock, "block too short: %d", len(buf))
	}
	num := int(binary.BigEndian.Uint16(buf[len(buf)-sizeOfU16:]))
	dataEnd := len(buf) - sizeOfU16 - num*sizeOfU16
	if dataEnd < 0 {
		return nil, errors.Wrapf(utils.ErrCorruptedBlock, "num_offsets %d exceeds block size %d", num, len(buf))
	}

	offsets := make([]uint16, num)
	raw := buf[dataEnd : len(buf)-sizeOfU16]
	for i := range offsets {
		offsets[i] = binary.BigEndian.Uint16(raw[i*sizeOfU16:])
	}
	b := &Block{
		data:    append([]byte(nil), buf[:dataEnd]...),
		offsets: offsets,
	}
	if err := b.verify(); err != nil {
		return nil, err
	}
	return b, nil
}

// 检查每个offset都指向一个完整的entry，并且offset严格递增
func (b *Block) verify() error {
	prev := -1
	for i, off := range b.offsets {
		if int(off) <= prev {
			return errors.Wrapf(utils.ErrCorruptedBlock, "offset %d not increasing at %d", off, i)
		}
		prev = int(off)
		if _, _, ok := b.entryAt(int(off)); !ok {
			return errors.Wrapf(utils.ErrCorruptedBlock, "entry %d at offset %d out of range", i, off)
		}
	}
	return nil
}

// 解码offset处的entry，越界返回false
func (b *Block) entryAt(off int) (key, value []byte, ok bool) {
	data := b.data
	if off+sizeOfU16 > len(data) {
		return nil, nil, false
	}
	keyLen := int(binary.BigEndian.Uint16(data[off:]))
	pos := off + sizeOfU16
	if pos+keyLen+sizeOfU16 > len(data) {
		return nil, nil, false
	}
	key = data[pos : pos+keyLen]
	pos += keyLen
	valueLen := int(binary.BigEndian.Uint16(data[pos:]))
	pos += sizeOfU16
	if pos+valueLen > len(data) {
		return nil, nil, false
	}
	return key, data[pos : pos+valueLen], true
}

// 第idx个entry
func (b *Block) entry(idx int) (key, value []byte) {
	key, value, _ = b.entryAt(int(b.offsets[idx]))
	return key, value
}

// NumEntries block中entry的个数
func (b *Block) NumEntries() int {
	return len(b.offsets)
}

// BlockBuilder 向一个block中追加有序的entry
type BlockBuilder struct {
	offsets   []uint16
	data      []byte
	blockSize int
}

// NewBlockBuilder 创建一个目标大小为blockSize的builder
func NewBlockBuilder(blockSize int) *BlockBuilder {
	return &BlockBuilder{blockSize: blockSize}
}

// EstimatedSize 当前编码后的大小: num_offsets + offsets + data
func (bb *BlockBuilder) EstimatedSize() int {
	return sizeOfU16 + len(bb.offsets)*sizeOfU16 + len(bb.data)
}

// Add 追加一个entry；block已经有entry并且加入后会超过blockSize时拒绝，返回false。
// 第一个entry总是会被接受。
func (bb *BlockBuilder) Add(key, value []byte) bool {
	utils.CondPanic(len(key) == 0, utils.ErrEmptyKey)
	utils.AssertTruef(len(key) <= math.MaxUint16 && len(value) <= math.MaxUint16,
		"entry too large: key %d bytes, value %d bytes", len(key), len(value))

	if !bb.IsEmpty() {
		// key_len + value_len + offset
		if bb.EstimatedSize()+len(key)+len(value)+sizeOfU16*3 > bb.blockSize {
			return false
		}
		// offset只有16位
		if len(bb.data) > math.MaxUint16 {
			return false
		}
	}

	bb.offsets = append(bb.offsets, uint16(len(bb.data)))
	bb.data = binary.BigEndian.AppendUint16(bb.data, uint16(len(key)))
	bb.data = append(bb.data, key...)
	bb.data = binary.BigEndian.AppendUint16(bb.data, uint16(len(value)))
	bb.data = append(bb.data, value...)
	return true
}

func (bb *BlockBuilder) IsEmpty() bool {
	return len(bb.offsets) == 0
}

// Build 生成block，空的builder会panic
func (bb *BlockBuilder) Build() *Block {
	utils.CondPanic(bb.IsEmpty(), utils.ErrEmptyBlock)
	return &Block{
		data:    bb.data,
		offsets: bb.offsets,
	}
}
