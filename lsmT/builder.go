package lsmt

import (
	"encoding/binary"
	"math"

	"lsmkv/file"
	"lsmkv/utils"

	"github.com/pkg/errors"
)

/*
	sstable 的编码
	+------------------------------------------------------------------+
	| block | block | ... | block_meta | block_meta | ... | meta_offset(u32) |
	+------------------------------------------------------------------+
	block_meta:
	+----------------------------------------------------------------------------+
	| offset(u32) | first_key_len(u16) | first_key | last_key_len(u16) | last_key |
	+----------------------------------------------------------------------------+
*/

// BuilderOptions 构建sstable时需要的配置
type BuilderOptions struct {
	BlockSize int
	Comparer  *utils.Comparer
	// 大于0时为table生成内存中的bloomFilter
	BloomFalsePositive float64
	Metrics            *Metrics
}

// TableBuilder 驱动一系列BlockBuilder生成一个sstable
type TableBuilder struct {
	opt     BuilderOptions
	builder *BlockBuilder
	// 当前block的第一个和最后一个key
	firstKey []byte
	lastKey  []byte
	// 已经封装好的block
	data []byte
	meta []BlockMeta
	// 所有realKey的hash，用于生成bloomFilter
	keyHashes []uint32
	maxTs     uint64
}

// NewTableBuilder 创建一个block目标大小为blockSize的builder，key按字节序排序
func NewTableBuilder(blockSize int) *TableBuilder {
	return NewTableBuilderWithOptions(BuilderOptions{BlockSize: blockSize})
}

func NewTableBuilderWithOptions(opt BuilderOptions) *TableBuilder {
	if opt.Comparer == nil {
		opt.Comparer = utils.DefaultComparer
	}
	return &TableBuilder{
		opt:     opt,
		builder: NewBlockBuilder(opt.BlockSize),
	}
}

// Add 写入一个entry，key必须严格递增；当前block满了会先封装block再写入新的block
func (tb *TableBuilder) Add(key, value []byte) {
	if len(tb.lastKey) > 0 {
		utils.AssertTruef(tb.opt.Comparer.Compare(tb.lastKey, key) < 0,
			"keys must be added in strictly increasing order: %q then %q", tb.lastKey, key)
	}

	if !tb.builder.Add(key, value) {
		tb.finishBlock()
		// 新的block一定能放下一个entry
		utils.CondPanic(!tb.builder.Add(key, value), utils.ErrBlockReject)
	}
	if len(tb.firstKey) == 0 {
		tb.firstKey = append([]byte(nil), key...)
	}
	tb.lastKey = utils.SafeCopy(tb.lastKey, key)

	if tb.opt.BloomFalsePositive > 0 {
		tb.keyHashes = append(tb.keyHashes, utils.Hash(tb.opt.Comparer.Split(key)))
	}
	if ts := tb.opt.Comparer.Timestamp(key); ts > tb.maxTs {
		tb.maxTs = ts
	}
}

// 封装当前的block，并换上一个新的BlockBuilder
func (tb *TableBuilder) finishBlock() {
	if tb.builder.IsEmpty() {
		return
	}
	builder := tb.builder
	tb.builder = NewBlockBuilder(tb.opt.BlockSize)

	utils.AssertTruef(len(tb.data) <= math.MaxUint32, "sstable too large: %d bytes", len(tb.data))
	tb.meta = append(tb.meta, BlockMeta{
		Offset:   uint32(len(tb.data)),
		FirstKey: tb.firstKey,
		LastKey:  append([]byte(nil), tb.lastKey...),
	})
	tb.data = append(tb.data, builder.Build().Encode()...)
	tb.firstKey = nil
}

// EstimatedSize 只统计已经封装好的block的大小
func (tb *TableBuilder) EstimatedSize() int {
	return len(tb.data)
}

// IsEmpty 是否还没有写入entry
func (tb *TableBuilder) IsEmpty() bool {
	return len(tb.meta) == 0 && tb.builder.IsEmpty()
}

// 生成完整的sstable编码
func (tb *TableBuilder) done() []byte {
	tb.finishBlock()
	utils.CondPanic(len(tb.meta) == 0, utils.ErrEmptyTable)

	metaOffset := len(tb.data)
	utils.AssertTruef(metaOffset <= math.MaxUint32, "sstable too large: %d bytes", metaOffset)
	buf := encodeBlockMeta(tb.meta, tb.data)
	return binary.BigEndian.AppendUint32(buf, uint32(metaOffset))
}

// Build 将sstable写入path，并返回持有一个引用的Table
func (tb *TableBuilder) Build(id uint64, cache *BlockCache, path string) (*Table, error) {
	buf := tb.done()
	obj, err := file.Create(path, buf)
	if err != nil {
		return nil, errors.WithMessagef(err, "while building sstable %d", id)
	}
	tb.opt.Metrics.tableWritten(int64(len(buf)))

	var bloom utils.Filter
	if tb.opt.BloomFalsePositive > 0 {
		bloom = utils.NewFilter(tb.keyHashes, utils.BitsPerkey(len(tb.keyHashes), tb.opt.BloomFalsePositive))
	}
	return &Table{
		id:              id,
		file:            obj,
		blockMeta:       tb.meta,
		blockMetaOffset: uint32(len(tb.data)),
		cache:           cache,
		firstKey:        tb.meta[0].FirstKey,
		lastKey:         tb.meta[len(tb.meta)-1].LastKey,
		bloom:           bloom,
		maxTs:           tb.maxTs,
		cmp:             tb.opt.Comparer,
		ref:             1,
	}, nil
}
