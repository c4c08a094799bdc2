package lsmt

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync/atomic"

	"lsmkv/file"
	"lsmkv/utils"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// BlockMeta 记录一个block在sstable中的位置和key的范围
type BlockMeta struct {
	Offset   uint32
	FirstKey []byte
	LastKey  []byte
}

// 将metas依次编码追加到buf之后
func encodeBlockMeta(metas []BlockMeta, buf []byte) []byte {
	for _, m := range metas {
		buf = binary.BigEndian.AppendUint32(buf, m.Offset)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.FirstKey)))
		buf = append(buf, m.FirstKey...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.LastKey)))
		buf = append(buf, m.LastKey...)
	}
	return buf
}

// 解码meta section，key会被拷贝出来
func decodeBlockMeta(buf []byte) ([]BlockMeta, error) {
	var metas []BlockMeta
	readKey := func() ([]byte, error) {
		if len(buf) < sizeOfU16 {
			return nil, errors.Wrap(utils.ErrCorruptedTable, "truncated key length")
		}
		n := int(binary.BigEndian.Uint16(buf))
		buf = buf[sizeOfU16:]
		if len(buf) < n {
			return nil, errors.Wrapf(utils.ErrCorruptedTable, "truncated key: want %d bytes, have %d", n, len(buf))
		}
		key := append([]byte(nil), buf[:n]...)
		buf = buf[n:]
		return key, nil
	}
	for len(buf) > 0 {
		if len(buf) < sizeOfU32 {
			return nil, errors.Wrap(utils.ErrCorruptedTable, "truncated block offset")
		}
		m := BlockMeta{Offset: binary.BigEndian.Uint32(buf)}
		buf = buf[sizeOfU32:]
		var err error
		if m.FirstKey, err = readKey(); err != nil {
			return nil, err
		}
		if m.LastKey, err = readKey(); err != nil {
			return nil, err
		}
		metas = append(metas, m)
	}
	return metas, nil
}

// Table 是一个打开的sstable，构建之后只读。
// Build/OpenTable返回的Table持有一个引用，引用归零时关闭文件，标记为obsolete的会同时删除文件。
type Table struct {
	id              uint64
	file            *file.Object
	blockMeta       []BlockMeta
	blockMetaOffset uint32
	cache           *BlockCache
	firstKey        []byte
	lastKey         []byte
	bloom           utils.Filter
	maxTs           uint64
	cmp             *utils.Comparer

	ref      int32
	obsolete atomic.Bool
}

// OpenTable 从file中解析出sstable，cmp为nil时按字节序
func OpenTable(id uint64, cache *BlockCache, obj *file.Object, cmp *utils.Comparer) (*Table, error) {
	if cmp == nil {
		cmp = utils.DefaultComparer
	}
	size := int(obj.Size())
	if size < sizeOfU32 {
		return nil, errors.Wrapf(utils.ErrCorruptedTable, "sstable %d too short: %d bytes", id, size)
	}
	footer, err := obj.Read(size-sizeOfU32, sizeOfU32)
	if err != nil {
		return nil, err
	}
	metaOffset := int(binary.BigEndian.Uint32(footer))
	if metaOffset > size-sizeOfU32 {
		return nil, errors.Wrapf(utils.ErrCorruptedTable, "sstable %d meta offset %d beyond %d", id, metaOffset, size-sizeOfU32)
	}
	metaBuf, err := obj.Read(metaOffset, size-sizeOfU32-metaOffset)
	if err != nil {
		return nil, err
	}
	metas, err := decodeBlockMeta(metaBuf)
	if err != nil {
		return nil, errors.WithMessagef(err, "sstable %d", id)
	}
	if len(metas) == 0 {
		return nil, errors.Wrapf(utils.ErrCorruptedTable, "sstable %d has no blocks", id)
	}
	for i, m := range metas {
		end := uint32(metaOffset)
		if i+1 < len(metas) {
			end = metas[i+1].Offset
		}
		if m.Offset >= end {
			return nil, errors.Wrapf(utils.ErrCorruptedTable, "sstable %d block %d has bad range [%d, %d)", id, i, m.Offset, end)
		}
	}

	t := &Table{
		id:              id,
		file:            obj,
		blockMeta:       metas,
		blockMetaOffset: uint32(metaOffset),
		cache:           cache,
		firstKey:        metas[0].FirstKey,
		lastKey:         metas[len(metas)-1].LastKey,
		cmp:             cmp,
		ref:             1,
	}
	// 没有持久化max_ts，只能从每个block的边界key上恢复一个下界
	for _, m := range metas {
		if ts := cmp.Timestamp(m.FirstKey); ts > t.maxTs {
			t.maxTs = ts
		}
		if ts := cmp.Timestamp(m.LastKey); ts > t.maxTs {
			t.maxTs = ts
		}
	}
	return t, nil
}

// OpenTables 并发打开dir下的多个sstable，任意一个失败会关闭已经打开的
func OpenTables(ctx context.Context, dir string, ids []uint64, cache *BlockCache, cmp *utils.Comparer) ([]*Table, error) {
	tables := make([]*Table, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			obj, err := file.Open(utils.FileNameSSTable(dir, id))
			if err != nil {
				return err
			}
			t, err := OpenTable(id, cache, obj, cmp)
			if err != nil {
				_ = obj.Close()
				return err
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, t := range tables {
			if t != nil {
				_ = t.DecrRef()
			}
		}
		return nil, err
	}
	return tables, nil
}

func (t *Table) ID() uint64 {
	return t.id
}

func (t *Table) FirstKey() []byte {
	return t.firstKey
}

func (t *Table) LastKey() []byte {
	return t.lastKey
}

// Size sstable文件的大小
func (t *Table) Size() int64 {
	return t.file.Size()
}

func (t *Table) MaxTs() uint64 {
	return t.maxTs
}

func (t *Table) NumBlocks() int {
	return len(t.blockMeta)
}

func (t *Table) BlockMeta() []BlockMeta {
	return t.blockMeta
}

func (t *Table) Comparer() *utils.Comparer {
	return t.cmp
}

// ReadBlock 从文件中读取并解码第idx个block
func (t *Table) ReadBlock(idx int) (*Block, error) {
	utils.CondPanic(idx < 0 || idx >= len(t.blockMeta), fmt.Errorf("block idx %d out of range [0, %d)", idx, len(t.blockMeta)))
	offset := t.blockMeta[idx].Offset
	end := t.blockMetaOffset
	if idx+1 < len(t.blockMeta) {
		end = t.blockMeta[idx+1].Offset
	}
	data, err := t.file.Read(int(offset), int(end-offset))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read from sstable: %d at offset: %d, len: %d", t.id, offset, end-offset)
	}
	b, err := DecodeBlock(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "sstable %d block %d", t.id, idx)
	}
	return b, nil
}

// ReadBlockCached 先查询block cache，没有cache时直接读文件
func (t *Table) ReadBlockCached(idx int) (*Block, error) {
	if t.cache == nil {
		return t.ReadBlock(idx)
	}
	return t.cache.GetOrLoad(t.id, idx, func() (*Block, error) {
		return t.ReadBlock(idx)
	})
}

// FindBlockIdx 找到可能包含key的block: 最后一个 first_key <= key 的block，key比所有block都小时返回0
func (t *Table) FindBlockIdx(key []byte) int {
	idx := sort.Search(len(t.blockMeta), func(i int) bool {
		return t.cmp.Compare(t.blockMeta[i].FirstKey, key) > 0
	})
	if idx > 0 {
		idx--
	}
	return idx
}

// MayContain 通过bloomFilter判断key的realKey是否可能存在，没有filter时总是返回true
func (t *Table) MayContain(key []byte) bool {
	if t.bloom == nil {
		return true
	}
	return t.bloom.MayContainKey(t.cmp.Split(key))
}

// Get 返回第一个 >= key 并且realKey相同的entry的value。
// 空value是合法的墓碑值，不存在时返回utils.ErrKeyNotFound
func (t *Table) Get(key []byte) ([]byte, error) {
	if !t.MayContain(key) {
		return nil, utils.ErrKeyNotFound
	}
	if t.cmp.Compare(key, t.lastKey) > 0 {
		return nil, utils.ErrKeyNotFound
	}
	iter, err := NewTableIteratorSeekToKey(t, key)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	if !iter.Valid() || !t.cmp.SameUserKey(iter.Key(), key) {
		return nil, utils.ErrKeyNotFound
	}
	return append([]byte{}, iter.Value()...), nil
}

// 引用次数自增1
func (t *Table) IncrRef() {
	atomic.AddInt32(&t.ref, 1)
}

// 引用减一；归零时清理cache中的block，obsolete的table会删除文件，否则只关闭文件
func (t *Table) DecrRef() error {
	ref := atomic.AddInt32(&t.ref, -1)
	utils.AssertTruef(ref >= 0, "sstable %d ref count below zero", t.id)
	if ref > 0 {
		return nil
	}
	if t.cache != nil {
		t.cache.Evict(t.id, len(t.blockMeta))
	}
	if t.obsolete.Load() {
		return t.file.Delete()
	}
	return t.file.Close()
}

// MarkObsolete 标记table已经被compaction替换，最后一个引用释放时删除文件
func (t *Table) MarkObsolete() {
	t.obsolete.Store(true)
}

func (t *Table) String() string {
	return fmt.Sprintf("sst(%d)[%q, %q]", t.id, t.firstKey, t.lastKey)
}
