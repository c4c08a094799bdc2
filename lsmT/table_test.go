package lsmt

import (
	"context"
	"fmt"
	"os"
	"testing"

	"lsmkv/file"
	"lsmkv/utils"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableBuilderSplitsBlocks(t *testing.T) {
	dir := t.TempDir()
	tb := NewTableBuilder(20)
	tb.Add([]byte("a"), []byte("1"))
	tb.Add([]byte("b"), []byte("2"))
	require.Equal(t, 0, tb.EstimatedSize())
	tb.Add([]byte("c"), []byte("3"))
	// 第一个block已经封装
	require.Equal(t, 18, tb.EstimatedSize())

	tbl, err := tb.Build(1, nil, utils.FileNameSSTable(dir, 1))
	require.NoError(t, err)
	defer tbl.DecrRef()

	require.Equal(t, 2, tbl.NumBlocks())
	require.Equal(t, []BlockMeta{
		{Offset: 0, FirstKey: []byte("a"), LastKey: []byte("b")},
		{Offset: 18, FirstKey: []byte("c"), LastKey: []byte("c")},
	}, tbl.BlockMeta())
	require.Equal(t, "a", string(tbl.FirstKey()))
	require.Equal(t, "c", string(tbl.LastKey()))
	// block(18) + block(10) + meta(10+10) + meta_offset(4)
	require.Equal(t, int64(52), tbl.Size())

	iter, err := NewTableIteratorSeekToFirst(tbl)
	require.NoError(t, err)
	require.Equal(t, []kv{{"a", "1"}, {"b", "2"}, {"c", "3"}}, collect(t, iter))
	require.NoError(t, iter.Close())
}

func TestTableFileLayout(t *testing.T) {
	dir := t.TempDir()
	tbl := buildTable(t, dir, 1, 20, "a", "1", "b", "2", "c", "3")
	defer tbl.DecrRef()

	buf, err := os.ReadFile(utils.FileNameSSTable(dir, 1))
	require.NoError(t, err)
	want := []byte{
		// block 0
		0, 1, 'a', 0, 1, '1', 0, 1, 'b', 0, 1, '2', 0, 0, 0, 6, 0, 2,
		// block 1
		0, 1, 'c', 0, 1, '3', 0, 0, 0, 1,
		// block meta
		0, 0, 0, 0, 0, 1, 'a', 0, 1, 'b',
		0, 0, 0, 18, 0, 1, 'c', 0, 1, 'c',
		// meta offset
		0, 0, 0, 28,
	}
	require.Equal(t, want, buf)
}

func TestTableSingleBlock(t *testing.T) {
	dir := t.TempDir()
	tbl := buildTable(t, dir, 1, 4096, "a", "1", "b", "2")
	defer tbl.DecrRef()

	require.Equal(t, 1, tbl.NumBlocks())
	blk, err := tbl.ReadBlock(0)
	require.NoError(t, err)
	require.Equal(t, []kv{{"a", "1"}, {"b", "2"}}, collect(t, NewBlockIteratorSeekToFirst(blk, nil)))
}

func TestTableBuilderPanics(t *testing.T) {
	tb := NewTableBuilder(4096)
	require.True(t, tb.IsEmpty())
	require.PanicsWithValue(t, utils.ErrEmptyTable, func() {
		_, _ = tb.Build(1, nil, utils.FileNameSSTable(t.TempDir(), 1))
	})

	tb.Add([]byte("b"), []byte("1"))
	require.False(t, tb.IsEmpty())
	require.Panics(t, func() { tb.Add([]byte("a"), []byte("2")) })
	// 重复的key同样不允许
	require.Panics(t, func() { tb.Add([]byte("b"), []byte("2")) })
}

func TestTableReopen(t *testing.T) {
	dir := t.TempDir()
	kvs := rangeKVs("key", 0, 500, "v")
	tbl := buildTable(t, dir, 7, 256, kvs...)
	require.Greater(t, tbl.NumBlocks(), 1)
	metas := tbl.BlockMeta()
	require.NoError(t, tbl.DecrRef())

	obj, err := file.Open(utils.FileNameSSTable(dir, 7))
	require.NoError(t, err)
	reopened, err := OpenTable(7, nil, obj, nil)
	require.NoError(t, err)
	defer reopened.DecrRef()

	require.Equal(t, metas, reopened.BlockMeta())
	require.Equal(t, "key000", string(reopened.FirstKey()))
	require.Equal(t, "key499", string(reopened.LastKey()))

	iter, err := NewTableIteratorSeekToFirst(reopened)
	require.NoError(t, err)
	defer iter.Close()
	entries := collect(t, iter)
	require.Len(t, entries, 500)
	for i, e := range entries {
		require.Equal(t, kvs[2*i], e.key)
		require.Equal(t, kvs[2*i+1], e.value)
	}
}

func TestTableIteratorSeekToKey(t *testing.T) {
	dir := t.TempDir()
	// 只有偶数key
	var kvs []string
	for i := 0; i < 200; i += 2 {
		key := fmt.Sprintf("key%03d", i)
		kvs = append(kvs, key, key)
	}
	tbl := buildTable(t, dir, 1, 128, kvs...)
	defer tbl.DecrRef()
	require.Greater(t, tbl.NumBlocks(), 1)

	for i := 0; i < 200; i++ {
		iter, err := NewTableIteratorSeekToKey(tbl, []byte(fmt.Sprintf("key%03d", i)))
		require.NoError(t, err)
		want := i + i%2
		if want >= 200 {
			require.False(t, iter.Valid())
		} else {
			require.True(t, iter.Valid())
			require.Equal(t, fmt.Sprintf("key%03d", want), string(iter.Key()))
		}
		require.NoError(t, iter.Close())
	}

	iter, err := NewTableIteratorSeekToKey(tbl, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, "key000", string(iter.Key()))
	require.NoError(t, iter.Close())

	iter, err = NewTableIteratorSeekToKey(tbl, []byte("z"))
	require.NoError(t, err)
	require.False(t, iter.Valid())
	require.NoError(t, iter.Close())
}

func TestTableFindBlockIdx(t *testing.T) {
	dir := t.TempDir()
	tbl := buildTable(t, dir, 1, 20, "b", "1", "c", "2", "e", "3", "f", "4", "h", "5")
	defer tbl.DecrRef()
	require.Equal(t, 3, tbl.NumBlocks())

	assert.Equal(t, 0, tbl.FindBlockIdx([]byte("a")))
	assert.Equal(t, 0, tbl.FindBlockIdx([]byte("b")))
	assert.Equal(t, 0, tbl.FindBlockIdx([]byte("d")))
	assert.Equal(t, 1, tbl.FindBlockIdx([]byte("e")))
	assert.Equal(t, 1, tbl.FindBlockIdx([]byte("g")))
	assert.Equal(t, 2, tbl.FindBlockIdx([]byte("h")))
	assert.Equal(t, 2, tbl.FindBlockIdx([]byte("z")))
}

func TestTableGet(t *testing.T) {
	dir := t.TempDir()
	tb := NewTableBuilderWithOptions(BuilderOptions{BlockSize: 64, BloomFalsePositive: 0.01})
	kvs := []string{"apple", "red", "banana", "", "cherry", "dark"}
	for i := 0; i < len(kvs); i += 2 {
		tb.Add([]byte(kvs[i]), []byte(kvs[i+1]))
	}
	tbl, err := tb.Build(1, nil, utils.FileNameSSTable(dir, 1))
	require.NoError(t, err)
	defer tbl.DecrRef()

	val, err := tbl.Get([]byte("apple"))
	require.NoError(t, err)
	require.Equal(t, []byte("red"), val)

	// 墓碑返回空的value
	val, err = tbl.Get([]byte("banana"))
	require.NoError(t, err)
	require.NotNil(t, val)
	require.Empty(t, val)

	for _, key := range []string{"aaa", "blueberry", "zebra"} {
		_, err = tbl.Get([]byte(key))
		require.Equal(t, utils.ErrKeyNotFound, err, key)
	}
	require.True(t, tbl.MayContain([]byte("cherry")))
}

func TestTableVersionedKeys(t *testing.T) {
	dir := t.TempDir()
	cmp := utils.TimestampComparer
	tb := NewTableBuilderWithOptions(BuilderOptions{BlockSize: 64, Comparer: cmp, BloomFalsePositive: 0.01})
	tb.Add(utils.KeyWithTS([]byte("a"), 2), []byte("a2"))
	tb.Add(utils.KeyWithTS([]byte("a"), 1), []byte("a1"))
	tb.Add(utils.KeyWithTS([]byte("b"), 5), []byte("b5"))
	tbl, err := tb.Build(1, nil, utils.FileNameSSTable(dir, 1))
	require.NoError(t, err)
	defer tbl.DecrRef()

	require.Equal(t, uint64(5), tbl.MaxTs())

	val, err := tbl.Get(utils.KeyWithTS([]byte("a"), 3))
	require.NoError(t, err)
	require.Equal(t, "a2", string(val))

	val, err = tbl.Get(utils.KeyWithTS([]byte("a"), 1))
	require.NoError(t, err)
	require.Equal(t, "a1", string(val))

	// a@0之后的第一个key是b@5
	_, err = tbl.Get(utils.KeyWithTS([]byte("a"), 0))
	require.Equal(t, utils.ErrKeyNotFound, err)

	obj, err := file.Open(utils.FileNameSSTable(dir, 1))
	require.NoError(t, err)
	reopened, err := OpenTable(1, nil, obj, cmp)
	require.NoError(t, err)
	defer reopened.DecrRef()
	require.Equal(t, uint64(5), reopened.MaxTs())
	// 没有持久化bloomFilter
	require.True(t, reopened.MayContain(utils.KeyWithTS([]byte("zzz"), 1)))
}

func TestOpenCorruptedTable(t *testing.T) {
	dir := t.TempDir()
	cases := map[string][]byte{
		"too short":          {0, 0},
		"meta offset beyond": {0, 0, 0, 9},
		"no blocks":          {0, 0, 0, 0},
		"truncated meta":     {1, 2, 3, 0, 0, 0, 0, 0, 0, 0, 0},
	}
	id := uint64(0)
	for name, buf := range cases {
		id++
		t.Run(name, func(t *testing.T) {
			obj, err := file.Create(utils.FileNameSSTable(dir, id), buf)
			require.NoError(t, err)
			defer obj.Close()
			_, err = OpenTable(id, nil, obj, nil)
			require.Error(t, err)
			require.Equal(t, utils.ErrCorruptedTable, errors.Cause(err))
		})
	}
}

func TestOpenTables(t *testing.T) {
	dir := t.TempDir()
	for id := uint64(1); id <= 3; id++ {
		tbl := buildTable(t, dir, id, 64, rangeKVs(fmt.Sprintf("t%d-", id), 0, 10, "v")...)
		require.NoError(t, tbl.DecrRef())
	}
	ids, err := utils.LoadIDMap(dir)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, ids)

	tables, err := OpenTables(context.Background(), dir, ids, nil, nil)
	require.NoError(t, err)
	require.Len(t, tables, 3)
	for i, tbl := range tables {
		require.Equal(t, ids[i], tbl.ID())
		require.Equal(t, fmt.Sprintf("t%d-000", ids[i]), string(tbl.FirstKey()))
		require.NoError(t, tbl.DecrRef())
	}

	_, err = OpenTables(context.Background(), dir, []uint64{1, 4}, nil, nil)
	require.Error(t, err)
}

func TestTableRefCounting(t *testing.T) {
	dir := t.TempDir()
	tbl := buildTable(t, dir, 1, 64, rangeKVs("key", 0, 20, "v")...)
	path := utils.FileNameSSTable(dir, 1)
	require.Equal(t, int32(1), refs(tbl))

	iter, err := NewTableIteratorSeekToFirst(tbl)
	require.NoError(t, err)
	require.Equal(t, int32(2), refs(tbl))

	// 迭代器还持有引用，文件不会被删除
	tbl.MarkObsolete()
	require.NoError(t, tbl.DecrRef())
	_, err = os.Stat(path)
	require.NoError(t, err)
	require.Len(t, collect(t, iter), 20)

	require.NoError(t, iter.Close())
	require.NoError(t, iter.Close())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestTableBlockCache(t *testing.T) {
	dir := t.TempDir()
	metrics := NewMetrics()
	cache := NewBlockCache(64, metrics)
	tb := NewTableBuilderWithOptions(BuilderOptions{BlockSize: 64, Metrics: metrics})
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("key%03d", i)
		tb.Add([]byte(key), []byte(key))
	}
	tbl, err := tb.Build(1, cache, utils.FileNameSSTable(dir, 1))
	require.NoError(t, err)
	require.Greater(t, tbl.NumBlocks(), 1)
	require.Equal(t, float64(1), counterValue(t, metrics.TablesWritten))
	require.Equal(t, float64(tbl.Size()), counterValue(t, metrics.BytesWritten))

	b1, err := tbl.ReadBlockCached(0)
	require.NoError(t, err)
	b2, err := tbl.ReadBlockCached(0)
	require.NoError(t, err)
	require.Same(t, b1, b2)
	require.Equal(t, float64(1), counterValue(t, metrics.BlockCacheMisses))
	require.Equal(t, float64(1), counterValue(t, metrics.BlockCacheHits))
	require.Equal(t, 1, cache.Len())

	// 最后一个引用释放时清理cache
	require.NoError(t, tbl.DecrRef())
	require.Equal(t, 0, cache.Len())
}
