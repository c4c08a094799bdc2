package lsmt

import (
	"testing"

	"lsmkv/utils"

	"github.com/stretchr/testify/require"
)

func blockIter(t *testing.T, kvs ...string) utils.Iterator {
	if len(kvs) == 0 {
		// 空的迭代器
		b := buildBlock(t, "-", "")
		iter := NewBlockIteratorSeekToFirst(b, nil)
		require.NoError(t, iter.Next())
		return iter
	}
	return NewBlockIteratorSeekToFirst(buildBlock(t, kvs...), nil)
}

func TestMergeIterator(t *testing.T) {
	iter := NewMergeIterator(nil, []utils.Iterator{
		blockIter(t, "a", "1.0", "c", "1.0"),
		blockIter(t, "a", "2.1", "b", "2.1"),
		blockIter(t, "c", "3.2", "d", "3.2"),
	})
	require.Equal(t, 3, iter.NumActiveIterators())
	require.Equal(t, []kv{{"a", "1.0"}, {"b", "2.1"}, {"c", "1.0"}, {"d", "3.2"}}, collect(t, iter))
	require.Equal(t, 0, iter.NumActiveIterators())
	require.Panics(t, func() { iter.Key() })
	require.NoError(t, iter.Close())
}

func TestMergeIteratorSkipsInvalid(t *testing.T) {
	iter := NewMergeIterator(nil, []utils.Iterator{
		blockIter(t),
		blockIter(t, "b", "1"),
		blockIter(t),
	})
	require.Equal(t, []kv{{"b", "1"}}, collect(t, iter))
	require.NoError(t, iter.Close())

	iter = NewMergeIterator(nil, nil)
	require.False(t, iter.Valid())
	require.NoError(t, iter.Close())
}

func TestMergeIteratorNewestWins(t *testing.T) {
	// 同一个key在所有迭代器中都存在，下标最小的胜出
	iter := NewMergeIterator(nil, []utils.Iterator{
		blockIter(t, "k", "new"),
		blockIter(t, "k", "mid", "z", "mid"),
		blockIter(t, "a", "old", "k", "old"),
	})
	require.Equal(t, []kv{{"a", "old"}, {"k", "new"}, {"z", "mid"}}, collect(t, iter))
	require.NoError(t, iter.Close())
}

func TestTwoMergeIterator(t *testing.T) {
	iter, err := NewTwoMergeIterator(nil,
		blockIter(t, "a", "a", "c", "a"),
		blockIter(t, "a", "b", "b", "b", "d", "b"))
	require.NoError(t, err)
	require.Equal(t, 2, iter.NumActiveIterators())
	require.Equal(t, []kv{{"a", "a"}, {"b", "b"}, {"c", "a"}, {"d", "b"}}, collect(t, iter))
	require.NoError(t, iter.Close())
}

func TestTwoMergeIteratorEmptySide(t *testing.T) {
	iter, err := NewTwoMergeIterator(nil, blockIter(t), blockIter(t, "a", "1", "b", "2"))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, collectKeys(t, iter))

	iter, err = NewTwoMergeIterator(nil, blockIter(t, "a", "1"), blockIter(t))
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, collectKeys(t, iter))

	iter, err = NewTwoMergeIterator(nil, blockIter(t), blockIter(t))
	require.NoError(t, err)
	require.False(t, iter.Valid())
	require.Panics(t, func() { iter.Value() })
}

func TestMergeTablesAndConcat(t *testing.T) {
	dir := t.TempDir()
	newer := buildTable(t, dir, 3, 64, "b", "new", "g", "new")
	older := []*Table{
		buildTable(t, dir, 1, 64, "a", "old", "b", "old"),
		buildTable(t, dir, 2, 64, "f", "old", "g", "old"),
	}
	defer func() {
		for _, tbl := range append(older, newer) {
			require.NoError(t, tbl.DecrRef())
		}
	}()

	a, err := NewTableIteratorSeekToFirst(newer)
	require.NoError(t, err)
	b, err := NewConcatIteratorSeekToFirst(older)
	require.NoError(t, err)
	iter, err := NewTwoMergeIterator(nil, a, b)
	require.NoError(t, err)
	require.Equal(t, []kv{{"a", "old"}, {"b", "new"}, {"f", "old"}, {"g", "new"}}, collect(t, iter))
	require.NoError(t, iter.Close())
	for _, tbl := range append(older, newer) {
		require.Equal(t, int32(1), refs(tbl))
	}
}
