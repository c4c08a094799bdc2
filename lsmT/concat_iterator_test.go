package lsmt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// T1 [a, c]，T2 [f, h]
func buildGapTables(t *testing.T) []*Table {
	dir := t.TempDir()
	t1 := buildTable(t, dir, 1, 4096, "a", "1", "b", "2", "c", "3")
	t2 := buildTable(t, dir, 2, 4096, "f", "6", "g", "7", "h", "8")
	t.Cleanup(func() {
		require.NoError(t, t1.DecrRef())
		require.NoError(t, t2.DecrRef())
	})
	return []*Table{t1, t2}
}

func TestConcatIteratorSeekToFirst(t *testing.T) {
	tables := buildGapTables(t)
	iter, err := NewConcatIteratorSeekToFirst(tables)
	require.NoError(t, err)
	require.Equal(t, 1, iter.NumActiveIterators())
	require.Equal(t, []string{"a", "b", "c", "f", "g", "h"}, collectKeys(t, iter))
	require.False(t, iter.Valid())
	require.Panics(t, func() { iter.Key() })
	require.Panics(t, func() { iter.Value() })
	require.NoError(t, iter.Close())
}

func TestConcatIteratorSeekIntoGap(t *testing.T) {
	tables := buildGapTables(t)
	// d落在T1和T2之间，先定位到T1，T1遍历完之后换到T2的第一个entry
	iter, err := NewConcatIteratorSeekToKey(tables, []byte("d"))
	require.NoError(t, err)
	require.True(t, iter.Valid())
	require.Equal(t, "f", string(iter.Key()))
	require.Equal(t, "6", string(iter.Value()))
	require.Equal(t, []string{"f", "g", "h"}, collectKeys(t, iter))
	require.NoError(t, iter.Close())
}

func TestConcatIteratorSeekToKey(t *testing.T) {
	tables := buildGapTables(t)
	cases := []struct {
		key  string
		want []string
	}{
		{"a", []string{"a", "b", "c", "f", "g", "h"}},
		{"b", []string{"b", "c", "f", "g", "h"}},
		{"c", []string{"c", "f", "g", "h"}},
		{"cc", []string{"f", "g", "h"}},
		{"f", []string{"f", "g", "h"}},
		{"gg", []string{"h"}},
		{"h", []string{"h"}},
		// 在所有table之前
		{"0", []string{"a", "b", "c", "f", "g", "h"}},
		// 在所有table之后
		{"i", nil},
	}
	for _, c := range cases {
		iter, err := NewConcatIteratorSeekToKey(tables, []byte(c.key))
		require.NoError(t, err)
		require.Equal(t, c.want, collectKeys(t, iter), "seek %q", c.key)
		require.NoError(t, iter.Close())
	}
}

func TestConcatIteratorEmpty(t *testing.T) {
	iter, err := NewConcatIteratorSeekToFirst(nil)
	require.NoError(t, err)
	require.False(t, iter.Valid())
	require.NoError(t, iter.Close())

	iter, err = NewConcatIteratorSeekToKey(nil, []byte("a"))
	require.NoError(t, err)
	require.False(t, iter.Valid())
	require.NoError(t, iter.Close())
}

func TestConcatIteratorRejectsOverlap(t *testing.T) {
	dir := t.TempDir()
	t1 := buildTable(t, dir, 1, 4096, "a", "1", "c", "3")
	t2 := buildTable(t, dir, 2, 4096, "c", "3", "d", "4")
	t3 := buildTable(t, dir, 3, 4096, "e", "5")
	defer t1.DecrRef()
	defer t2.DecrRef()
	defer t3.DecrRef()

	require.Panics(t, func() { _, _ = NewConcatIteratorSeekToFirst([]*Table{t1, t2}) })
	require.Panics(t, func() { _, _ = NewConcatIteratorSeekToKey([]*Table{t3, t1}, []byte("a")) })
	// 断言失败时不会持有引用
	require.Equal(t, int32(1), refs(t1))
	require.Equal(t, int32(1), refs(t2))
}

func TestConcatIteratorManyBlocks(t *testing.T) {
	dir := t.TempDir()
	var tables []*Table
	var want []string
	for i := 0; i < 4; i++ {
		kvs := rangeKVs("key", i*100, i*100+50, "v")
		tables = append(tables, buildTable(t, dir, uint64(i+1), 128, kvs...))
		for j := 0; j < len(kvs); j += 2 {
			want = append(want, kvs[j])
		}
	}
	defer func() {
		for _, tbl := range tables {
			require.NoError(t, tbl.DecrRef())
		}
	}()

	iter, err := NewConcatIteratorSeekToFirst(tables)
	require.NoError(t, err)
	require.Equal(t, want, collectKeys(t, iter))
	require.NoError(t, iter.Close())

	// key150落在第二个和第三个table之间
	iter, err = NewConcatIteratorSeekToKey(tables, []byte("key150"))
	require.NoError(t, err)
	require.Equal(t, "key200", string(iter.Key()))
	require.NoError(t, iter.Close())
}

func TestConcatIteratorHoldsReferences(t *testing.T) {
	tables := buildGapTables(t)
	iter, err := NewConcatIteratorSeekToFirst(tables)
	require.NoError(t, err)
	// 每个table: 自己的一个 + concat持有的一个，T1还有一个打开的TableIterator
	require.Equal(t, int32(3), refs(tables[0]))
	require.Equal(t, int32(2), refs(tables[1]))

	require.NoError(t, iter.Close())
	require.NoError(t, iter.Close())
	require.Equal(t, int32(1), refs(tables[0]))
	require.Equal(t, int32(1), refs(tables[1]))
}
