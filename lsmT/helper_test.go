package lsmt

import (
	"fmt"
	"sync/atomic"
	"testing"

	"lsmkv/utils"

	"github.com/stretchr/testify/require"
)

// kvs按 key, value, key, value ... 排列
func buildBlock(t *testing.T, kvs ...string) *Block {
	t.Helper()
	require.True(t, len(kvs)%2 == 0)
	bb := NewBlockBuilder(maxBlockSize)
	for i := 0; i < len(kvs); i += 2 {
		require.True(t, bb.Add([]byte(kvs[i]), []byte(kvs[i+1])))
	}
	return bb.Build()
}

func buildTable(t *testing.T, dir string, id uint64, blockSize int, kvs ...string) *Table {
	t.Helper()
	require.True(t, len(kvs)%2 == 0)
	tb := NewTableBuilder(blockSize)
	for i := 0; i < len(kvs); i += 2 {
		tb.Add([]byte(kvs[i]), []byte(kvs[i+1]))
	}
	tbl, err := tb.Build(id, nil, utils.FileNameSSTable(dir, id))
	require.NoError(t, err)
	return tbl
}

// 生成 prefix+[from, to) 的kv，value是 key+"-"+suffix
func rangeKVs(prefix string, from, to int, suffix string) []string {
	var kvs []string
	for i := from; i < to; i++ {
		key := fmt.Sprintf("%s%03d", prefix, i)
		kvs = append(kvs, key, key+"-"+suffix)
	}
	return kvs
}

type kv struct {
	key   string
	value string
}

// 从当前位置遍历到结束
func collect(t *testing.T, iter utils.Iterator) []kv {
	t.Helper()
	var res []kv
	for iter.Valid() {
		res = append(res, kv{string(iter.Key()), string(iter.Value())})
		require.NoError(t, iter.Next())
	}
	return res
}

func collectKeys(t *testing.T, iter utils.Iterator) []string {
	t.Helper()
	var keys []string
	for _, e := range collect(t, iter) {
		keys = append(keys, e.key)
	}
	return keys
}

func refs(tbl *Table) int32 {
	return atomic.LoadInt32(&tbl.ref)
}
