package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBloomFilter(t *testing.T) {
	var hashes []uint32
	for i := 0; i < 1000; i++ {
		hashes = append(hashes, Hash([]byte(fmt.Sprintf("key%d", i))))
	}
	f := NewFilter(hashes, BitsPerkey(len(hashes), 0.01))

	for i := 0; i < 1000; i++ {
		require.True(t, f.MayContainKey([]byte(fmt.Sprintf("key%d", i))))
	}
	falsePositive := 0
	for i := 0; i < 10000; i++ {
		if f.MayContainKey([]byte(fmt.Sprintf("other%d", i))) {
			falsePositive++
		}
	}
	// 期望1%，留出足够的余量
	require.Less(t, falsePositive, 500)
}

func TestBitsPerKey(t *testing.T) {
	require.Equal(t, 0, BitsPerkey(0, 0.01))
	require.Equal(t, 0, BitsPerkey(10, 0))
	require.Equal(t, 10, BitsPerkey(100, 0.01))
}

func TestEmptyFilter(t *testing.T) {
	var f Filter
	require.False(t, f.MayContainKey([]byte("a")))
	f = NewFilter(nil, 10)
	require.False(t, f.MayContainKey([]byte("a")))
}
