package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyWithTS(t *testing.T) {
	key := KeyWithTS([]byte("user"), 42)
	require.Len(t, key, 4+8)
	assert.Equal(t, []byte("user"), ParseKey(key))
	assert.Equal(t, uint64(42), ParseTimeStamp(key))

	// 没有后缀的key
	assert.Equal(t, []byte("abc"), ParseKey([]byte("abc")))
	assert.Equal(t, uint64(0), ParseTimeStamp([]byte("abc")))
}

func TestCompareKeys(t *testing.T) {
	a1, a2 := KeyWithTS([]byte("a"), 1), KeyWithTS([]byte("a"), 2)
	b1 := KeyWithTS([]byte("b"), 1)
	// realKey升序，同一个realKey新版本在前
	assert.Equal(t, -1, CompareKeys(a2, a1))
	assert.Equal(t, 1, CompareKeys(a1, a2))
	assert.Equal(t, 0, CompareKeys(a1, a1))
	assert.Equal(t, -1, CompareKeys(a1, b1))
	assert.Equal(t, -1, CompareKeys(KeyWithTS([]byte("a"), 0), KeyWithTS([]byte("ab"), 100)))
}

func TestComparer(t *testing.T) {
	assert.False(t, DefaultComparer.Versioned())
	assert.True(t, TimestampComparer.Versioned())
	assert.Equal(t, uint64(0), DefaultComparer.Timestamp(KeyWithTS([]byte("a"), 7)))
	assert.Equal(t, uint64(7), TimestampComparer.Timestamp(KeyWithTS([]byte("a"), 7)))

	assert.True(t, TimestampComparer.SameUserKey(KeyWithTS([]byte("k"), 1), KeyWithTS([]byte("k"), 2)))
	assert.False(t, DefaultComparer.SameUserKey(KeyWithTS([]byte("k"), 1), KeyWithTS([]byte("k"), 2)))
	assert.True(t, DefaultComparer.Compare([]byte("a"), []byte("b")) < 0)
}

func TestSafeCopy(t *testing.T) {
	buf := make([]byte, 0, 16)
	src := []byte("hello")
	dst := SafeCopy(buf, src)
	src[0] = 'j'
	assert.Equal(t, []byte("hello"), dst)
}
