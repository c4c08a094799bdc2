// key处理相关

package utils

import (
	"bytes"
	"encoding/binary"
	"math"
)

// 时间戳后缀的长度
const tsLen = 8

// 获取realKey
func ParseKey(sourceKey []byte) (realKey []byte) {
	if len(sourceKey) <= tsLen {
		realKey = sourceKey
		return
	}
	// 后8位是timestamp
	realKey = sourceKey[:len(sourceKey)-tsLen]
	return
}

// 获取timestamp
func ParseTimeStamp(sourceKey []byte) (timestamp uint64) {
	if len(sourceKey) <= tsLen {
		timestamp = 0
		return
	}
	// 存的是MaxUint64-ts，这样新版本会排在前面
	timestamp = math.MaxUint64 - binary.BigEndian.Uint64(sourceKey[len(sourceKey)-tsLen:])
	return
}

// 为key添加上TimeStamp
func KeyWithTS(key []byte, ts uint64) []byte {
	res := make([]byte, len(key)+tsLen)
	copy(res, key)
	binary.BigEndian.PutUint64(res[len(key):], math.MaxUint64-ts)
	return res
}

// CompareKeys 先比较realKey，再比较后缀，相同realKey时ts大的排在前面
func CompareKeys(key1, key2 []byte) int {
	if cmp := bytes.Compare(ParseKey(key1), ParseKey(key2)); cmp != 0 {
		return cmp
	}
	return bytes.Compare(key1[len(ParseKey(key1)):], key2[len(ParseKey(key2)):])
}

// copy
func SafeCopy(needKey, key []byte) []byte {
	return append(needKey[:0], key...)
}
