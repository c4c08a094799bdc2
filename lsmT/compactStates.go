package lsmt

import (
	"fmt"

	"lsmkv/utils"
)

// keyRange 是一组table覆盖的key范围 [left, right]
type keyRange struct {
	left  []byte
	right []byte
}

// debug
func (kr keyRange) String() string {
	return fmt.Sprintf("[left=%q, right=%q]", kr.left, kr.right)
}

func (kr keyRange) isEmpty() bool {
	return len(kr.left) == 0 && len(kr.right) == 0
}

// 按照ekr扩展kr
func (kr *keyRange) extend(cmp *utils.Comparer, ekr keyRange) {
	if ekr.isEmpty() {
		return
	}
	if kr.isEmpty() {
		*kr = ekr
		return
	}
	if cmp.Compare(ekr.left, kr.left) < 0 {
		kr.left = ekr.left
	}
	if cmp.Compare(ekr.right, kr.right) > 0 {
		kr.right = ekr.right
	}
}

// 判断是否重合，空的keyRange不和任何keyRange重合
func (kr keyRange) overlapsWith(cmp *utils.Comparer, dst keyRange) bool {
	if kr.isEmpty() || dst.isEmpty() {
		return false
	}
	// [dst.left , dst.right] ... [kr.left , kr.right]
	if cmp.Compare(kr.left, dst.right) > 0 {
		return false
	}
	// [kr.left , kr.right] ... [dst.left , dst.right]
	if cmp.Compare(kr.right, dst.left) < 0 {
		return false
	}
	return true
}

// 获取一组table的keyRange
func getKeyRange(s *LevelsSnapshot, ids ...uint64) keyRange {
	var kr keyRange
	for _, id := range ids {
		t := s.Tables[id]
		kr.extend(s.Cmp, keyRange{left: t.FirstKey(), right: t.LastKey()})
	}
	return kr
}

// 在第level层中找出和ids的key范围重合的table，保持该层原来的顺序
func findOverlappingTables(s *LevelsSnapshot, ids []uint64, level int) []uint64 {
	kr := getKeyRange(s, ids...)
	var overlap []uint64
	for _, id := range s.level(level).Tables {
		if getKeyRange(s, id).overlapsWith(s.Cmp, kr) {
			overlap = append(overlap, id)
		}
	}
	return overlap
}
