package lsmt

import (
	"fmt"

	"lsmkv/utils"
)

// CompactionStyle 选择compaction策略
type CompactionStyle int

const (
	NoCompaction CompactionStyle = iota
	SimpleLeveledCompaction
	TieredCompaction
	LeveledCompaction
)

func (s CompactionStyle) String() string {
	switch s {
	case NoCompaction:
		return "none"
	case SimpleLeveledCompaction:
		return "simple"
	case TieredCompaction:
		return "tiered"
	case LeveledCompaction:
		return "leveled"
	}
	return fmt.Sprintf("CompactionStyle(%d)", int(s))
}

// CompactionOptions 按Style只会使用对应的一组参数
type CompactionOptions struct {
	Style         CompactionStyle
	SimpleLeveled SimpleLeveledCompactionOptions
	Tiered        TieredCompactionOptions
	Leveled       LeveledCompactionOptions
}

type SimpleLeveledCompactionOptions struct {
	// 下一层的table数 / 本层的table数 小于这个百分比时触发
	SizeRatioPercent int
	// L0的table数达到这个值时触发
	Level0FileNumCompactionTrigger int
	MaxLevels                      int
}

type TieredCompactionOptions struct {
	// tier的数量达到这个值才会考虑compact
	NumTiers int
	// 除最后一个tier之外所有tier的大小 / 最后一个tier的大小，超过这个百分比时全部合并
	MaxSizeAmplificationPercent int
	// 下一个tier / 前面所有tier 超过 (100+SizeRatio)% 时合并前面的tier
	SizeRatio     int
	MinMergeWidth int
	// 0 表示不限制
	MaxMergeWidth int
}

type LeveledCompactionOptions struct {
	LevelSizeMultiplier            int
	Level0FileNumCompactionTrigger int
	MaxLevels                      int
	BaseLevelSizeMB                int
}

func (opt *CompactionOptions) norm() {
	switch opt.Style {
	case SimpleLeveledCompaction:
		s := &opt.SimpleLeveled
		if s.MaxLevels <= 0 {
			s.MaxLevels = 3
		}
		if s.MaxLevels > utils.MaxLevelNum {
			s.MaxLevels = utils.MaxLevelNum
		}
		if s.Level0FileNumCompactionTrigger <= 0 {
			s.Level0FileNumCompactionTrigger = 2
		}
		if s.SizeRatioPercent <= 0 {
			s.SizeRatioPercent = 200
		}
	case TieredCompaction:
		t := &opt.Tiered
		if t.NumTiers <= 1 {
			t.NumTiers = 3
		}
		if t.MaxSizeAmplificationPercent <= 0 {
			t.MaxSizeAmplificationPercent = 200
		}
		if t.MinMergeWidth < 2 {
			t.MinMergeWidth = 2
		}
	case LeveledCompaction:
		l := &opt.Leveled
		if l.MaxLevels <= 0 {
			l.MaxLevels = 4
		}
		if l.MaxLevels > utils.MaxLevelNum {
			l.MaxLevels = utils.MaxLevelNum
		}
		if l.LevelSizeMultiplier <= 1 {
			l.LevelSizeMultiplier = 10
		}
		if l.Level0FileNumCompactionTrigger <= 0 {
			l.Level0FileNumCompactionTrigger = 2
		}
		if l.BaseLevelSizeMB <= 0 {
			l.BaseLevelSizeMB = 128
		}
	}
}

// CompactionTask 是controller产生的compaction计划，只有本包中的几种实现
type CompactionTask interface {
	// 输出是否会写到最底层，最底层可以丢弃墓碑
	CompactToBottomLevel() bool
	// 所有参与compaction的table
	InputTables() []uint64
	String() string
	isCompactionTask()
}

// SimpleLeveledTask 将UpperLevel的所有table和LowerLevel的所有table合并到LowerLevel；UpperLevel为0表示L0
type SimpleLeveledTask struct {
	UpperLevel              int
	UpperLevelTables        []uint64
	LowerLevel              int
	LowerLevelTables        []uint64
	IsLowerLevelBottomLevel bool
}

// LeveledTask 和SimpleLeveledTask结构相同，但只包含LowerLevel中和上层重叠的table
type LeveledTask struct {
	UpperLevel              int
	UpperLevelTables        []uint64
	LowerLevel              int
	LowerLevelTables        []uint64
	IsLowerLevelBottomLevel bool
}

// TieredTask 将若干个最新的tier合并为一个tier
type TieredTask struct {
	Tiers              []LevelTables
	BottomTierIncluded bool
}

// FullTask 将L0和L1全部合并到L1
type FullTask struct {
	L0 []uint64
	L1 []uint64
	// L1之下没有其他数据
	IsLowerLevelBottomLevel bool
}

func (t *SimpleLeveledTask) CompactToBottomLevel() bool { return t.IsLowerLevelBottomLevel }
func (t *LeveledTask) CompactToBottomLevel() bool       { return t.IsLowerLevelBottomLevel }
func (t *TieredTask) CompactToBottomLevel() bool        { return t.BottomTierIncluded }
func (t *FullTask) CompactToBottomLevel() bool          { return t.IsLowerLevelBottomLevel }

func (t *SimpleLeveledTask) InputTables() []uint64 {
	return concatIDs(t.UpperLevelTables, t.LowerLevelTables)
}

func (t *LeveledTask) InputTables() []uint64 {
	return concatIDs(t.UpperLevelTables, t.LowerLevelTables)
}

func (t *TieredTask) InputTables() []uint64 {
	var ids []uint64
	for _, tier := range t.Tiers {
		ids = append(ids, tier.Tables...)
	}
	return ids
}

func (t *FullTask) InputTables() []uint64 {
	return concatIDs(t.L0, t.L1)
}

func (t *SimpleLeveledTask) String() string {
	return fmt.Sprintf("simple L%d%v -> L%d%v", t.UpperLevel, t.UpperLevelTables, t.LowerLevel, t.LowerLevelTables)
}

func (t *LeveledTask) String() string {
	return fmt.Sprintf("leveled L%d%v -> L%d%v", t.UpperLevel, t.UpperLevelTables, t.LowerLevel, t.LowerLevelTables)
}

func (t *TieredTask) String() string {
	return fmt.Sprintf("tiered %d tiers %v bottom=%v", len(t.Tiers), t.InputTables(), t.BottomTierIncluded)
}

func (t *FullTask) String() string {
	return fmt.Sprintf("full L0%v L1%v", t.L0, t.L1)
}

func (*SimpleLeveledTask) isCompactionTask() {}
func (*LeveledTask) isCompactionTask()       {}
func (*TieredTask) isCompactionTask()        {}
func (*FullTask) isCompactionTask()          {}

func concatIDs(a, b []uint64) []uint64 {
	ids := make([]uint64, 0, len(a)+len(b))
	ids = append(ids, a...)
	return append(ids, b...)
}

// TableInfo 是controller做决策时需要的table信息，*Table实现了它
type TableInfo interface {
	FirstKey() []byte
	LastKey() []byte
	Size() int64
}

// LevelTables 一层(或者一个tier)中的table id
type LevelTables struct {
	// leveled策略中是层号(从1开始)，tiered策略中是tier id
	ID     uint64
	Tables []uint64
}

// LevelsSnapshot 是某一时刻所有table的分层情况，controller只读取它，不做修改
type LevelsSnapshot struct {
	// L0的table，最新的在前面
	L0 []uint64
	// leveled策略中Levels[i]是第i+1层；tiered策略中最新的tier在前面
	Levels []LevelTables
	Tables map[uint64]TableInfo
	Cmp    *utils.Comparer
}

// NewLevelsSnapshot 根据compaction策略创建空的分层
func NewLevelsSnapshot(opt CompactionOptions, cmp *utils.Comparer) *LevelsSnapshot {
	if cmp == nil {
		cmp = utils.DefaultComparer
	}
	s := &LevelsSnapshot{
		Tables: make(map[uint64]TableInfo),
		Cmp:    cmp,
	}
	n := 0
	switch opt.Style {
	case NoCompaction:
		n = 1
	case SimpleLeveledCompaction:
		n = opt.SimpleLeveled.MaxLevels
	case LeveledCompaction:
		n = opt.Leveled.MaxLevels
	}
	for i := 1; i <= n; i++ {
		s.Levels = append(s.Levels, LevelTables{ID: uint64(i)})
	}
	return s
}

// Clone 深拷贝，修改返回值不会影响原来的snapshot
func (s *LevelsSnapshot) Clone() *LevelsSnapshot {
	c := &LevelsSnapshot{
		L0:     append([]uint64(nil), s.L0...),
		Levels: make([]LevelTables, len(s.Levels)),
		Tables: make(map[uint64]TableInfo, len(s.Tables)),
		Cmp:    s.Cmp,
	}
	for i, l := range s.Levels {
		c.Levels[i] = LevelTables{ID: l.ID, Tables: append([]uint64(nil), l.Tables...)}
	}
	for id, t := range s.Tables {
		c.Tables[id] = t
	}
	return c
}

// 第level层(从1开始)
func (s *LevelsSnapshot) level(level int) *LevelTables {
	utils.AssertTruef(level >= 1 && level <= len(s.Levels), "level %d out of range [1, %d]", level, len(s.Levels))
	return &s.Levels[level-1]
}

// 一组table的总大小
func (s *LevelsSnapshot) size(ids []uint64) int64 {
	var sz int64
	for _, id := range ids {
		sz += s.Tables[id].Size()
	}
	return sz
}
