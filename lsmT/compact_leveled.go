package lsmt

import (
	"sort"

	"lsmkv/utils"
)

// 每一层的目标大小，targetSz[i]是第i+1层
type targets struct {
	baseLevel int
	targetSz  []int64
}

// 从最后一层开始计算每一层的目标大小，最后一层至少是BaseLevelSizeMB；
// 上一层是下一层的1/LevelSizeMultiplier，下一层不超过BaseLevelSizeMB时上一层的目标为0。
// baseLevel是最上面一个目标大于0的层，L0会直接compact到baseLevel
func levelTargets(opt LeveledCompactionOptions, s *LevelsSnapshot) targets {
	baseSize := int64(opt.BaseLevelSizeMB) * utils.MB
	ts := targets{
		baseLevel: opt.MaxLevels,
		targetSz:  make([]int64, opt.MaxLevels),
	}
	last := s.size(s.level(opt.MaxLevels).Tables)
	if last < baseSize {
		last = baseSize
	}
	ts.targetSz[opt.MaxLevels-1] = last
	for i := opt.MaxLevels - 2; i >= 0; i-- {
		next := ts.targetSz[i+1]
		if next > baseSize {
			ts.targetSz[i] = next / int64(opt.LevelSizeMultiplier)
		}
		if ts.targetSz[i] > 0 {
			ts.baseLevel = i + 1
		}
	}
	return ts
}

// compaction的优先级
type compactionPriority struct {
	level int
	score float64
}

func generateLeveledTask(opt LeveledCompactionOptions, s *LevelsSnapshot) CompactionTask {
	ts := levelTargets(opt, s)

	// L0的flush优先级最高
	if len(s.L0) >= opt.Level0FileNumCompactionTrigger {
		return &LeveledTask{
			UpperLevel:              0,
			UpperLevelTables:        append([]uint64(nil), s.L0...),
			LowerLevel:              ts.baseLevel,
			LowerLevelTables:        findOverlappingTables(s, s.L0, ts.baseLevel),
			IsLowerLevelBottomLevel: ts.baseLevel == opt.MaxLevels,
		}
	}

	var prios []compactionPriority
	for level := 1; level < opt.MaxLevels; level++ {
		realSize := s.size(s.level(level).Tables)
		if realSize == 0 {
			continue
		}
		target := ts.targetSz[level-1]
		// 目标为0的层(baseLevel之上)有数据就需要下沉
		score := float64(realSize) / float64(target)
		if target == 0 || score > 1.0 {
			if target == 0 {
				score = float64(realSize)
			}
			prios = append(prios, compactionPriority{level: level, score: score})
		}
	}
	if len(prios) == 0 {
		return nil
	}
	sort.SliceStable(prios, func(i, j int) bool {
		return prios[i].score > prios[j].score
	})

	level := prios[0].level
	// 选择最旧(id最小)的table
	selected := s.level(level).Tables[0]
	for _, id := range s.level(level).Tables {
		if id < selected {
			selected = id
		}
	}
	return &LeveledTask{
		UpperLevel:              level,
		UpperLevelTables:        []uint64{selected},
		LowerLevel:              level + 1,
		LowerLevelTables:        findOverlappingTables(s, []uint64{selected}, level+1),
		IsLowerLevelBottomLevel: level+1 == opt.MaxLevels,
	}
}

// 从上下两层删除task中的table，output加入下层后按first key排序；output必须已经在s.Tables中
func applyLeveledResult(s *LevelsSnapshot, task *LeveledTask, output []uint64) (*LevelsSnapshot, []uint64) {
	s = s.Clone()
	if task.UpperLevel == 0 {
		s.L0 = removeTables(s.L0, task.UpperLevelTables)
	} else {
		upper := s.level(task.UpperLevel)
		upper.Tables = removeTables(upper.Tables, task.UpperLevelTables)
	}
	lower := s.level(task.LowerLevel)
	tables := removeTables(lower.Tables, task.LowerLevelTables)
	tables = append(tables, output...)
	sort.SliceStable(tables, func(i, j int) bool {
		return s.Cmp.Compare(s.Tables[tables[i]].FirstKey(), s.Tables[tables[j]].FirstKey()) < 0
	})
	lower.Tables = tables

	removed := concatIDs(task.UpperLevelTables, task.LowerLevelTables)
	for _, id := range removed {
		delete(s.Tables, id)
	}
	return s, removed
}
