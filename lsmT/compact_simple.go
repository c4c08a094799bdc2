package lsmt

import (
	"lsmkv/utils"

	"github.com/pkg/errors"
)

// simple leveled: 只比较相邻两层的table个数
func generateSimpleLeveledTask(opt SimpleLeveledCompactionOptions, s *LevelsSnapshot) CompactionTask {
	// levelSizes[0]是L0
	levelSizes := make([]int, 0, len(s.Levels)+1)
	levelSizes = append(levelSizes, len(s.L0))
	for _, l := range s.Levels {
		levelSizes = append(levelSizes, len(l.Tables))
	}

	for i := 0; i < opt.MaxLevels && i+1 < len(levelSizes); i++ {
		if i == 0 && len(s.L0) < opt.Level0FileNumCompactionTrigger {
			continue
		}
		if levelSizes[i] == 0 {
			continue
		}
		lower := i + 1
		ratio := float64(levelSizes[lower]) / float64(levelSizes[i])
		if ratio >= float64(opt.SizeRatioPercent)/100 {
			continue
		}
		task := &SimpleLeveledTask{
			UpperLevel:              i,
			LowerLevel:              lower,
			LowerLevelTables:        append([]uint64(nil), s.level(lower).Tables...),
			IsLowerLevelBottomLevel: lower == opt.MaxLevels,
		}
		if i == 0 {
			task.UpperLevelTables = append([]uint64(nil), s.L0...)
		} else {
			task.UpperLevelTables = append([]uint64(nil), s.level(i).Tables...)
		}
		return task
	}
	return nil
}

// 上层清空(L0只删除task中的table，其余的是compaction期间新flush的)，下层替换为output
func applySimpleLeveledResult(s *LevelsSnapshot, task *SimpleLeveledTask, output []uint64) (*LevelsSnapshot, []uint64) {
	s = s.Clone()
	var removed []uint64
	if task.UpperLevel == 0 {
		s.L0 = removeTables(s.L0, task.UpperLevelTables)
	} else {
		upper := s.level(task.UpperLevel)
		assertSameTables(upper.Tables, task.UpperLevelTables)
		upper.Tables = nil
	}
	removed = append(removed, task.UpperLevelTables...)

	lower := s.level(task.LowerLevel)
	assertSameTables(lower.Tables, task.LowerLevelTables)
	removed = append(removed, lower.Tables...)
	lower.Tables = append([]uint64(nil), output...)

	for _, id := range removed {
		delete(s.Tables, id)
	}
	return s, removed
}

// 从ids中删除toRemove，toRemove必须全部存在于ids中
func removeTables(ids, toRemove []uint64) []uint64 {
	set := make(map[uint64]struct{}, len(toRemove))
	for _, id := range toRemove {
		set[id] = struct{}{}
	}
	res := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := set[id]; ok {
			delete(set, id)
			continue
		}
		res = append(res, id)
	}
	utils.CondPanic(len(set) != 0, errors.Wrapf(utils.ErrStaleTask, "tables %v not found", toRemove))
	return res
}

func assertSameTables(actual, expected []uint64) {
	same := len(actual) == len(expected)
	for i := 0; same && i < len(actual); i++ {
		same = actual[i] == expected[i]
	}
	utils.CondPanic(!same, errors.Wrapf(utils.ErrStaleTask, "level has %v, task expects %v", actual, expected))
}
