package lsmt

import (
	"lsmkv/utils"

	"github.com/pkg/errors"
)

// tiered: 每次flush都是一个新的tier，tier的大小按table个数计算
func generateTieredTask(opt TieredCompactionOptions, s *LevelsSnapshot) CompactionTask {
	utils.AssertTruef(len(s.L0) == 0, "tiered compaction should not have L0 tables")
	if len(s.Levels) < opt.NumTiers {
		return nil
	}

	// space amplification
	var size int
	for _, tier := range s.Levels[:len(s.Levels)-1] {
		size += len(tier.Tables)
	}
	last := len(s.Levels[len(s.Levels)-1].Tables)
	if last > 0 && float64(size)/float64(last)*100 >= float64(opt.MaxSizeAmplificationPercent) {
		return &TieredTask{
			Tiers:              cloneTiers(s.Levels),
			BottomTierIncluded: true,
		}
	}

	// size ratio
	sizeRatioTrigger := (100 + float64(opt.SizeRatio)) / 100
	size = 0
	for i := 0; i+1 < len(s.Levels); i++ {
		size += len(s.Levels[i].Tables)
		if size == 0 {
			continue
		}
		next := len(s.Levels[i+1].Tables)
		if float64(next)/float64(size) > sizeRatioTrigger && i+1 >= opt.MinMergeWidth {
			return &TieredTask{
				Tiers:              cloneTiers(s.Levels[:i+1]),
				BottomTierIncluded: i+1 >= len(s.Levels),
			}
		}
	}

	// 减少sorted run的数量
	take := len(s.Levels) - opt.NumTiers + 2
	if opt.MaxMergeWidth > 0 && take > opt.MaxMergeWidth {
		take = opt.MaxMergeWidth
	}
	if take < 2 {
		take = 2
	}
	if take > len(s.Levels) {
		take = len(s.Levels)
	}
	return &TieredTask{
		Tiers:              cloneTiers(s.Levels[:take]),
		BottomTierIncluded: take >= len(s.Levels),
	}
}

// 删除task中的tier，在原来最后一个tier的位置放入新的tier，新tier的id是output的第一个table
func applyTieredResult(s *LevelsSnapshot, task *TieredTask, output []uint64) (*LevelsSnapshot, []uint64) {
	s = s.Clone()
	toRemove := make(map[uint64][]uint64, len(task.Tiers))
	for _, tier := range task.Tiers {
		toRemove[tier.ID] = tier.Tables
	}

	var (
		levels  []LevelTables
		removed []uint64
		added   bool
	)
	for _, tier := range s.Levels {
		if tables, ok := toRemove[tier.ID]; ok {
			assertSameTables(tier.Tables, tables)
			removed = append(removed, tables...)
			delete(toRemove, tier.ID)
		} else {
			levels = append(levels, tier)
		}
		if len(toRemove) == 0 && !added {
			added = true
			if len(output) > 0 {
				levels = append(levels, LevelTables{ID: output[0], Tables: append([]uint64(nil), output...)})
			}
		}
	}
	utils.CondPanic(len(toRemove) != 0, errors.Wrapf(utils.ErrStaleTask, "%d tiers not found", len(toRemove)))
	s.Levels = levels
	for _, id := range removed {
		delete(s.Tables, id)
	}
	return s, removed
}

func cloneTiers(tiers []LevelTables) []LevelTables {
	res := make([]LevelTables, len(tiers))
	for i, t := range tiers {
		res[i] = LevelTables{ID: t.ID, Tables: append([]uint64(nil), t.Tables...)}
	}
	return res
}
