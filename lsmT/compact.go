package lsmt

import (
	"context"
	"sync"
	"time"

	"lsmkv/utils"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// CompactionController 根据CompactionOptions.Style分发到对应的策略，所有方法都是snapshot的纯函数
type CompactionController struct {
	opt CompactionOptions
}

func NewCompactionController(opt CompactionOptions) *CompactionController {
	opt.norm()
	return &CompactionController{opt: opt}
}

func (c *CompactionController) Options() CompactionOptions {
	return c.opt
}

// FlushToL0 新的table是放到L0，还是作为一个新的tier
func (c *CompactionController) FlushToL0() bool {
	return c.opt.Style != TieredCompaction
}

// GenerateTask 返回下一个compaction task，不需要compaction时返回nil
func (c *CompactionController) GenerateTask(s *LevelsSnapshot) CompactionTask {
	switch c.opt.Style {
	case SimpleLeveledCompaction:
		return generateSimpleLeveledTask(c.opt.SimpleLeveled, s)
	case TieredCompaction:
		return generateTieredTask(c.opt.Tiered, s)
	case LeveledCompaction:
		return generateLeveledTask(c.opt.Leveled, s)
	}
	return nil
}

// FullCompactionTask 把所有数据合并成一个sorted run，没有table时返回nil
func (c *CompactionController) FullCompactionTask(s *LevelsSnapshot) CompactionTask {
	if c.opt.Style == TieredCompaction {
		if len(s.Levels) == 0 {
			return nil
		}
		return &TieredTask{Tiers: cloneTiers(s.Levels), BottomTierIncluded: true}
	}
	if len(s.Levels) == 0 {
		return nil
	}
	// 只合并L0和L1，其他层的数据会在后续的compaction中下沉
	task := &FullTask{
		L0:                      append([]uint64(nil), s.L0...),
		L1:                      append([]uint64(nil), s.Levels[0].Tables...),
		IsLowerLevelBottomLevel: true,
	}
	if len(task.L0) == 0 && len(task.L1) == 0 {
		return nil
	}
	for _, l := range s.Levels[1:] {
		if len(l.Tables) > 0 {
			task.IsLowerLevelBottomLevel = false
		}
	}
	return task
}

// ApplyResult 用output替换task的输入，返回新的snapshot和被删除的table。
// output中的table必须已经加入s.Tables；task和s不一致时panic
func (c *CompactionController) ApplyResult(s *LevelsSnapshot, task CompactionTask, output []uint64) (*LevelsSnapshot, []uint64) {
	switch t := task.(type) {
	case *SimpleLeveledTask:
		return applySimpleLeveledResult(s, t, output)
	case *LeveledTask:
		return applyLeveledResult(s, t, output)
	case *TieredTask:
		return applyTieredResult(s, t, output)
	case *FullTask:
		return applyFullResult(s, t, output)
	}
	panic(errors.Errorf("unknown compaction task %T", task))
}

func applyFullResult(s *LevelsSnapshot, task *FullTask, output []uint64) (*LevelsSnapshot, []uint64) {
	s = s.Clone()
	s.L0 = removeTables(s.L0, task.L0)
	l1 := s.level(1)
	assertSameTables(l1.Tables, task.L1)
	l1.Tables = append([]uint64(nil), output...)

	removed := concatIDs(task.L0, task.L1)
	for _, id := range removed {
		delete(s.Tables, id)
	}
	return s, removed
}

func taskKind(task CompactionTask) string {
	switch task.(type) {
	case *SimpleLeveledTask:
		return SimpleLeveledCompaction.String()
	case *LeveledTask:
		return LeveledCompaction.String()
	case *TieredTask:
		return TieredCompaction.String()
	}
	return "full"
}

// 执行一个task，并原子地替换table集合；失败时table集合保持不变
func (lm *LevelManager) runCompaction(ctx context.Context, task CompactionTask) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	kind := taskKind(task)
	defer func() {
		lm.opt.Metrics.compactionDone(kind, start, err)
	}()
	lm.opt.Logger.Infof("compaction start: %s", task)

	st, release := lm.acquireState()
	outputs, err := lm.compactTables(st, task)
	release()
	if err != nil {
		return errors.WithMessagef(err, "while running compaction %s", task)
	}

	lm.mu.Lock()
	if lm.closed {
		lm.mu.Unlock()
		dropTables(outputs)
		return utils.ErrClosed
	}
	snap := lm.state.snapshot.Clone()
	ids := make([]uint64, 0, len(outputs))
	for _, t := range outputs {
		snap.Tables[t.ID()] = t
		ids = append(ids, t.ID())
	}
	snap, removedIDs := lm.controller.ApplyResult(snap, task, ids)
	tables := make(map[uint64]*Table, len(lm.state.tables)+len(outputs))
	for id, t := range lm.state.tables {
		tables[id] = t
	}
	for _, t := range outputs {
		tables[t.ID()] = t
	}
	removed := make([]*Table, 0, len(removedIDs))
	for _, id := range removedIDs {
		removed = append(removed, tables[id])
		delete(tables, id)
	}
	lm.state = &levelState{snapshot: snap, tables: tables}
	lm.mu.Unlock()

	// 正在使用这些table的迭代器释放引用之后才会删除文件
	for _, t := range removed {
		t.MarkObsolete()
		if err := t.DecrRef(); err != nil {
			lm.opt.Logger.Errorf("while deleting sstable %d: %v", t.ID(), err)
		}
		lm.opt.Metrics.tableDeleted()
	}
	lm.opt.Logger.Infof("compaction done: %s -> %v in %s", task, ids, time.Since(start))
	return nil
}

// 删除compaction写出来但没有用上的table
func dropTables(tables []*Table) {
	for _, t := range tables {
		t.MarkObsolete()
		utils.Err(t.DecrRef())
	}
}

// 构造task输入的归并迭代器
func (lm *LevelManager) compactionIterator(st *levelState, task CompactionTask) (utils.Iterator, error) {
	switch t := task.(type) {
	case *SimpleLeveledTask:
		return lm.levelPairIterator(st, t.UpperLevel, t.UpperLevelTables, t.LowerLevelTables)
	case *LeveledTask:
		return lm.levelPairIterator(st, t.UpperLevel, t.UpperLevelTables, t.LowerLevelTables)
	case *FullTask:
		return lm.levelPairIterator(st, 0, t.L0, t.L1)
	case *TieredTask:
		iters := make([]utils.Iterator, 0, len(t.Tiers))
		for _, tier := range t.Tiers {
			iter, err := NewConcatIteratorSeekToFirst(st.lookup(tier.Tables))
			if err != nil {
				closeIterators(iters)
				return nil, err
			}
			iters = append(iters, iter)
		}
		return NewMergeIterator(lm.opt.Comparer, iters), nil
	}
	return nil, errors.Errorf("unknown compaction task %T", task)
}

// L0的table之间有重叠，用MergeIterator；其他层用ConcatIterator
func (lm *LevelManager) levelPairIterator(st *levelState, upperLevel int, upper, lower []uint64) (utils.Iterator, error) {
	var upperIter utils.Iterator
	if upperLevel == 0 {
		iters, err := tableIterators(st.lookup(upper))
		if err != nil {
			return nil, err
		}
		upperIter = NewMergeIterator(lm.opt.Comparer, iters)
	} else {
		iter, err := NewConcatIteratorSeekToFirst(st.lookup(upper))
		if err != nil {
			return nil, err
		}
		upperIter = iter
	}
	lowerIter, err := NewConcatIteratorSeekToFirst(st.lookup(lower))
	if err != nil {
		_ = upperIter.Close()
		return nil, err
	}
	return NewTwoMergeIterator(lm.opt.Comparer, upperIter, lowerIter)
}

func (lm *LevelManager) compactTables(st *levelState, task CompactionTask) ([]*Table, error) {
	iter, err := lm.compactionIterator(st, task)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	return lm.compactFromIter(iter, task.CompactToBottomLevel())
}

// 将iter中的数据按TargetSSTSize切分写入新的sstable，写文件由最多NumCompactionWriters个协程并行完成。
// 同一个realKey的所有版本会写到同一个sstable中；写到最底层并且key没有版本时丢弃墓碑
func (lm *LevelManager) compactFromIter(iter utils.Iterator, bottom bool) ([]*Table, error) {
	cmp := lm.opt.Comparer
	dropTombstones := bottom && !cmp.Versioned()

	var (
		g       errgroup.Group
		mu      sync.Mutex
		outputs = make(map[int]*Table)
		n       int
	)
	g.SetLimit(lm.opt.NumCompactionWriters)

	builder := lm.NewTableBuilder()
	flush := func() {
		b, seq, id := builder, n, lm.NextTableID()
		builder = lm.NewTableBuilder()
		n++
		g.Go(func() error {
			t, err := b.Build(id, lm.cache, utils.FileNameSSTable(lm.opt.WorkDir, id))
			if err != nil {
				return err
			}
			mu.Lock()
			outputs[seq] = t
			mu.Unlock()
			return nil
		})
	}
	collect := func() []*Table {
		res := make([]*Table, 0, len(outputs))
		for i := 0; i < n; i++ {
			if t, ok := outputs[i]; ok {
				res = append(res, t)
			}
		}
		return res
	}

	var lastKey []byte
	for iter.Valid() {
		key, value := iter.Key(), iter.Value()
		if !dropTombstones || len(value) > 0 {
			if builder.EstimatedSize() >= lm.opt.TargetSSTSize && !cmp.SameUserKey(lastKey, key) {
				flush()
			}
			builder.Add(key, value)
			lastKey = utils.SafeCopy(lastKey, key)
		}
		if err := iter.Next(); err != nil {
			utils.Err(g.Wait())
			dropTables(collect())
			return nil, err
		}
	}
	if !builder.IsEmpty() {
		flush()
	}
	if err := g.Wait(); err != nil {
		dropTables(collect())
		return nil, err
	}
	return collect(), nil
}

func tableIterators(tables []*Table) ([]utils.Iterator, error) {
	iters := make([]utils.Iterator, 0, len(tables))
	for _, t := range tables {
		iter, err := NewTableIteratorSeekToFirst(t)
		if err != nil {
			closeIterators(iters)
			return nil, err
		}
		iters = append(iters, iter)
	}
	return iters, nil
}

func closeIterators(iters []utils.Iterator) {
	for _, iter := range iters {
		utils.Err(iter.Close())
	}
}
