package lsmt

import (
	"context"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"lsmkv/utils"

	"github.com/pkg/errors"
)

// levelState 是不可修改的table集合，compaction通过替换整个levelState完成切换
type levelState struct {
	snapshot *LevelsSnapshot
	tables   map[uint64]*Table
}

func (st *levelState) lookup(ids []uint64) []*Table {
	tables := make([]*Table, 0, len(ids))
	for _, id := range ids {
		t, ok := st.tables[id]
		utils.AssertTruef(ok, "sstable %d not found in levels", id)
		tables = append(tables, t)
	}
	return tables
}

// LevelManager 管理所有已经持久化的sstable，负责读路径和compaction
type LevelManager struct {
	mu     sync.RWMutex
	state  *levelState
	closed bool
	closer *utils.Closer

	// 同一时刻只执行一个compaction
	compactLock sync.Mutex

	// 已经分配出去的最大table id
	maxID      uint64
	opt        *Options
	controller *CompactionController
	cache      *BlockCache
}

// NewLevelManager 创建WorkDir并初始化一个空的分层；WorkDir中已有的sstable不会被加载，新table的id从其中最大的id之后开始
func NewLevelManager(opt *Options) (*LevelManager, error) {
	opt.norm()
	if err := os.MkdirAll(opt.WorkDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "while creating work dir %s", opt.WorkDir)
	}
	ids, err := utils.LoadIDMap(opt.WorkDir)
	if err != nil {
		return nil, err
	}
	lm := &LevelManager{
		opt:        opt,
		controller: NewCompactionController(opt.Compaction),
	}
	if len(ids) > 0 {
		lm.maxID = ids[len(ids)-1]
	}
	if opt.BlockCacheSize > 0 {
		lm.cache = NewBlockCache(opt.BlockCacheSize, opt.Metrics)
	}
	lm.state = &levelState{
		snapshot: NewLevelsSnapshot(lm.controller.Options(), opt.Comparer),
		tables:   make(map[uint64]*Table),
	}
	return lm, nil
}

// NextTableID 分配一个新的table id
func (lm *LevelManager) NextTableID() uint64 {
	return atomic.AddUint64(&lm.maxID, 1)
}

func (lm *LevelManager) Cache() *BlockCache {
	return lm.cache
}

func (lm *LevelManager) Controller() *CompactionController {
	return lm.controller
}

// NewTableBuilder 按照Options创建builder
func (lm *LevelManager) NewTableBuilder() *TableBuilder {
	opt := lm.opt.builderOptions()
	opt.Metrics = lm.opt.Metrics
	return NewTableBuilderWithOptions(opt)
}

// BuildTable 分配id并把builder写入WorkDir
func (lm *LevelManager) BuildTable(builder *TableBuilder) (*Table, error) {
	id := lm.NextTableID()
	return builder.Build(id, lm.cache, utils.FileNameSSTable(lm.opt.WorkDir, id))
}

// Flush 把一个有序的迭代器(通常是memtable)写成sstable并加入L0
func (lm *LevelManager) Flush(iter utils.Iterator) (*Table, error) {
	builder := lm.NewTableBuilder()
	for iter.Valid() {
		builder.Add(iter.Key(), iter.Value())
		if err := iter.Next(); err != nil {
			return nil, err
		}
	}
	if builder.IsEmpty() {
		return nil, nil
	}
	t, err := lm.BuildTable(builder)
	if err != nil {
		return nil, err
	}
	if err := lm.AddL0Table(t); err != nil {
		dropTables([]*Table{t})
		return nil, err
	}
	return t, nil
}

// AddL0Table 把新flush的table加入最上层，LevelManager接管t的引用
func (lm *LevelManager) AddL0Table(t *Table) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.closed {
		return utils.ErrClosed
	}
	snap := lm.state.snapshot.Clone()
	if lm.controller.FlushToL0() {
		snap.L0 = append([]uint64{t.ID()}, snap.L0...)
	} else {
		snap.Levels = append([]LevelTables{{ID: t.ID(), Tables: []uint64{t.ID()}}}, snap.Levels...)
	}
	snap.Tables[t.ID()] = t

	tables := make(map[uint64]*Table, len(lm.state.tables)+1)
	for id, tbl := range lm.state.tables {
		tables[id] = tbl
	}
	tables[t.ID()] = t
	lm.state = &levelState{snapshot: snap, tables: tables}
	return nil
}

// Snapshot 返回当前分层的拷贝
func (lm *LevelManager) Snapshot() *LevelsSnapshot {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.state.snapshot.Clone()
}

// Tables 按id升序返回当前所有的table，不持有引用，只用于查看
func (lm *LevelManager) Tables() []*Table {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	tables := make([]*Table, 0, len(lm.state.tables))
	for _, t := range lm.state.tables {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].ID() < tables[j].ID() })
	return tables
}

// 获取当前的levelState，并持有其中所有table的引用，release时释放
func (lm *LevelManager) acquireState() (*levelState, func()) {
	lm.mu.RLock()
	st := lm.state
	for _, t := range st.tables {
		t.IncrRef()
	}
	lm.mu.RUnlock()
	return st, func() {
		for _, t := range st.tables {
			utils.Err(t.DecrRef())
		}
	}
}

// NewIterator 遍历所有table的迭代器: L0的每个table一个迭代器，其他每层一个ConcatIterator
func (lm *LevelManager) NewIterator() (utils.Iterator, error) {
	st, release := lm.acquireState()
	defer release()
	return lm.newIterator(st, nil)
}

// NewIteratorSeekToKey 定位到第一个 >= key 的entry
func (lm *LevelManager) NewIteratorSeekToKey(key []byte) (utils.Iterator, error) {
	st, release := lm.acquireState()
	defer release()
	return lm.newIterator(st, key)
}

func (lm *LevelManager) newIterator(st *levelState, key []byte) (utils.Iterator, error) {
	var iters []utils.Iterator
	fail := func(err error) (utils.Iterator, error) {
		closeIterators(iters)
		return nil, err
	}
	for _, t := range st.lookup(st.snapshot.L0) {
		var (
			iter *TableIterator
			err  error
		)
		if key == nil {
			iter, err = NewTableIteratorSeekToFirst(t)
		} else {
			iter, err = NewTableIteratorSeekToKey(t, key)
		}
		if err != nil {
			return fail(err)
		}
		iters = append(iters, iter)
	}
	for _, level := range st.snapshot.Levels {
		if len(level.Tables) == 0 {
			continue
		}
		var (
			iter *ConcatIterator
			err  error
		)
		if key == nil {
			iter, err = NewConcatIteratorSeekToFirst(st.lookup(level.Tables))
		} else {
			iter, err = NewConcatIteratorSeekToKey(st.lookup(level.Tables), key)
		}
		if err != nil {
			return fail(err)
		}
		iters = append(iters, iter)
	}
	return NewMergeIterator(lm.opt.Comparer, iters), nil
}

// Get 查找key最新的值；带版本的key返回第一个 >= key 并且realKey相同的值。
// 空的value是墓碑，不存在时返回utils.ErrKeyNotFound
func (lm *LevelManager) Get(key []byte) ([]byte, error) {
	utils.CondPanic(len(key) == 0, utils.ErrEmptyKey)
	st, release := lm.acquireState()
	defer release()

	if lm.opt.Comparer.Versioned() {
		iter, err := lm.newIterator(st, key)
		if err != nil {
			return nil, err
		}
		defer iter.Close()
		if iter.Valid() && lm.opt.Comparer.SameUserKey(iter.Key(), key) {
			return append([]byte{}, iter.Value()...), nil
		}
		return nil, utils.ErrKeyNotFound
	}

	// L0从新到旧，然后逐层查找，第一个找到的就是最新的
	for _, t := range st.lookup(st.snapshot.L0) {
		if val, err := t.Get(key); err != utils.ErrKeyNotFound {
			return val, err
		}
	}
	for _, level := range st.snapshot.Levels {
		t := lm.findTable(st.lookup(level.Tables), key)
		if t == nil {
			continue
		}
		if val, err := t.Get(key); err != utils.ErrKeyNotFound {
			return val, err
		}
	}
	return nil, utils.ErrKeyNotFound
}

// 在一个有序且不重叠的table列表中找到key范围包含key的table
func (lm *LevelManager) findTable(tables []*Table, key []byte) *Table {
	cmp := lm.opt.Comparer
	idx := sort.Search(len(tables), func(i int) bool {
		return cmp.Compare(tables[i].FirstKey(), key) > 0
	})
	if idx == 0 {
		return nil
	}
	t := tables[idx-1]
	if cmp.Compare(key, t.LastKey()) > 0 {
		return nil
	}
	return t
}

// Compact 执行一次compaction，返回是否有task被执行
func (lm *LevelManager) Compact(ctx context.Context) (bool, error) {
	lm.compactLock.Lock()
	defer lm.compactLock.Unlock()
	if lm.isClosed() {
		return false, utils.ErrClosed
	}
	task := lm.controller.GenerateTask(lm.Snapshot())
	if task == nil {
		return false, nil
	}
	return true, lm.runCompaction(ctx, task)
}

// ForceFullCompaction 合并L0和L1(tiered策略下合并所有tier)
func (lm *LevelManager) ForceFullCompaction(ctx context.Context) error {
	lm.compactLock.Lock()
	defer lm.compactLock.Unlock()
	if lm.isClosed() {
		return utils.ErrClosed
	}
	task := lm.controller.FullCompactionTask(lm.Snapshot())
	if task == nil {
		return nil
	}
	return lm.runCompaction(ctx, task)
}

// StartCompacter 启动后台协程，每隔interval尝试一次compaction，Close时退出
func (lm *LevelManager) StartCompacter(interval time.Duration) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.closed || lm.closer != nil {
		return
	}
	lm.closer = utils.NewCloser(1)
	go lm.runCompacter(lm.closer, interval)
}

func (lm *LevelManager) runCompacter(closer *utils.Closer, interval time.Duration) {
	defer closer.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-closer.HasBeenClosed():
			return
		case <-ticker.C:
			if _, err := lm.Compact(closer.Ctx()); err != nil && !errors.Is(err, context.Canceled) {
				lm.opt.Logger.Errorf("background compaction: %v", err)
			}
		}
	}
}

func (lm *LevelManager) isClosed() bool {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.closed
}

// Close 停止后台compaction并关闭所有table，文件不会被删除；仍然打开的迭代器关闭后才会真正关闭文件
func (lm *LevelManager) Close() error {
	lm.mu.Lock()
	closer := lm.closer
	lm.mu.Unlock()
	if closer != nil {
		closer.Close()
	}

	lm.compactLock.Lock()
	defer lm.compactLock.Unlock()

	lm.mu.Lock()
	if lm.closed {
		lm.mu.Unlock()
		return nil
	}
	lm.closed = true
	st := lm.state
	lm.state = &levelState{
		snapshot: NewLevelsSnapshot(lm.controller.Options(), lm.opt.Comparer),
		tables:   make(map[uint64]*Table),
	}
	lm.mu.Unlock()

	var errs []error
	for _, t := range st.tables {
		errs = append(errs, t.DecrRef())
	}
	return utils.WarpErr(errs...)
}
