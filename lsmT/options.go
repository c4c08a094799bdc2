package lsmt

import (
	"log"
	"os"

	"lsmkv/utils"
)

// Logger 用于输出compaction等后台流程的日志
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type defaultLogger struct {
	l *log.Logger
}

// DefaultLogger 通过标准库log输出到stderr
var DefaultLogger Logger = defaultLogger{l: log.New(os.Stderr, "lsmkv ", log.LstdFlags|log.Lmicroseconds)}

func (d defaultLogger) Infof(format string, args ...interface{}) {
	d.l.Printf("INFO: "+format, args...)
}

func (d defaultLogger) Errorf(format string, args ...interface{}) {
	d.l.Printf("ERROR: "+format, args...)
}

type Options struct {
	WorkDir string
	// BlockSize is the target size of each block inside SSTable in bytes.
	BlockSize int
	// TargetSSTSize compaction输出的sstable的目标大小
	TargetSSTSize int
	// BlockCacheSize 缓存的block个数，0表示使用默认值，负数表示不使用缓存
	BlockCacheSize int
	// BloomFalsePositive is the false positive probabiltiy of bloom filter. 0 disables it.
	BloomFalsePositive float64
	Comparer           *utils.Comparer

	// compact
	Compaction CompactionOptions
	// 并行写compaction输出文件的协程数
	NumCompactionWriters int

	Logger  Logger
	Metrics *Metrics
}

const (
	defaultBlockSize      = 4 * utils.KB
	defaultTargetSSTSize  = 2 * utils.MB
	defaultBlockCacheSize = 1024
	defaultBloomFP        = 0.01
	defaultNumWriters     = 4
	// block内的offset是u16，block不能超过64KB
	maxBlockSize = 64 * utils.KB
)

// NewDefaultOptions 返回使用simple leveled compaction的默认配置
func NewDefaultOptions(workDir string) *Options {
	opt := &Options{
		WorkDir:            workDir,
		BloomFalsePositive: defaultBloomFP,
		Compaction: CompactionOptions{
			Style: SimpleLeveledCompaction,
			SimpleLeveled: SimpleLeveledCompactionOptions{
				SizeRatioPercent:               200,
				Level0FileNumCompactionTrigger: 2,
				MaxLevels:                      3,
			},
		},
	}
	opt.norm()
	return opt
}

// 补全没有设置的字段
func (opt *Options) norm() *Options {
	if opt.BlockSize <= 0 {
		opt.BlockSize = defaultBlockSize
	}
	if opt.BlockSize > maxBlockSize {
		opt.BlockSize = maxBlockSize
	}
	if opt.TargetSSTSize <= 0 {
		opt.TargetSSTSize = defaultTargetSSTSize
	}
	if opt.BlockCacheSize == 0 {
		opt.BlockCacheSize = defaultBlockCacheSize
	}
	if opt.BloomFalsePositive < 0 || opt.BloomFalsePositive >= 1 {
		opt.BloomFalsePositive = 0
	}
	if opt.Comparer == nil {
		opt.Comparer = utils.DefaultComparer
	}
	if opt.NumCompactionWriters <= 0 {
		opt.NumCompactionWriters = defaultNumWriters
	}
	if opt.Logger == nil {
		opt.Logger = DefaultLogger
	}
	opt.Compaction.norm()
	return opt
}

// builder需要的配置
func (opt *Options) builderOptions() BuilderOptions {
	return BuilderOptions{
		BlockSize:          opt.BlockSize,
		Comparer:           opt.Comparer,
		BloomFalsePositive: opt.BloomFalsePositive,
	}
}
