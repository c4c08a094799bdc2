package lsmt

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "lsmkv"

// Metrics 是存储引擎的prometheus指标，nil的*Metrics可以直接使用，不做任何记录
type Metrics struct {
	BlockCacheHits    prometheus.Counter
	BlockCacheMisses  prometheus.Counter
	TablesWritten     prometheus.Counter
	BytesWritten      prometheus.Counter
	TablesDeleted     prometheus.Counter
	Compactions       *prometheus.CounterVec
	CompactionErrors  prometheus.Counter
	CompactionSeconds prometheus.Histogram
}

// NewMetrics 创建还没有注册的指标，通过Collectors注册到registry
func NewMetrics() *Metrics {
	return &Metrics{
		BlockCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "block_cache",
			Name:      "hits_total",
			Help:      "Number of block reads served from the block cache.",
		}),
		BlockCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "block_cache",
			Name:      "misses_total",
			Help:      "Number of block reads decoded from the table file.",
		}),
		TablesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sstable",
			Name:      "written_total",
			Help:      "Number of sstables written.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sstable",
			Name:      "written_bytes_total",
			Help:      "Number of bytes written to sstables.",
		}),
		TablesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sstable",
			Name:      "deleted_total",
			Help:      "Number of obsolete sstables deleted.",
		}),
		Compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "compaction",
			Name:      "runs_total",
			Help:      "Number of finished compactions by kind.",
		}, []string{"kind"}),
		CompactionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "compaction",
			Name:      "errors_total",
			Help:      "Number of failed compactions.",
		}),
		CompactionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "compaction",
			Name:      "duration_seconds",
			Help:      "Duration of compactions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}

// Collectors 返回所有指标
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.BlockCacheHits,
		m.BlockCacheMisses,
		m.TablesWritten,
		m.BytesWritten,
		m.TablesDeleted,
		m.Compactions,
		m.CompactionErrors,
		m.CompactionSeconds,
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.BlockCacheHits.Inc()
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.BlockCacheMisses.Inc()
	}
}

func (m *Metrics) tableWritten(size int64) {
	if m != nil {
		m.TablesWritten.Inc()
		m.BytesWritten.Add(float64(size))
	}
}

func (m *Metrics) tableDeleted() {
	if m != nil {
		m.TablesDeleted.Inc()
	}
}

func (m *Metrics) compactionDone(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.CompactionErrors.Inc()
		return
	}
	m.Compactions.WithLabelValues(kind).Inc()
	m.CompactionSeconds.Observe(time.Since(start).Seconds())
}
