package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recommendationsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobboard",
			Subsystem: "recommend",
			Name:      "rows_upserted_total",
			Help:      "推荐重算写入的行数。",
		},
		[]string{"kind"},
	)

	regenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobboard",
			Subsystem: "recommend",
			Name:      "regeneration_duration_seconds",
			Help:      "单个主体一次推荐重算的耗时。",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	regenerationsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobboard",
			Subsystem: "recommend",
			Name:      "regenerations_coalesced_total",
			Help:      "因已有更新结果而被合并跳过的重算任务数。",
		},
		[]string{"kind"},
	)

	pipelineTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobboard",
			Subsystem: "pipeline",
			Name:      "transitions_total",
			Help:      "申请状态流转次数。",
		},
		[]string{"from", "to"},
	)

	savedSearchMatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jobboard",
			Subsystem: "savedsearch",
			Name:      "new_matches_total",
			Help:      "保存搜索新命中的候选人数。",
		},
	)
)

// ObserveRecommendations 记录一次重算写入的行数。
func ObserveRecommendations(kind string, rows int) {
	recommendationsWritten.WithLabelValues(kind).Add(float64(rows))
}

// ObserveRegeneration 记录一次重算耗时。
func ObserveRegeneration(kind string, d time.Duration) {
	regenerationDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveCoalesced 记录一次被合并的重算。
func ObserveCoalesced(kind string) {
	regenerationsSkipped.WithLabelValues(kind).Inc()
}

// ObserveTransition 记录一次状态流转。
func ObserveTransition(from, to string) {
	pipelineTransitions.WithLabelValues(from, to).Inc()
}

// ObserveSavedSearchMatches 记录新命中数。
func ObserveSavedSearchMatches(n int) {
	if n > 0 {
		savedSearchMatches.Add(float64(n))
	}
}
