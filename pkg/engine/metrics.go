package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ruleflow",
		Name:      "executions_total",
		Help:      "Total number of rule executions, partitioned by outcome.",
	}, []string{"outcome"})
	metricBlocksEvaluatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ruleflow",
		Name:      "blocks_evaluated_total",
		Help:      "Total number of DAG blocks evaluated across all rule executions.",
	})
	metricExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ruleflow",
		Name:      "execution_duration_seconds",
		Help:      "Time to run a single rule execution end to end.",
		Buckets:   prometheus.DefBuckets,
	})
)
