package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts query and item cache lookups by group and result (hit, miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custom_tables_cache_lookups_total",
			Help: "Total number of cache lookups",
		},
		[]string{"group", "result"},
	)
	// Statements counts executed statements by table and kind (select, count, insert, update, delete, ddl).
	Statements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custom_tables_statements_total",
			Help: "Total number of executed statements",
		},
		[]string{"table", "kind"},
	)
	// StatementDuration is the latency of executed statements.
	StatementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custom_tables_statement_duration_seconds",
			Help:    "Statement latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table", "kind"},
	)
	// UpgradeSteps counts table upgrade steps by table and status (applied, failed).
	UpgradeSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custom_tables_upgrade_steps_total",
			Help: "Total number of table upgrade steps",
		},
		[]string{"table", "status"},
	)
)

func CacheHit(group string) {
	CacheLookups.WithLabelValues(group, "hit").Inc()
}

func CacheMiss(group string) {
	CacheLookups.WithLabelValues(group, "miss").Inc()
}
