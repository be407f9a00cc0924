package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterPgxPoolMetrics publishes registry pool statistics as gauges. A
// saturated pool during a backup window shows up here before it shows up as
// API latency.
func RegisterPgxPoolMetrics(pool *pgxpool.Pool) {
	gauge := func(name, help string, value func(*pgxpool.Stat) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(value(pool.Stat()))
		})
	}

	prometheus.MustRegister(
		gauge("pgxpool_acquired_conns", "Connections currently acquired from the pool",
			func(s *pgxpool.Stat) int32 { return s.AcquiredConns() }),
		gauge("pgxpool_max_conns", "Configured pool connection ceiling",
			func(s *pgxpool.Stat) int32 { return s.MaxConns() }),
		gauge("pgxpool_total_conns", "Connections currently open, acquired or idle",
			func(s *pgxpool.Stat) int32 { return s.TotalConns() }),
		gauge("pgxpool_idle_conns", "Connections sitting idle in the pool",
			func(s *pgxpool.Stat) int32 { return s.IdleConns() }),
	)
}
