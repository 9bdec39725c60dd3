package metrics

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// RegisterPools exposes connection statistics for the core pool and the
// audience source database. It must be called once per process.
func RegisterPools(reg prometheus.Registerer, pool *pgxpool.Pool, source *sql.DB) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "outreach_core_pool_acquired_conns",
			Help: "Number of currently acquired connections in the core pool",
		}, func() float64 {
			return float64(pool.Stat().AcquiredConns())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "outreach_core_pool_max_conns",
			Help: "Maximum number of connections in the core pool",
		}, func() float64 {
			return float64(pool.Stat().MaxConns())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "outreach_core_pool_idle_conns",
			Help: "Number of idle connections in the core pool",
		}, func() float64 {
			return float64(pool.Stat().IdleConns())
		}),
	)
	if source != nil {
		reg.MustRegister(collectors.NewDBStatsCollector(source, "audience_source"))
	}
}
