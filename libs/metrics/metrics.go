// Package metrics provides prometheus collectors for service level instrumentation.
package metrics

import (
	"database/sql"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "go_sql"
	subsystem = "stats"
)

// StatsGetter is implemented by *sql.DB and *sqlx.DB
type StatsGetter interface {
	Stats() sql.DBStats
}

// StatsCollector - a prometheus collector exposing database/sql pool statistics
// for one or more named databases
type StatsCollector struct {
	mu      sync.RWMutex
	getters map[string]StatsGetter

	maxOpenDesc           *prometheus.Desc
	openDesc              *prometheus.Desc
	inUseDesc             *prometheus.Desc
	idleDesc              *prometheus.Desc
	waitCountDesc         *prometheus.Desc
	waitDurationDesc      *prometheus.Desc
	maxIdleClosedDesc     *prometheus.Desc
	maxLifetimeClosedDesc *prometheus.Desc
}

// NewStatsCollector creates a new StatsCollector, the name is used as the db_name label
func NewStatsCollector(dbName string, sg StatsGetter) *StatsCollector {
	labels := []string{"db_name"}
	return &StatsCollector{
		getters: map[string]StatsGetter{dbName: sg},
		maxOpenDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "connections_max_open"),
			"Maximum number of open connections to the database.",
			labels, nil,
		),
		openDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "connections_open"),
			"The number of established connections both in use and idle.",
			labels, nil,
		),
		inUseDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "connections_in_use"),
			"The number of connections currently in use.",
			labels, nil,
		),
		idleDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "connections_idle"),
			"The number of idle connections.",
			labels, nil,
		),
		waitCountDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "connections_waited_for"),
			"The total number of connections waited for.",
			labels, nil,
		),
		waitDurationDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "connection_wait_duration_seconds"),
			"The total time blocked waiting for a new connection.",
			labels, nil,
		),
		maxIdleClosedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "connections_closed_max_idle"),
			"The total number of connections closed due to SetMaxIdleConns.",
			labels, nil,
		),
		maxLifetimeClosedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "connections_closed_max_lifetime"),
			"The total number of connections closed due to SetConnMaxLifetime.",
			labels, nil,
		),
	}
}

// AddStatsGetter adds another named database to the collector
func (c *StatsCollector) AddStatsGetter(dbName string, sg StatsGetter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getters[dbName] = sg
}

// Describe implements the prometheus.Collector interface
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxOpenDesc
	ch <- c.openDesc
	ch <- c.inUseDesc
	ch <- c.idleDesc
	ch <- c.waitCountDesc
	ch <- c.waitDurationDesc
	ch <- c.maxIdleClosedDesc
	ch <- c.maxLifetimeClosedDesc
}

// Collect implements the prometheus.Collector interface
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for dbName, sg := range c.getters {
		stats := sg.Stats()

		ch <- prometheus.MustNewConstMetric(
			c.maxOpenDesc, prometheus.GaugeValue, float64(stats.MaxOpenConnections), dbName)
		ch <- prometheus.MustNewConstMetric(
			c.openDesc, prometheus.GaugeValue, float64(stats.OpenConnections), dbName)
		ch <- prometheus.MustNewConstMetric(
			c.inUseDesc, prometheus.GaugeValue, float64(stats.InUse), dbName)
		ch <- prometheus.MustNewConstMetric(
			c.idleDesc, prometheus.GaugeValue, float64(stats.Idle), dbName)
		ch <- prometheus.MustNewConstMetric(
			c.waitCountDesc, prometheus.CounterValue, float64(stats.WaitCount), dbName)
		ch <- prometheus.MustNewConstMetric(
			c.waitDurationDesc, prometheus.CounterValue, stats.WaitDuration.Seconds(), dbName)
		ch <- prometheus.MustNewConstMetric(
			c.maxIdleClosedDesc, prometheus.CounterValue, float64(stats.MaxIdleClosed), dbName)
		ch <- prometheus.MustNewConstMetric(
			c.maxLifetimeClosedDesc, prometheus.CounterValue, float64(stats.MaxLifetimeClosed), dbName)
	}
}
