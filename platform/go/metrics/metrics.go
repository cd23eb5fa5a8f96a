// Package metrics holds Prometheus instruments shared across the control
// plane. All collectors are registered with the global registry, so importing
// this package in apps/api is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OpenTenantPools = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenant_db_pools_open",
			Help: "Number of tenant database pools currently cached in memory.",
		})

	TenantPoolOpensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_db_pool_opens_total",
			Help: "Cumulative number of tenant database pools opened.",
		})

	TenantPoolErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_db_pool_errors_total",
			Help: "Cumulative number of failed tenant database pool opens.",
		})

	DomainCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "domain_cache_hits_total",
			Help: "Cumulative number of hostname resolutions served from cache.",
		})

	DomainCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "domain_cache_misses_total",
			Help: "Cumulative number of hostname resolutions that hit the registry.",
		})

	DomainCacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "domain_cache_evictions_total",
			Help: "Cumulative number of expired hostname cache entries swept.",
		})

	ProvisioningRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_runs_total",
			Help: "Cumulative provisioning runs, labelled by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		OpenTenantPools,
		TenantPoolOpensTotal,
		TenantPoolErrorsTotal,
		DomainCacheHitsTotal,
		DomainCacheMissesTotal,
		DomainCacheEvictionsTotal,
		ProvisioningRunsTotal,
	)
}
