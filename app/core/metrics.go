package core

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lumina-ai/lumina/pkg/metrics"
)

type Metrics struct {
	cacheHitCounter   *prometheus.CounterVec
	cacheMissCounter  *prometheus.CounterVec
	broadcastPublish  *prometheus.CounterVec
	broadcastReceive  *prometheus.CounterVec
	broadcastDropped  *prometheus.CounterVec
	autoSaveCounter   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	storageBytes      *prometheus.GaugeVec
}

func NewMetrics(ns, system string) *Metrics {
	// setup metric
	metrics.SetupMetricsManager(ns, system, prometheus.DefaultRegisterer.(*prometheus.Registry))

	m := &Metrics{
		cacheHitCounter:   metrics.NewCounterVec("cache_hit", []string{"cache"}),
		cacheMissCounter:  metrics.NewCounterVec("cache_miss", []string{"cache"}),
		broadcastPublish:  metrics.NewCounterVec("broadcast_publish", nil),
		broadcastReceive:  metrics.NewCounterVec("broadcast_receive", nil),
		broadcastDropped:  metrics.NewCounterVec("broadcast_dropped", []string{"reason"}),
		autoSaveCounter:   metrics.NewCounterVec("auto_save", nil),
		operationDuration: metrics.NewHistogramVec("operation_duration", []string{"operation"}),
		storageBytes:      metrics.NewGaugeVec("storage_bytes", []string{"kind"}),
	}

	return m
}

func (m *Metrics) CacheHitInc(cache string) {
	m.cacheHitCounter.WithLabelValues(cache).Inc()
}

func (m *Metrics) CacheMissInc(cache string) {
	m.cacheMissCounter.WithLabelValues(cache).Inc()
}

func (m *Metrics) BroadcastPublishInc() {
	m.broadcastPublish.WithLabelValues().Inc()
}

func (m *Metrics) BroadcastReceiveInc() {
	m.broadcastReceive.WithLabelValues().Inc()
}

func (m *Metrics) BroadcastDroppedInc(reason string) {
	m.broadcastDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) AutoSaveInc() {
	m.autoSaveCounter.WithLabelValues().Inc()
}

func (m *Metrics) OperationTimer(operation string) *prometheus.Timer {
	return prometheus.NewTimer(m.operationDuration.WithLabelValues(operation))
}

func (m *Metrics) StorageBytesSet(usage, quota int64) {
	m.storageBytes.WithLabelValues("usage").Set(float64(usage))
	m.storageBytes.WithLabelValues("quota").Set(float64(quota))
}
