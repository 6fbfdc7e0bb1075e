// Package metrics defines the process-wide Collector passed into
// Tenant, Timeline and LayerHandle as a capability, never reached
// through a global registry, per the side-effect-as-capability design
// note. Built on github.com/prometheus/client_golang.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds every metric this page server emits.
type Collector struct {
	LayerFlushes     prometheus.Counter
	GcRuns           prometheus.Counter
	GcBytesReclaimed prometheus.Counter
	Evictions        prometheus.Counter
	Downloads        prometheus.Counter
	ResidentLayers   prometheus.Gauge
}

// NewCollector builds and registers a Collector against reg. Pass a
// fresh prometheus.NewRegistry() in tests to avoid collisions with any
// other Collector in the same process.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		LayerFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageserver_layer_flushes_total",
			Help: "Total number of in-memory layers flushed to a historic layer file.",
		}),
		GcRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageserver_gc_runs_total",
			Help: "Total number of garbage collection passes run across all timelines.",
		}),
		GcBytesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageserver_gc_bytes_reclaimed_total",
			Help: "Total bytes reclaimed by removing historic layers below the GC cutoff.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageserver_layer_evictions_total",
			Help: "Total number of historic layers evicted from local disk.",
		}),
		Downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageserver_layer_downloads_total",
			Help: "Total number of historic layers downloaded from remote storage.",
		}),
		ResidentLayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pageserver_resident_layers",
			Help: "Current number of historic layers resident on local disk.",
		}),
	}

	if reg != nil {
		reg.MustRegister(c.LayerFlushes, c.GcRuns, c.GcBytesReclaimed, c.Evictions, c.Downloads, c.ResidentLayers)
	}
	return c
}

// observer methods are nil-safe so every caller can hold a possibly-nil
// *Collector without a guard at every call site.

func (c *Collector) ObserveFlush() {
	if c == nil {
		return
	}
	c.LayerFlushes.Inc()
}

func (c *Collector) ObserveGcRun(bytesReclaimed int64) {
	if c == nil {
		return
	}
	c.GcRuns.Inc()
	c.GcBytesReclaimed.Add(float64(bytesReclaimed))
}

func (c *Collector) ObserveEviction() {
	if c == nil {
		return
	}
	c.Evictions.Inc()
	c.ResidentLayers.Dec()
}

func (c *Collector) ObserveDownload() {
	if c == nil {
		return
	}
	c.Downloads.Inc()
	c.ResidentLayers.Inc()
}
