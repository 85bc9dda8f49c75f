// Package metrics exports cache region statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-entity-cache/entitycache"
)

// StatisticsSource is implemented by *entitycache.Cache.
type StatisticsSource interface {
	AllStatistics() []entitycache.StatisticsSnapshot
}

// Collector reads statistics at scrape time. Values are gauges because
// statistics can be cleared.
type Collector struct {
	source StatisticsSource
	hits   *prometheus.Desc
	misses *prometheus.Desc
	puts   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(namespace string, source StatisticsSource) *Collector {
	labels := []string{"region"}
	return &Collector{
		source: source,
		hits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "region", "hits"),
			"Second-level cache hits since the last statistics clear.",
			labels, nil,
		),
		misses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "region", "misses"),
			"Second-level cache misses since the last statistics clear.",
			labels, nil,
		),
		puts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "region", "puts"),
			"Second-level cache puts since the last statistics clear.",
			labels, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.puts
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source.AllStatistics() {
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.GaugeValue, float64(s.Hits), s.Region)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.GaugeValue, float64(s.Misses), s.Region)
		ch <- prometheus.MustNewConstMetric(c.puts, prometheus.GaugeValue, float64(s.Puts), s.Region)
	}
}

// NewRegistry returns a registry holding only the collector.
func NewRegistry(c *Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return reg, nil
}
