package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// aetherlessCollector implements prometheus.Collector, reading the
// active backend's counters on each scrape.
type aetherlessCollector struct {
	srv *Server

	packetsTotal   *prometheus.Desc
	packetsMatched *prometheus.Desc
	packetsPassed  *prometheus.Desc
	packetsDropped *prometheus.Desc

	redirectEntries *prometheus.Desc
}

func newCollector(srv *Server) *aetherlessCollector {
	return &aetherlessCollector{
		srv: srv,

		packetsTotal: prometheus.NewDesc(
			"aetherless_packets_total",
			"Total packets inspected.",
			nil, nil,
		),
		packetsMatched: prometheus.NewDesc(
			"aetherless_packets_matched_total",
			"Packets whose destination port matched a redirect entry.",
			nil, nil,
		),
		packetsPassed: prometheus.NewDesc(
			"aetherless_packets_passed_total",
			"Packets passed to the network stack.",
			nil, nil,
		),
		packetsDropped: prometheus.NewDesc(
			"aetherless_packets_dropped_total",
			"Packets dropped by the strict policy.",
			nil, nil,
		),
		redirectEntries: prometheus.NewDesc(
			"aetherless_redirect_entries",
			"Number of registered redirect table entries.",
			nil, nil,
		),
	}
}

func (c *aetherlessCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packetsTotal
	ch <- c.packetsMatched
	ch <- c.packetsPassed
	ch <- c.packetsDropped
	ch <- c.redirectEntries
}

func (c *aetherlessCollector) Collect(ch chan<- prometheus.Metric) {
	if counters, err := c.srv.stats.ReadStats(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.packetsTotal, prometheus.CounterValue, float64(counters.Total))
		ch <- prometheus.MustNewConstMetric(c.packetsMatched, prometheus.CounterValue, float64(counters.Matched))
		ch <- prometheus.MustNewConstMetric(c.packetsPassed, prometheus.CounterValue, float64(counters.Passed))
		ch <- prometheus.MustNewConstMetric(c.packetsDropped, prometheus.CounterValue, float64(counters.Dropped))
	}
	ch <- prometheus.MustNewConstMetric(c.redirectEntries, prometheus.GaugeValue, float64(c.srv.table.Len()))
}
