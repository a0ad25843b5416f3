// Package prometheus renders authcore metrics in the Prometheus text
// exposition format.
//
// Mount [Exporter.Handler] on the scrape path. Counters are named
// authcore_*_total and the latency histograms authcore_*_latency_seconds.
// Nothing is registered globally.
package prometheus
