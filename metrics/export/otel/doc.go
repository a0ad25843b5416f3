// Package otel publishes authcore metrics through an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter. Each latency histogram
// becomes one Int64ObservableGauge per cumulative bucket plus a count
// gauge. The caller owns the MeterProvider; the exporter only registers a
// callback that reads [authcore.Engine.MetricsSnapshot].
package otel
