package flanngo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives operation timings. Implementations must be
// safe for concurrent use; a typical implementation forwards to
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordBuild is called once per index build.
	RecordBuild(rows int, duration time.Duration, err error)

	// RecordKNNSearch is called once per k-NN batch.
	RecordKNNSearch(queries, k int, duration time.Duration, err error)

	// RecordRadiusSearch is called once per radius query.
	RecordRadiusSearch(found int, duration time.Duration, err error)

	// RecordSave is called once per save with the bytes written.
	RecordSave(bytes int64, duration time.Duration, err error)

	// RecordLoad is called once per load.
	RecordLoad(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBuild(int, time.Duration, error)          {}
func (NoopMetricsCollector) RecordKNNSearch(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordRadiusSearch(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordSave(int64, time.Duration, error)         {}
func (NoopMetricsCollector) RecordLoad(time.Duration, error)                {}

// BasicMetricsCollector provides simple in-memory metrics collection,
// useful for debugging without external dependencies.
type BasicMetricsCollector struct {
	BuildCount        atomic.Int64
	BuildErrors       atomic.Int64
	BuildTotalNanos   atomic.Int64
	SearchCount       atomic.Int64
	SearchErrors      atomic.Int64
	SearchTotalNanos  atomic.Int64
	RadiusCount       atomic.Int64
	RadiusErrors      atomic.Int64
	SaveCount         atomic.Int64
	SaveErrors        atomic.Int64
	SaveTotalBytes    atomic.Int64
	LoadCount         atomic.Int64
	LoadErrors        atomic.Int64
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(rows int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// RecordKNNSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordKNNSearch(queries, k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordRadiusSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRadiusSearch(found int, duration time.Duration, err error) {
	b.RadiusCount.Add(1)
	if err != nil {
		b.RadiusErrors.Add(1)
	}
}

// RecordSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSave(bytes int64, duration time.Duration, err error) {
	b.SaveCount.Add(1)
	b.SaveTotalBytes.Add(bytes)
	if err != nil {
		b.SaveErrors.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(duration time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// Stats is a snapshot of BasicMetricsCollector state.
type Stats struct {
	BuildCount      int64
	BuildErrors     int64
	BuildAvgNanos   int64
	SearchCount     int64
	SearchErrors    int64
	SearchAvgNanos  int64
	RadiusCount     int64
	RadiusErrors    int64
	SaveCount       int64
	SaveErrors      int64
	SaveTotalBytes  int64
	LoadCount       int64
	LoadErrors      int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() Stats {
	s := Stats{
		BuildCount:     b.BuildCount.Load(),
		BuildErrors:    b.BuildErrors.Load(),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		RadiusCount:    b.RadiusCount.Load(),
		RadiusErrors:   b.RadiusErrors.Load(),
		SaveCount:      b.SaveCount.Load(),
		SaveErrors:     b.SaveErrors.Load(),
		SaveTotalBytes: b.SaveTotalBytes.Load(),
		LoadCount:      b.LoadCount.Load(),
		LoadErrors:     b.LoadErrors.Load(),
	}
	if s.BuildCount > 0 {
		s.BuildAvgNanos = b.BuildTotalNanos.Load() / s.BuildCount
	}
	if s.SearchCount > 0 {
		s.SearchAvgNanos = b.SearchTotalNanos.Load() / s.SearchCount
	}
	return s
}
