package flanngo

import (
	"log/slog"

	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/resource"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	controller       *resource.Controller
}

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
}

// Option configures Index construction and load behavior.
type Option func(*options)

// WithLogger sets the logger. Nil restores the no-op logger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithLogLevel installs a text logger to stderr at the given level.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector sets the metrics sink. Nil restores the no-op
// collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithResourceController gates build workers and persistence I/O
// through the given controller.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

type searchOptions struct {
	checks       int
	maxNeighbors int
	cores        int
}

// SearchOption overrides query-time knobs for a single call, on top of
// the build Params.
type SearchOption func(*searchOptions)

// WithChecks overrides the traversal budget.
func WithChecks(checks int) SearchOption {
	return func(o *searchOptions) {
		o.checks = checks
	}
}

// WithExhaustiveChecks forces a full scan, making any index behave like
// the linear oracle.
func WithExhaustiveChecks() SearchOption {
	return func(o *searchOptions) {
		o.checks = index.ChecksExhaustive
	}
}

// WithMaxNeighbors caps radius search results. If more points qualify,
// the closest ones are returned and the rest silently truncated. The
// default 0 means unlimited.
func WithMaxNeighbors(max int) SearchOption {
	return func(o *searchOptions) {
		o.maxNeighbors = max
	}
}

// WithCores limits query fan-out parallelism for a call.
func WithCores(cores int) SearchOption {
	return func(o *searchOptions) {
		o.cores = cores
	}
}
