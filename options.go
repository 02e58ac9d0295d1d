package valloc

import (
	"log/slog"

	"github.com/hupe1980/valloc/resource"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	resources        *resource.Controller
	mapped           bool
	verify           bool
}

func defaultOptions() options {
	return options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
}

// Option configures Allocator construction.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &valloc.BasicMetricsCollector{}
//	a, _ := valloc.New(1<<20, valloc.WithMetricsCollector(metrics))
//	// ... use a ...
//	stats := metrics.GetStats()
//	fmt.Printf("Allocs: %d, OOM: %d\n", stats.AllocCount, stats.AllocErrors)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := valloc.NewJSONLogger(slog.LevelDebug)
//	a, _ := valloc.New(1<<20, valloc.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceController reserves the arena capacity from rc when the
// allocator is created and returns it on Close. Several allocators can share
// one controller to enforce a common memory budget. The controller's IO limit
// throttles heap dumps.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithMapped backs the arena by an anonymous memory mapping outside the Go
// heap. It has no effect on FromBytes.
func WithMapped() Option {
	return func(o *options) {
		o.mapped = true
	}
}

// WithVerify re-checks the ledger invariants after every mutating operation.
// It turns each operation into O(chunks) work; use it in tests and when
// hunting corruption.
func WithVerify() Option {
	return func(o *options) {
		o.verify = true
	}
}
