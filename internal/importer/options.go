package importer

import "go.uber.org/zap"

// DefaultMaxDepth bounds element nesting when no limit is configured.
const DefaultMaxDepth = 256

type options struct {
	maxDepth int
	logger   *zap.Logger
}

// Option configures a parse.
type Option func(*options)

// WithMaxDepth limits element nesting. Values <= 0 select DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

// WithLogger sets the logger used for debug output about discarded text.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func resolveOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxDepth <= 0 {
		o.maxDepth = DefaultMaxDepth
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
