package bes3t

import (
	"log"
	"os"
)

// Option configures how a Dataset is loaded.
type Option func(*options)

type options struct {
	strictVersion bool
	logger        *log.Logger
}

func defaultOptions() *options {
	return &options{
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// WithStrictVersion makes a layer VERSION outside the supported set a fatal
// ErrFormat instead of a logged warning.
func WithStrictVersion() Option {
	return func(o *options) {
		o.strictVersion = true
	}
}

// WithLogger sets the logger used for non-fatal warnings.  A nil logger
// silences them.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func (o *options) warnf(format string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}
