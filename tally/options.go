package tally

import "github.com/rs/zerolog"

// Option is a set of configurable parameters. If left empty, defaults
// will be used
type Option func(c *Coordinator)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithParameters replaces DefaultParameters.
func WithParameters(params Parameters) Option {
	return func(c *Coordinator) {
		c.params = params
	}
}
