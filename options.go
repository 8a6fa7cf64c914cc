package reveal

import (
	"math/rand/v2"

	"github.com/gogpu/reveal/internal/parallel"
)

// Option configures a Session, Preloader or Viewer during creation.
//
// Example:
//
//	s, err := reveal.NewSession(lib, src,
//	    reveal.WithConfig(cfg),
//	    reveal.WithCounter(counter),
//	)
type Option func(*options)

// options holds optional configuration shared by the constructors.
type options struct {
	cfg     Config
	rng     *rand.Rand
	counter Counter
	pool    *parallel.Pool
}

// defaultOptions returns the default options.
func defaultOptions() options {
	return options{
		cfg: DefaultConfig(),
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.counter == nil {
		o.counter = &MemoryCounter{}
	}
	return o
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithRand sets the random source used by the index sampler.
// Use a seeded source for reproducible sampling in tests and demos.
// The source is used under the preloader's lock only.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) {
		o.rng = rng
	}
}

// WithCounter sets the reveal counter incremented on every completed
// expansion. The default is an in-memory counter starting at zero.
func WithCounter(c Counter) Option {
	return func(o *options) {
		o.counter = c
	}
}

// withPool makes a Session run fetches on an existing pool instead of
// creating its own. The Session does not close a pool it did not create.
func withPool(p *parallel.Pool) Option {
	return func(o *options) {
		o.pool = p
	}
}
