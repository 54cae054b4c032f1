// Package factory maps backend kinds to adapter constructors.
package factory

import (
	"fmt"
	"time"

	"github.com/nimburion/servicekit/pkg/observability/logger"
	"github.com/nimburion/servicekit/pkg/store"
	"github.com/nimburion/servicekit/pkg/store/mongodb"
	"github.com/nimburion/servicekit/pkg/store/postgres"
	"github.com/nimburion/servicekit/pkg/store/redis"
)

// Options carries the driver settings shared by every adapter.
type Options struct {
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	// SSLMode applies to the relational adapter only.
	SSLMode string
}

// Constructor builds an unconnected manager for params.
type Constructor func(params store.Params, opts Options, log logger.Logger) (store.Manager, error)

// Factory selects the constructor registered for a kind.
type Factory struct {
	constructors map[store.Kind]Constructor
	opts         Options
	log          logger.Logger
}

// Option customizes a Factory.
type Option func(*Factory)

// WithConstructor overrides or adds the constructor used for kind.
func WithConstructor(kind store.Kind, c Constructor) Option {
	return func(f *Factory) { f.constructors[kind] = c }
}

// WithOptions sets the driver settings passed to every constructor.
func WithOptions(opts Options) Option {
	return func(f *Factory) { f.opts = opts }
}

// DefaultConstructors returns the built-in kind to adapter table.
func DefaultConstructors() map[store.Kind]Constructor {
	return map[store.Kind]Constructor{
		store.KindRelational: func(params store.Params, opts Options, log logger.Logger) (store.Manager, error) {
			return postgres.NewAdapter(params, postgres.Config{
				SSLMode:        opts.SSLMode,
				ConnectTimeout: opts.ConnectTimeout,
				QueryTimeout:   opts.OperationTimeout,
			}, log)
		},
		store.KindDocument: func(params store.Params, opts Options, log logger.Logger) (store.Manager, error) {
			return mongodb.NewAdapter(params, mongodb.Config{
				ConnectTimeout:   opts.ConnectTimeout,
				OperationTimeout: opts.OperationTimeout,
			}, log)
		},
		store.KindKeyValue: func(params store.Params, opts Options, log logger.Logger) (store.Manager, error) {
			return redis.NewAdapter(params, redis.Config{
				ConnectTimeout:   opts.ConnectTimeout,
				OperationTimeout: opts.OperationTimeout,
			}, log)
		},
	}
}

// Cosa fa: costruisce una factory con la tabella di default più eventuali override.
// Cosa NON fa: non crea adapter finché non si chiama New.
// Esempio minimo: f := factory.NewFactory(log, factory.WithOptions(opts))
func NewFactory(log logger.Logger, opts ...Option) *Factory {
	if log == nil {
		log = logger.Nop()
	}
	f := &Factory{
		constructors: DefaultConstructors(),
		log:          log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Supports reports whether a constructor is registered for kind.
func (f *Factory) Supports(kind store.Kind) bool {
	_, ok := f.constructors[kind]
	return ok
}

// New builds the manager for params. An unknown kind yields *store.UnsupportedBackendError.
func (f *Factory) New(params store.Params) (store.Manager, error) {
	c, ok := f.constructors[params.Kind()]
	if !ok || c == nil {
		return nil, &store.UnsupportedBackendError{Name: params.Kind().String()}
	}
	m, err := c(params, f.opts, f.log)
	if err != nil {
		return nil, fmt.Errorf("build %s adapter: %w", params.Kind(), err)
	}
	return m, nil
}
