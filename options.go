package singleton

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithDocument sets the document that receives stylesheet and script elements.
// Defaults to an empty dom.Document.
func WithDocument(doc Document) Option {
	return func(r *Runtime) {
		if doc != nil {
			r.doc = doc
		}
	}
}

// WithFetcher sets the script fetcher. Defaults to HTTPFetcher with http.DefaultClient.
func WithFetcher(f Fetcher) Option {
	return func(r *Runtime) {
		if f != nil {
			r.fetcher = f
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics registers the runtime's collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Runtime) {
		r.registerer = reg
	}
}

// WithClock sets the time source used for cache-busting script URLs.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) {
		if now != nil {
			r.now = now
		}
	}
}

func WithAdmission(a Admission) Option {
	return func(r *Runtime) {
		r.admission = a
	}
}

// WithReady starts the runtime in the ready state.
func WithReady() Option {
	return func(r *Runtime) {
		r.ready = true
	}
}

// WithProvided pre-registers script names that are already present, so
// declaring them never triggers a fetch.
func WithProvided(names ...string) Option {
	return func(r *Runtime) {
		for _, name := range names {
			r.reg.provided[name] = true
		}
	}
}

// WithContext sets the context passed to the fetcher. Defaults to context.Background.
func WithContext(ctx context.Context) Option {
	return func(r *Runtime) {
		if ctx != nil {
			r.ctx = ctx
		}
	}
}
