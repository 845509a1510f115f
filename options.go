package appcore

import (
	"github.com/fixlocal/appcore/client"
	"github.com/fixlocal/appcore/config"
	"github.com/fixlocal/appcore/events"
	"github.com/fixlocal/appcore/store"
	"github.com/fixlocal/appcore/workerpool"
)

// Option configures the App during New.
type Option func(*App)

// WithConfig supplies a configuration instead of reading the environment.
func WithConfig(cfg *config.Configuration) Option {
	return func(a *App) {
		a.cfg = cfg
	}
}

// WithStore supplies the key value store backing sessions and
// translation tables.
func WithStore(st store.Store) Option {
	return func(a *App) {
		a.store = st
	}
}

// WithWorkerPool supplies an externally managed pool. The App will not
// shut it down on Stop.
func WithWorkerPool(pool workerpool.Manager) Option {
	return func(a *App) {
		a.pool = pool
	}
}

// WithEvents supplies the event manager state changes are published to.
func WithEvents(em events.Manager) Option {
	return func(a *App) {
		a.events = em
	}
}

// WithHTTPOptions appends transport options, applied after the defaults
// so they can override timeout, transport or tracing behaviour.
func WithHTTPOptions(opts ...client.HTTPOption) Option {
	return func(a *App) {
		a.httpOpts = append(a.httpOpts, opts...)
	}
}

// WithSeedTranslations points at bundled messages.<lang>.toml files used
// before any cached or fetched table exists.
func WithSeedTranslations(dir string, languages ...string) Option {
	return func(a *App) {
		a.seedDir = dir
		a.seedLangs = languages
	}
}
