// Package appcore wires together the client side state of the
// application: the persisted key value store, the HTTP transport, the
// session store and the localization cache. It owns startup so that the
// pieces come up concurrently and converge to a renderable state even
// when the server is unreachable.
package appcore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pitabwire/util"

	"github.com/fixlocal/appcore/api"
	"github.com/fixlocal/appcore/client"
	"github.com/fixlocal/appcore/config"
	"github.com/fixlocal/appcore/events"
	"github.com/fixlocal/appcore/localization"
	"github.com/fixlocal/appcore/session"
	"github.com/fixlocal/appcore/store"
	"github.com/fixlocal/appcore/workerpool"
)

// App is the composition root. Construct it with New, call Bootstrap
// once, then read state through Session and Localization.
type App struct {
	cfg    *config.Configuration
	store  store.Store
	pool   workerpool.Manager
	events events.Manager

	invoker      client.Manager
	auth         *api.AuthAPI
	translations *api.TranslationAPI

	session      session.Manager
	localization localization.Manager

	httpOpts  []client.HTTPOption
	seedDir   string
	seedLangs []string

	ownsPool   bool
	ownsStore  bool
	reconciled atomic.Bool
}

// New assembles an App. Configuration defaults come from the
// environment; every collaborator can be swapped through options.
func New(ctx context.Context, opts ...Option) (*App, error) {
	a := &App{}
	for _, opt := range opts {
		opt(a)
	}

	if a.cfg == nil {
		cfg, err := config.FromEnv[config.Configuration]()
		if err != nil {
			return nil, err
		}
		a.cfg = &cfg
	}

	if a.store == nil {
		if path := a.cfg.GetStoragePath(); path != "" {
			st, err := store.NewFileStore(path)
			if err != nil {
				return nil, err
			}
			a.store = st
		} else {
			a.store = store.NewInMemoryStore()
		}
		a.ownsStore = true
	}

	if a.pool == nil {
		pool, err := workerpool.NewManager(ctx,
			workerpool.WithCapacity(a.cfg.GetCapacity()),
			workerpool.WithExpiryDuration(a.cfg.GetExpiryDuration()),
		)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.ownsPool = true
	}

	if a.events == nil {
		a.events = events.NewManager(a.pool)
	}

	httpOpts := []client.HTTPOption{
		client.WithHTTPTimeout(a.cfg.GetAPITimeout()),
		client.WithHTTPTokenSource(a),
	}
	if a.cfg.TraceAPIRequests() {
		httpOpts = append(httpOpts, client.WithHTTPTraceRequests())
	}
	httpOpts = append(httpOpts, a.httpOpts...)
	a.invoker = client.NewManager(ctx, httpOpts...)

	a.auth = api.NewAuthAPI(a.invoker, a.cfg.GetAPIBaseURL())
	a.translations = api.NewTranslationAPI(a.invoker, a.cfg.GetAPIBaseURL())

	a.session = session.NewManager(a.store, a.auth,
		session.WithWorkerPool(a.pool),
		session.WithEvents(a.events),
	)

	seedDir := a.seedDir
	if seedDir == "" {
		seedDir = a.cfg.GetTranslationsDir()
	}
	seedLangs := a.seedLangs
	if len(seedLangs) == 0 {
		seedLangs = []string{a.cfg.GetDefaultLanguage()}
	}

	a.localization = localization.NewManager(a.store, a.translations,
		localization.WithDefaultLanguage(a.cfg.GetDefaultLanguage()),
		localization.WithWorkerPool(a.pool),
		localization.WithEvents(a.events),
		localization.WithSeedDirectory(seedDir, seedLangs...),
	)

	a.watchProfileLanguage()

	return a, nil
}

// Bootstrap restores the session and the translation table concurrently.
// It returns once both are renderable; background refreshes against the
// server may still be in flight.
func (a *App) Bootstrap(ctx context.Context) {
	ctx = config.ToContext(ctx, a.cfg)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.session.Bootstrap(ctx)
	}()
	go func() {
		defer wg.Done()
		a.localization.Initialize(ctx, "")
	}()
	wg.Wait()
}

// Stop releases resources owned by the App.
func (a *App) Stop() {
	if a.ownsPool && a.pool != nil {
		a.pool.Shutdown()
	}
	if a.ownsStore && a.store != nil {
		if err := a.store.Close(); err != nil {
			util.Log(context.Background()).WithError(err).Warn("could not close store")
		}
	}
}

// AccessToken implements client.TokenSource so outbound requests carry
// the session bearer token once one exists.
func (a *App) AccessToken(ctx context.Context) string {
	if a.session == nil {
		return ""
	}
	return a.session.AccessToken(ctx)
}

// Login exchanges credentials with the backend and installs the
// resulting session.
func (a *App) Login(ctx context.Context, req api.LoginRequest) error {
	result, err := a.auth.Login(ctx, req)
	if err != nil {
		return err
	}
	a.session.Login(ctx, result.Token, result.RefreshToken, &result.User)
	return nil
}

// Register creates an account and installs its first session.
func (a *App) Register(ctx context.Context, req api.RegisterRequest) error {
	result, err := a.auth.Register(ctx, req)
	if err != nil {
		return err
	}
	a.session.Login(ctx, result.Token, result.RefreshToken, &result.User)
	return nil
}

// Logout invalidates the server session best effort and always clears
// local state.
func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		util.Log(ctx).WithError(err).Warn("server side logout failed")
	}
	return a.session.Logout(ctx)
}

// T is a convenience passthrough to the localization cache.
func (a *App) T(key string, defaultValue ...string) string {
	return a.localization.T(key, defaultValue...)
}

func (a *App) Config() *config.Configuration { return a.cfg }

func (a *App) Store() store.Store { return a.store }

func (a *App) Events() events.Manager { return a.events }

func (a *App) Invoker() client.Manager { return a.invoker }

func (a *App) Auth() *api.AuthAPI { return a.auth }

func (a *App) Translations() *api.TranslationAPI { return a.translations }

func (a *App) Session() session.Manager { return a.session }

func (a *App) Localization() localization.Manager { return a.localization }

// watchProfileLanguage reconciles the active language with the profile
// declared one exactly once per run, and only when the user has never
// explicitly chosen a language on this device.
func (a *App) watchProfileLanguage() {
	a.events.Subscribe(session.EventChanged, func(ctx context.Context, payload any) {
		snapshot, ok := payload.(session.Snapshot)
		if !ok || snapshot.User == nil || snapshot.User.Language == "" {
			return
		}
		if snapshot.User.Language == a.localization.Language() {
			return
		}
		if _, chosen := a.localization.PersistedLanguage(ctx); chosen {
			return
		}
		if !a.reconciled.CompareAndSwap(false, true) {
			return
		}

		util.Log(ctx).WithField("language", snapshot.User.Language).
			Info("switching to profile language")
		a.localization.ChangeLanguage(ctx, snapshot.User.Language)
	})
}
