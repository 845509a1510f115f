package session

import (
	"context"
	"errors"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pitabwire/util"

	"github.com/fixlocal/appcore/api"
	"github.com/fixlocal/appcore/events"
	"github.com/fixlocal/appcore/store"
	"github.com/fixlocal/appcore/workerpool"
)

const (
	storageKeyAccessToken  = "auth_token"
	storageKeyRefreshToken = "refresh_token"
)

// EventChanged is emitted whenever the session state transitions.
const EventChanged = "session.changed"

// Snapshot is the payload carried by EventChanged.
type Snapshot struct {
	LoggedIn bool
	Loading  bool
	User     *api.User
}

// ProfileFetcher retrieves the authoritative profile for the current
// bearer token.
type ProfileFetcher interface {
	Me(ctx context.Context) (*api.User, error)
}

// Manager is the single source of truth for whether the user is
// authenticated and who they are. Auth is presence based: holding a
// persisted access token is treated as logged in without client side
// verification; the server is the only validator.
type Manager interface {
	// Bootstrap reads persisted tokens and optimistically restores the
	// session, then fetches the profile in the background. Profile fetch
	// failures never invalidate an existing token.
	Bootstrap(ctx context.Context)

	// Login marks the session logged in and persists both tokens. When
	// user is nil the profile is fetched in the background.
	Login(ctx context.Context, accessToken, refreshToken string, user *api.User)

	// Logout clears the session. The in-memory transition to logged out
	// always happens; persistence cleanup is best effort and its error is
	// returned for observability only.
	Logout(ctx context.Context) error

	// SetUser replaces the cached profile in memory only.
	SetUser(user *api.User)

	IsLoggedIn() bool
	User() *api.User
	Loading() bool

	// AccessToken implements client.TokenSource.
	AccessToken(ctx context.Context) string
	RefreshToken() string

	// Claims decodes the access token without verifying it. Informational
	// only; never use it to make trust decisions.
	Claims() (jwt.MapClaims, bool)
}

// Option configures the session manager.
type Option func(*manager)

// WithWorkerPool sets the pool used for background profile fetches.
func WithWorkerPool(pool workerpool.Manager) Option {
	return func(m *manager) {
		m.pool = pool
	}
}

// WithEvents sets the event manager state changes are published to.
func WithEvents(em events.Manager) Option {
	return func(m *manager) {
		m.events = em
	}
}

type manager struct {
	store    store.Store
	profiles ProfileFetcher
	pool     workerpool.Manager
	events   events.Manager

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	user         *api.User
	loggedIn     bool
	loading      bool
}

// NewManager creates a session manager. Loading starts true and is
// cleared once Bootstrap terminates, success or failure.
func NewManager(st store.Store, profiles ProfileFetcher, opts ...Option) Manager {
	m := &manager{
		store:    st,
		profiles: profiles,
		loading:  true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *manager) Bootstrap(ctx context.Context) {
	defer m.finishLoading(ctx)

	token, found, err := m.store.Get(ctx, storageKeyAccessToken)
	if err != nil {
		util.Log(ctx).WithError(err).Warn("could not read persisted access token")
		return
	}
	if !found || len(token) == 0 {
		return
	}

	refresh, _, err := m.store.Get(ctx, storageKeyRefreshToken)
	if err != nil {
		util.Log(ctx).WithError(err).Warn("could not read persisted refresh token")
	}

	m.mu.Lock()
	m.accessToken = string(token)
	m.refreshToken = string(refresh)
	m.loggedIn = true
	m.mu.Unlock()
	m.emit(ctx)

	m.fetchProfileAsync(ctx)
}

func (m *manager) Login(ctx context.Context, accessToken, refreshToken string, user *api.User) {
	if err := m.store.Set(ctx, storageKeyAccessToken, []byte(accessToken)); err != nil {
		util.Log(ctx).WithError(err).Error("could not persist access token")
	}
	if refreshToken != "" {
		if err := m.store.Set(ctx, storageKeyRefreshToken, []byte(refreshToken)); err != nil {
			util.Log(ctx).WithError(err).Error("could not persist refresh token")
		}
	}

	m.mu.Lock()
	m.accessToken = accessToken
	m.refreshToken = refreshToken
	m.loggedIn = true
	m.user = user
	m.mu.Unlock()
	m.emit(ctx)

	if user == nil {
		m.fetchProfileAsync(ctx)
	}
}

func (m *manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.loggedIn = false
	m.user = nil
	m.accessToken = ""
	m.refreshToken = ""
	m.mu.Unlock()
	m.emit(ctx)

	err := errors.Join(
		m.store.Delete(ctx, storageKeyAccessToken),
		m.store.Delete(ctx, storageKeyRefreshToken),
	)
	if err != nil {
		util.Log(ctx).WithError(err).Warn("could not clear persisted tokens")
	}
	return err
}

func (m *manager) SetUser(user *api.User) {
	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
	m.emit(context.Background())
}

func (m *manager) IsLoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loggedIn
}

func (m *manager) User() *api.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

func (m *manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

func (m *manager) AccessToken(_ context.Context) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessToken
}

func (m *manager) RefreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshToken
}

func (m *manager) Claims() (jwt.MapClaims, bool) {
	m.mu.RLock()
	token := m.accessToken
	m.mu.RUnlock()

	if token == "" {
		return nil, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}

func (m *manager) fetchProfileAsync(ctx context.Context) {
	task := func() {
		m.fetchProfile(ctx)
	}

	if m.pool == nil {
		task()
		return
	}
	if err := m.pool.Submit(ctx, task); err != nil {
		util.Log(ctx).WithError(err).Debug("profile fetch running inline, pool rejected task")
		task()
	}
}

func (m *manager) fetchProfile(ctx context.Context) {
	user, err := m.profiles.Me(ctx)
	if err != nil {
		// A missing profile is not fatal; the token alone is sufficient
		// for the optimistic session.
		util.Log(ctx).WithError(err).Warn("could not fetch user profile")
		return
	}

	m.mu.Lock()
	if !m.loggedIn {
		// Logged out while the fetch was in flight; a user without a
		// token must never be synthesized.
		m.mu.Unlock()
		return
	}
	m.user = user
	m.mu.Unlock()
	m.emit(ctx)
}

func (m *manager) finishLoading(ctx context.Context) {
	m.mu.Lock()
	m.loading = false
	m.mu.Unlock()
	m.emit(ctx)
}

func (m *manager) emit(ctx context.Context) {
	if m.events == nil {
		return
	}

	m.mu.RLock()
	snapshot := Snapshot{
		LoggedIn: m.loggedIn,
		Loading:  m.loading,
		User:     m.user,
	}
	m.mu.RUnlock()

	m.events.Emit(ctx, EventChanged, snapshot)
}
