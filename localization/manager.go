package localization

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pitabwire/util"
	"golang.org/x/text/language"

	"github.com/fixlocal/appcore/events"
	"github.com/fixlocal/appcore/store"
	"github.com/fixlocal/appcore/workerpool"
)

const (
	storageKeyUserLanguage  = "user_language"
	storageKeyTablePrefix   = "translations_"
	storageKeyVersionPrefix = "translation_version_"

	defaultLanguageCode = "en"
)

// EventChanged is emitted whenever the active table or language changes.
const EventChanged = "localization.changed"

// Snapshot is the payload carried by EventChanged.
type Snapshot struct {
	Language string
	Version  string
	Loading  bool
}

// Fetcher retrieves the authoritative string table and version stamp for
// a language from the server.
type Fetcher interface {
	Fetch(ctx context.Context, language string) (map[string]string, string, error)
}

// Manager serves translated strings with low latency, staying eventually
// consistent with the server table and tolerating offline operation.
//
// Lookups are always synchronous against whatever is currently in memory;
// all network and storage I/O happens in Initialize, Refresh and
// ChangeLanguage and updates memory atomically when complete. A missing
// key degrades to readable fallback text, never to an error.
type Manager interface {
	// T returns the translation for key, falling back to the optional
	// default value and then to the key itself. It never blocks.
	T(key string, defaultValue ...string) string

	// TranslateWithMap renders the translation for key with template
	// variables applied.
	TranslateWithMap(key string, variables map[string]any) string

	// TranslateWithMapAndCount renders the translation for key with
	// template variables and pluralization applied.
	TranslateWithMapAndCount(key string, variables map[string]any, count int) string

	Language() string
	Version() string
	Loading() bool

	// PersistedLanguage reports the explicitly chosen language preference
	// if one has been stored.
	PersistedLanguage(ctx context.Context) (string, bool)

	// Initialize determines the active language, loads its local table
	// for immediate lookups and refreshes from the server in the
	// background. Priority: persisted choice, then profileLanguage, then
	// the configured default.
	Initialize(ctx context.Context, profileLanguage string)

	// Refresh fetches the authoritative table for language and commits it
	// when the server version differs from knownVersion, is absent, or
	// force is set. Fetch failures leave current state untouched.
	Refresh(ctx context.Context, language, knownVersion string, force bool)

	// ChangeLanguage switches the active language, persists the
	// preference and refreshes, forcing a fetch when no cached table
	// exists to fall back on.
	ChangeLanguage(ctx context.Context, language string)
}

// Option configures the localization manager.
type Option func(*manager)

// WithDefaultLanguage sets the language used when neither a persisted
// preference nor a profile declaration exists.
func WithDefaultLanguage(lang string) Option {
	return func(m *manager) {
		if lang != "" {
			m.defaultLanguage = lang
		}
	}
}

// WithWorkerPool sets the pool used for background refreshes.
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

// WithSeedDirectory loads bundled messages.<lang>.toml files that serve
// as the table of last resort before any cache or server data exists.
func WithSeedDirectory(dir string, languages ...string) Option {
	return func(m *manager) {
		m.seedDir = dir
		m.seedLanguages = languages
	}
}

type manager struct {
	store   store.Store
	fetcher Fetcher
	pool    workerpool.Manager
	events  events.Manager

	defaultLanguage string
	seedDir         string
	seedLanguages   []string
	seeds           map[string]map[string]string

	mu         sync.RWMutex
	active     string
	entries    map[string]string
	version    string
	loading    bool
	generation uint64
	localizer  *i18n.Localizer
}

// NewManager creates a localization manager. Loading starts true and is
// cleared once Initialize terminates.
func NewManager(st store.Store, fetcher Fetcher, opts ...Option) Manager {
	m := &manager{
		store:           st,
		fetcher:         fetcher,
		defaultLanguage: defaultLanguageCode,
		entries:         map[string]string{},
		loading:         true,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.seeds = loadSeeds(m.seedDir, m.seedLanguages)

	return m
}

func (m *manager) T(key string, defaultValue ...string) string {
	m.mu.RLock()
	value, ok := m.entries[key]
	m.mu.RUnlock()

	if ok && value != "" {
		return value
	}
	if len(defaultValue) > 0 && defaultValue[0] != "" {
		return defaultValue[0]
	}
	return key
}

func (m *manager) TranslateWithMap(key string, variables map[string]any) string {
	return m.TranslateWithMapAndCount(key, variables, 1)
}

func (m *manager) TranslateWithMapAndCount(key string, variables map[string]any, count int) string {
	fallback := m.T(key)

	m.mu.RLock()
	localizer := m.localizer
	m.mu.RUnlock()

	if localizer == nil {
		return fallback
	}

	translated, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:      key,
		DefaultMessage: &i18n.Message{ID: key, Other: fallback},
		TemplateData:   variables,
		PluralCount:    count,
	})
	if err != nil || translated == "" {
		return fallback
	}
	return translated
}

func (m *manager) Language() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *manager) Version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

func (m *manager) PersistedLanguage(ctx context.Context) (string, bool) {
	data, found, err := m.store.Get(ctx, storageKeyUserLanguage)
	if err != nil {
		util.Log(ctx).WithError(err).Warn("could not read persisted language preference")
		return "", false
	}
	if !found || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

func (m *manager) Initialize(ctx context.Context, profileLanguage string) {
	gen := m.nextGeneration()

	lang := m.defaultLanguage
	if stored, ok := m.PersistedLanguage(ctx); ok {
		lang = stored
	} else if profileLanguage != "" {
		lang = profileLanguage
	}

	entries, version, _ := m.loadLocal(ctx, lang)

	m.mu.Lock()
	if gen == m.generation {
		m.active = lang
		m.setTableLocked(lang, entries, version)
	}
	m.loading = false
	m.mu.Unlock()
	m.emit(ctx)

	m.refreshAsync(ctx, lang, version)
}

func (m *manager) ChangeLanguage(ctx context.Context, lang string) {
	m.nextGeneration()

	entries, version, cached := m.loadLocal(ctx, lang)

	m.mu.Lock()
	m.active = lang
	m.setTableLocked(lang, entries, version)
	m.mu.Unlock()

	if err := m.store.Set(ctx, storageKeyUserLanguage, []byte(lang)); err != nil {
		util.Log(ctx).WithError(err).Warn("could not persist language preference")
	}
	m.emit(ctx)

	m.Refresh(ctx, lang, version, !cached)
}

func (m *manager) Refresh(ctx context.Context, lang, knownVersion string, force bool) {
	gen := m.currentGeneration()

	entries, serverVersion, err := m.fetcher.Fetch(ctx, lang)
	if err != nil {
		// Fail open to last known good state.
		util.Log(ctx).WithError(err).WithField("language", lang).
			Warn("could not refresh translations")
		return
	}

	if !force && serverVersion != "" && serverVersion == knownVersion {
		util.Log(ctx).WithField("language", lang).WithField("version", serverVersion).
			Debug("translations are up to date")
		return
	}

	m.commit(ctx, gen, lang, entries, serverVersion)
}

// commit atomically replaces the in-memory table and persists entries and
// version together. A refresh that resolved after its language was
// superseded is discarded silently.
func (m *manager) commit(ctx context.Context, gen uint64, lang string, entries map[string]string, version string) {
	m.mu.Lock()
	if m.active != lang || gen != m.generation {
		m.mu.Unlock()
		util.Log(ctx).WithField("language", lang).Debug("discarding stale translation refresh")
		return
	}
	previousVersion := m.version
	m.setTableLocked(lang, entries, version)
	m.mu.Unlock()

	util.Log(ctx).WithField("language", lang).
		WithField("from", previousVersion).WithField("to", version).
		WithField("keys", len(entries)).
		Info("updated translations")

	m.persistTable(ctx, lang, entries, version)
	m.emit(ctx)
}

// persistTable writes entries first and the version stamp last so a
// crash mid-write can never stamp a newer version against older entries.
func (m *manager) persistTable(ctx context.Context, lang string, entries map[string]string, version string) {
	data, err := json.Marshal(entries)
	if err != nil {
		util.Log(ctx).WithError(err).Error("could not encode translation table")
		return
	}

	if err = m.store.Set(ctx, storageKeyTablePrefix+lang, data); err != nil {
		util.Log(ctx).WithError(err).WithField("language", lang).
			Warn("could not persist translation table")
		return
	}

	if version == "" {
		// Unversioned tables disable the caching optimization; drop any
		// stale stamp so it cannot be compared against future fetches.
		if err = m.store.Delete(ctx, storageKeyVersionPrefix+lang); err != nil {
			util.Log(ctx).WithError(err).WithField("language", lang).
				Warn("could not clear translation version")
		}
		return
	}

	if err = m.store.Set(ctx, storageKeyVersionPrefix+lang, []byte(version)); err != nil {
		util.Log(ctx).WithError(err).WithField("language", lang).
			Warn("could not persist translation version")
	}
}

// loadLocal returns the table to serve before any server contact: the
// persisted table when present, a bundled seed otherwise, an empty table
// as the last resort. The version stamp only accompanies a persisted
// table.
func (m *manager) loadLocal(ctx context.Context, lang string) (map[string]string, string, bool) {
	entries := map[string]string{}
	cached := false

	data, found, err := m.store.Get(ctx, storageKeyTablePrefix+lang)
	if err != nil {
		util.Log(ctx).WithError(err).WithField("language", lang).
			Warn("could not read cached translation table")
	}
	if found && len(data) > 0 {
		if err = json.Unmarshal(data, &entries); err != nil {
			util.Log(ctx).WithError(err).WithField("language", lang).
				Warn("cached translation table is unreadable")
			entries = map[string]string{}
		} else {
			cached = true
		}
	}

	if !cached {
		if seed, ok := m.seeds[lang]; ok {
			for k, v := range seed {
				entries[k] = v
			}
		}
		return entries, "", false
	}

	version := ""
	vData, vFound, vErr := m.store.Get(ctx, storageKeyVersionPrefix+lang)
	if vErr != nil {
		util.Log(ctx).WithError(vErr).WithField("language", lang).
			Warn("could not read cached translation version")
	} else if vFound {
		version = string(vData)
	}

	return entries, version, true
}

func (m *manager) refreshAsync(ctx context.Context, lang, knownVersion string) {
	task := func() {
		m.Refresh(ctx, lang, knownVersion, false)
	}

	if m.pool == nil {
		task()
		return
	}
	if err := m.pool.Submit(ctx, task); err != nil {
		util.Log(ctx).WithError(err).Debug("translation refresh running inline, pool rejected task")
		task()
	}
}

// setTableLocked replaces entries and version together and rebuilds the
// localizer. The bundle is rebuilt from scratch each time; messages from
// superseded tables must not linger. Callers must hold m.mu.
func (m *manager) setTableLocked(lang string, entries map[string]string, version string) {
	m.entries = entries
	m.version = version

	messages := make([]*i18n.Message, 0, len(entries))
	for key, value := range entries {
		if value == "" {
			continue
		}
		messages = append(messages, &i18n.Message{ID: key, Other: value})
	}

	bundle := i18n.NewBundle(language.English)
	if len(messages) > 0 {
		if err := bundle.AddMessages(language.Make(lang), messages...); err != nil {
			util.Log(context.Background()).WithError(err).WithField("language", lang).
				Warn("could not register translation messages")
		}
	}
	m.localizer = i18n.NewLocalizer(bundle, lang)
}

func (m *manager) nextGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	return m.generation
}

func (m *manager) currentGeneration() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

func (m *manager) emit(ctx context.Context) {
	if m.events == nil {
		return
	}

	m.mu.RLock()
	snapshot := Snapshot{
		Language: m.active,
		Version:  m.version,
		Loading:  m.loading,
	}
	m.mu.RUnlock()

	m.events.Emit(ctx, EventChanged, snapshot)
}
