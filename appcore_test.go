package appcore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/fixlocal/appcore"
	"github.com/fixlocal/appcore/api"
	"github.com/fixlocal/appcore/config"
	"github.com/fixlocal/appcore/store"
)

func testConfig(baseURL string) *config.Configuration {
	return &config.Configuration{
		LogLevel:                 "info",
		APIBaseURL:               baseURL,
		APITimeout:               5 * time.Second,
		DefaultLanguage:          "en",
		WorkerPoolCapacity:       4,
		WorkerPoolExpiryDuration: time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type AppSuite struct {
	suite.Suite
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

// The device comes up offline-first: the cached table renders
// immediately while the newer server table lands in the background.
func (s *AppSuite) TestBootstrapServesCachedTableThenRefreshes() {
	ctx := context.Background()

	st := store.NewInMemoryStore()
	s.Require().NoError(st.Set(ctx, "user_language", []byte("ta")))
	s.Require().NoError(st.Set(ctx, "translations_ta", []byte(`{"a":"X"}`)))
	s.Require().NoError(st.Set(ctx, "translation_version_ta", []byte("3")))

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/translations/ta" {
			<-release
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"version": 4,
				"data":    map[string]string{"a": "Y", "b": "Z"},
			})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false})
	}))
	defer server.Close()

	app, err := appcore.New(ctx,
		appcore.WithConfig(testConfig(server.URL)),
		appcore.WithStore(st),
	)
	s.Require().NoError(err)
	defer app.Stop()

	app.Bootstrap(ctx)

	// Cached state is renderable before the server has answered.
	s.Equal("ta", app.Localization().Language())
	s.Equal("3", app.Localization().Version())
	s.Equal("X", app.T("a"))
	s.Equal("b", app.T("b"))
	s.False(app.Localization().Loading())
	s.False(app.Session().Loading())
	s.False(app.Session().IsLoggedIn())

	close(release)

	s.Require().Eventually(func() bool {
		return app.Localization().Version() == "4"
	}, 2*time.Second, 10*time.Millisecond)

	s.Equal("Y", app.T("a"))
	s.Equal("Z", app.T("b"))

	value, found, err := st.Get(ctx, "translation_version_ta")
	s.Require().NoError(err)
	s.True(found)
	s.Equal("4", string(value))

	value, found, err = st.Get(ctx, "translations_ta")
	s.Require().NoError(err)
	s.True(found)
	s.JSONEq(`{"a":"Y","b":"Z"}`, string(value))
}

// A restored session fetches the profile with its bearer token and the
// profile declared language takes over when the user never chose one.
func (s *AppSuite) TestBootstrapAdoptsProfileLanguage() {
	ctx := context.Background()

	st := store.NewInMemoryStore()
	s.Require().NoError(st.Set(ctx, "auth_token", []byte("tok-1")))

	var mu sync.Mutex
	var meAuthorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/auth/me":
			mu.Lock()
			meAuthorization = r.Header.Get("Authorization")
			mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"data":    map[string]any{"_id": "u1", "name": "Amir", "language": "ta"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/translations/en":
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"version": "1",
				"data":    map[string]string{"hello": "Hello"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/translations/ta":
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"version": "2",
				"data":    map[string]string{"hello": "Vanakkam"},
			})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false})
		}
	}))
	defer server.Close()

	app, err := appcore.New(ctx,
		appcore.WithConfig(testConfig(server.URL)),
		appcore.WithStore(st),
	)
	s.Require().NoError(err)
	defer app.Stop()

	app.Bootstrap(ctx)

	s.True(app.Session().IsLoggedIn())

	s.Require().Eventually(func() bool {
		return app.Localization().Language() == "ta" && app.T("hello") == "Vanakkam"
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	s.Equal("Bearer tok-1", meAuthorization)
	mu.Unlock()

	value, found, err := st.Get(ctx, "user_language")
	s.Require().NoError(err)
	s.True(found)
	s.Equal("ta", string(value))
}

// An explicitly chosen language is never overridden by the profile.
func (s *AppSuite) TestExplicitLanguageChoiceBeatsProfile() {
	ctx := context.Background()

	st := store.NewInMemoryStore()
	s.Require().NoError(st.Set(ctx, "auth_token", []byte("tok-1")))
	s.Require().NoError(st.Set(ctx, "user_language", []byte("en")))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/auth/me":
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"data":    map[string]any{"_id": "u1", "name": "Amir", "language": "ta"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/translations/en":
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"version": "1",
				"data":    map[string]string{"hello": "Hello"},
			})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false})
		}
	}))
	defer server.Close()

	app, err := appcore.New(ctx,
		appcore.WithConfig(testConfig(server.URL)),
		appcore.WithStore(st),
	)
	s.Require().NoError(err)
	defer app.Stop()

	app.Bootstrap(ctx)

	s.Require().Eventually(func() bool {
		return app.Session().User() != nil
	}, 2*time.Second, 10*time.Millisecond)

	// Give any misfired reconciliation a chance to land before asserting.
	time.Sleep(50 * time.Millisecond)
	s.Equal("en", app.Localization().Language())

	value, found, err := st.Get(ctx, "user_language")
	s.Require().NoError(err)
	s.True(found)
	s.Equal("en", string(value))
}

func (s *AppSuite) TestLoginAndLogoutRoundTrip() {
	ctx := context.Background()
	st := store.NewInMemoryStore()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"data": map[string]any{
					"token":        "tok-9",
					"refreshToken": "ref-9",
					"user":         map[string]any{"_id": "u9", "name": "Priya"},
				},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/auth/logout":
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false})
		}
	}))
	defer server.Close()

	app, err := appcore.New(ctx,
		appcore.WithConfig(testConfig(server.URL)),
		appcore.WithStore(st),
	)
	s.Require().NoError(err)
	defer app.Stop()

	s.Require().NoError(app.Login(ctx, api.LoginRequest{Email: "priya@example.com", Password: "pw"}))

	s.True(app.Session().IsLoggedIn())
	s.Require().NotNil(app.Session().User())
	s.Equal("u9", app.Session().User().ID)
	s.Equal("tok-9", app.AccessToken(ctx))

	value, found, err := st.Get(ctx, "auth_token")
	s.Require().NoError(err)
	s.True(found)
	s.Equal("tok-9", string(value))

	s.Require().NoError(app.Logout(ctx))

	s.False(app.Session().IsLoggedIn())
	s.Equal("", app.AccessToken(ctx))

	_, found, err = st.Get(ctx, "auth_token")
	s.Require().NoError(err)
	s.False(found)
}
