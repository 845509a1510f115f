package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"github.com/fixlocal/appcore/api"
	"github.com/fixlocal/appcore/events"
	"github.com/fixlocal/appcore/session"
	"github.com/fixlocal/appcore/store"
)

type fakeProfiles struct {
	user  *api.User
	err   error
	calls int
}

func (f *fakeProfiles) Me(_ context.Context) (*api.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

// failingStore wraps a store and fails deletes, to exercise best-effort
// logout cleanup.
type failingStore struct {
	store.Store
}

func (f *failingStore) Delete(_ context.Context, _ string) error {
	return errors.New("disk unavailable")
}

type SessionSuite struct {
	suite.Suite
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) TestBootstrapWithoutTokenStaysLoggedOut() {
	m := session.NewManager(store.NewInMemoryStore(), &fakeProfiles{})

	s.True(m.Loading())
	m.Bootstrap(context.Background())

	s.False(m.Loading())
	s.False(m.IsLoggedIn())
	s.Nil(m.User())
}

func (s *SessionSuite) TestBootstrapRestoresPersistedSession() {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	s.Require().NoError(st.Set(ctx, "auth_token", []byte("tok-1")))
	s.Require().NoError(st.Set(ctx, "refresh_token", []byte("ref-1")))

	profiles := &fakeProfiles{user: &api.User{ID: "u1", Name: "Amir", Language: "ta"}}
	m := session.NewManager(st, profiles)

	m.Bootstrap(ctx)

	s.False(m.Loading())
	s.True(m.IsLoggedIn())
	s.Equal("tok-1", m.AccessToken(ctx))
	s.Equal("ref-1", m.RefreshToken())
	s.Require().NotNil(m.User())
	s.Equal("u1", m.User().ID)
	s.Equal(1, profiles.calls)
}

func (s *SessionSuite) TestBootstrapProfileFailureKeepsSession() {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	s.Require().NoError(st.Set(ctx, "auth_token", []byte("tok-1")))

	m := session.NewManager(st, &fakeProfiles{err: errors.New("offline")})

	m.Bootstrap(ctx)

	s.False(m.Loading())
	s.True(m.IsLoggedIn())
	s.Nil(m.User())
}

func (s *SessionSuite) TestLoginWithUserIsImmediate() {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	profiles := &fakeProfiles{}
	m := session.NewManager(st, profiles)

	m.Login(ctx, "tok-1", "ref-1", &api.User{ID: "u1"})

	s.True(m.IsLoggedIn())
	s.Require().NotNil(m.User())
	s.Equal("u1", m.User().ID)
	s.Zero(profiles.calls)

	value, found, err := st.Get(ctx, "auth_token")
	s.Require().NoError(err)
	s.True(found)
	s.Equal("tok-1", string(value))

	value, found, err = st.Get(ctx, "refresh_token")
	s.Require().NoError(err)
	s.True(found)
	s.Equal("ref-1", string(value))
}

func (s *SessionSuite) TestLoginWithoutUserFetchesProfile() {
	testCases := []struct {
		name     string
		profiles *fakeProfiles
		wantUser bool
	}{
		{name: "fetch succeeds", profiles: &fakeProfiles{user: &api.User{ID: "u1"}}, wantUser: true},
		{name: "fetch fails", profiles: &fakeProfiles{err: errors.New("offline")}, wantUser: false},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			m := session.NewManager(store.NewInMemoryStore(), tc.profiles)

			m.Login(context.Background(), "tok-1", "", nil)

			s.True(m.IsLoggedIn())
			if tc.wantUser {
				s.Require().NotNil(m.User())
				s.Equal("u1", m.User().ID)
			} else {
				s.Nil(m.User())
			}
			// Logged in either way; the token alone carries the session.
			s.True(m.IsLoggedIn())
		})
	}
}

func (s *SessionSuite) TestLogoutClearsStateUnconditionally() {
	ctx := context.Background()
	st := &failingStore{Store: store.NewInMemoryStore()}
	m := session.NewManager(st, &fakeProfiles{})

	m.Login(ctx, "tok-1", "ref-1", &api.User{ID: "u1"})
	s.True(m.IsLoggedIn())

	err := m.Logout(ctx)
	s.Require().Error(err)

	s.False(m.IsLoggedIn())
	s.Nil(m.User())
	s.Equal("", m.AccessToken(ctx))
	s.Equal("", m.RefreshToken())
}

func (s *SessionSuite) TestLogoutRemovesPersistedTokens() {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	m := session.NewManager(st, &fakeProfiles{})

	m.Login(ctx, "tok-1", "ref-1", &api.User{ID: "u1"})
	s.Require().NoError(m.Logout(ctx))

	_, found, err := st.Get(ctx, "auth_token")
	s.Require().NoError(err)
	s.False(found)

	_, found, err = st.Get(ctx, "refresh_token")
	s.Require().NoError(err)
	s.False(found)
}

func (s *SessionSuite) TestSetUserReplacesInMemoryOnly() {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	m := session.NewManager(st, &fakeProfiles{})

	m.Login(ctx, "tok-1", "", &api.User{ID: "u1", Name: "Amir"})
	m.SetUser(&api.User{ID: "u1", Name: "Amir R."})

	s.Equal("Amir R.", m.User().Name)

	keys, err := st.Keys(ctx, "")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"auth_token"}, keys)
}

func (s *SessionSuite) TestClaimsDecodeWithoutVerification() {
	ctx := context.Background()
	m := session.NewManager(store.NewInMemoryStore(), &fakeProfiles{})

	_, ok := m.Claims()
	s.False(ok)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"})
	signed, err := token.SignedString([]byte("secret-not-checked-client-side"))
	s.Require().NoError(err)

	m.Login(ctx, signed, "", &api.User{ID: "u1"})

	claims, ok := m.Claims()
	s.Require().True(ok)
	s.Equal("u1", claims["sub"])
}

func (s *SessionSuite) TestEventsEmittedOnTransitions() {
	ctx := context.Background()
	em := events.NewManager(nil)
	m := session.NewManager(store.NewInMemoryStore(), &fakeProfiles{}, session.WithEvents(em))

	var snapshots []session.Snapshot
	em.Subscribe(session.EventChanged, func(_ context.Context, payload any) {
		snapshot, ok := payload.(session.Snapshot)
		s.Require().True(ok)
		snapshots = append(snapshots, snapshot)
	})

	m.Login(ctx, "tok-1", "", &api.User{ID: "u1"})
	s.Require().NoError(m.Logout(ctx))

	s.Require().Len(snapshots, 2)
	s.True(snapshots[0].LoggedIn)
	s.False(snapshots[1].LoggedIn)
	s.Nil(snapshots[1].User)
}
