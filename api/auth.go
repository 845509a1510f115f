package api

import (
	"context"
	"net/http"

	"github.com/fixlocal/appcore/client"
)

const (
	pathAuthRegister       = "/auth/register"
	pathAuthLogin          = "/auth/login"
	pathAuthLogout         = "/auth/logout"
	pathAuthRefresh        = "/auth/refresh"
	pathAuthMe             = "/auth/me"
	pathAuthUpdatePassword = "/auth/updatepassword"
)

// User is the backend profile for the account the device is signed in as.
type User struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Role       string `json:"role"`
	Avatar     string `json:"avatar,omitempty"`
	IsVerified bool   `json:"isVerified"`
	Language   string `json:"language,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// AuthResult is returned by endpoints that mint credentials.
type AuthResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

type LoginRequest struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// AuthAPI wraps the authentication endpoints of the backend.
type AuthAPI struct {
	inv     client.Manager
	baseURL string
}

func NewAuthAPI(inv client.Manager, baseURL string) *AuthAPI {
	return &AuthAPI{inv: inv, baseURL: baseURL}
}

// Login exchanges credentials for a token pair and the signed in profile.
func (a *AuthAPI) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	resp, err := a.inv.Invoke(ctx, http.MethodPost, a.baseURL+pathAuthLogin, req, nil)
	if err != nil {
		return nil, err
	}

	envelope, err := decodeEnvelope[AuthResult](ctx, resp)
	if err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// Register creates a new account and returns its first token pair.
func (a *AuthAPI) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	resp, err := a.inv.Invoke(ctx, http.MethodPost, a.baseURL+pathAuthRegister, req, nil)
	if err != nil {
		return nil, err
	}

	envelope, err := decodeEnvelope[AuthResult](ctx, resp)
	if err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// Me fetches the authoritative profile for the current bearer token.
func (a *AuthAPI) Me(ctx context.Context) (*User, error) {
	resp, err := a.inv.Invoke(ctx, http.MethodGet, a.baseURL+pathAuthMe, nil, nil)
	if err != nil {
		return nil, err
	}

	envelope, err := decodeEnvelope[User](ctx, resp)
	if err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// RefreshToken mints a new access token from the refresh token.
func (a *AuthAPI) RefreshToken(ctx context.Context) (*AuthResult, error) {
	resp, err := a.inv.Invoke(ctx, http.MethodPost, a.baseURL+pathAuthRefresh, nil, nil)
	if err != nil {
		return nil, err
	}

	envelope, err := decodeEnvelope[AuthResult](ctx, resp)
	if err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// Logout tells the backend to invalidate the session. Local credential
// cleanup happens in the session store regardless of the outcome here.
func (a *AuthAPI) Logout(ctx context.Context) error {
	resp, err := a.inv.Invoke(ctx, http.MethodPost, a.baseURL+pathAuthLogout, nil, nil)
	if err != nil {
		return err
	}

	_, err = decodeEnvelope[map[string]any](ctx, resp)
	return err
}

// UpdatePassword changes the account password.
func (a *AuthAPI) UpdatePassword(ctx context.Context, req UpdatePasswordRequest) error {
	resp, err := a.inv.Invoke(ctx, http.MethodPut, a.baseURL+pathAuthUpdatePassword, req, nil)
	if err != nil {
		return err
	}

	_, err = decodeEnvelope[map[string]any](ctx, resp)
	return err
}
