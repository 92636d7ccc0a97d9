package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dukerupert/gasportal/internal/model"
)

// AuthAPI groups the /auth endpoints.
type AuthAPI struct {
	c *Client
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse accepts both {token, user} and simplejwt's {access, refresh}.
type loginResponse struct {
	Token  string      `json:"token"`
	Access string      `json:"access"`
	User   *model.User `json:"user"`
}

type LoginResult struct {
	Token string
	User  model.User
}

// Login exchanges credentials for a token. The request never carries a
// bearer token. When the response has no user, it is fetched with the new token.
func (a *AuthAPI) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return LoginResult{}, fmt.Errorf("marshal login: %w", err)
	}

	var resp loginResponse
	err = a.c.do(ctx, call{
		endpoint:    "auth_login",
		method:      http.MethodPost,
		path:        "/auth/login/",
		body:        bytes.NewReader(body),
		contentType: "application/json",
		anonymous:   true,
	}, &resp)
	if err != nil {
		return LoginResult{}, err
	}

	token := resp.Token
	if token == "" {
		token = resp.Access
	}
	if token == "" {
		return LoginResult{}, errors.New("login response missing token")
	}

	if resp.User != nil {
		return LoginResult{Token: token, User: *resp.User}, nil
	}

	user, err := a.currentUser(ctx, token)
	if err != nil {
		return LoginResult{}, fmt.Errorf("fetch user after login: %w", err)
	}
	return LoginResult{Token: token, User: user}, nil
}

func (a *AuthAPI) Logout(ctx context.Context) error {
	return a.c.do(ctx, call{
		endpoint: "auth_logout",
		method:   http.MethodPost,
		path:     "/auth/logout/",
	}, nil)
}

// CurrentUser returns the user the current credentials belong to.
func (a *AuthAPI) CurrentUser(ctx context.Context) (model.User, error) {
	return a.currentUser(ctx, "")
}

func (a *AuthAPI) currentUser(ctx context.Context, token string) (model.User, error) {
	var user model.User
	err := a.c.do(ctx, call{
		endpoint: "auth_user",
		method:   http.MethodGet,
		path:     "/auth/user/",
		token:    token,
	}, &user)
	return user, err
}
