package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Profile is the account profile returned by a successful login.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Identity is the lightweight who-am-I response used to probe whether a
// token is still accepted.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// LoginResult carries the fresh token and profile issued by login.
type LoginResult struct {
	Token   string  `json:"token"`
	Profile Profile `json:"profile"`
}

// Client speaks the auth service's three endpoints over JSON. It holds no
// credential: the bearer token is supplied per call.
type Client struct {
	baseURL string
	exec    *Executor
}

// NewClient creates a Client for the service at baseURL.
func NewClient(baseURL string, exec *Executor) *Client {
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), exec: exec}
}

// Login exchanges a username and password for a fresh credential.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return LoginResult{}, err
	}

	resp, err := c.exec.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/api/v1/login", bytes.NewReader(payload))
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}

	var result LoginResult
	if err := resp.DecodeJSON(&result); err != nil {
		return LoginResult{}, err
	}
	if result.Token == "" {
		return LoginResult{}, fmt.Errorf("%w: login response carried no token", ErrDecode)
	}
	return result, nil
}

// Refresh exchanges a still-valid token for a renewed one. The server fails
// with 401 if the supplied token is already expired.
func (c *Client) Refresh(ctx context.Context, tok string) (string, error) {
	resp, err := c.exec.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/api/v1/refresh", nil)
		if err != nil {
			return nil, err
		}
		setBearer(req, tok)
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("refresh: %w", err)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := resp.DecodeJSON(&result); err != nil {
		return "", err
	}
	if result.Token == "" {
		return "", fmt.Errorf("%w: refresh response carried no token", ErrDecode)
	}
	return result.Token, nil
}

// WhoAmI probes whether the token is still accepted by the server.
func (c *Client) WhoAmI(ctx context.Context, tok string) (Identity, error) {
	resp, err := c.exec.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/api/v1/whoami", nil)
		if err != nil {
			return nil, err
		}
		setBearer(req, tok)
		return req, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("whoami: %w", err)
	}

	var id Identity
	if err := resp.DecodeJSON(&id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// BaseURL returns the service base URL the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func setBearer(req *http.Request, tok string) {
	req.Header.Set("Authorization", "Bearer "+tok)
}
