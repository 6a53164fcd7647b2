package client

import (
	"context"
	"net/http"

	"web-app-firewall-console/internal/core"
)

// CheckAuth returns (nil, nil) when the gateway reports no session.
// Failures never notify; a missing session is the normal logged-out state.
func (c *Client) CheckAuth(ctx context.Context) (*core.AuthCheck, error) {
	ctx = WithoutErrorNotification(ctx)
	res, err := c.do(ctx, http.MethodGet, authCheckPath, nil)
	if err != nil {
		return nil, err
	}
	if res.Status == http.StatusUnauthorized {
		return nil, nil
	}
	var check core.AuthCheck
	if err := res.Unmarshal(&check); err != nil {
		return nil, &Error{Kind: KindDecode, Status: res.Status, Err: err}
	}
	return &check, nil
}

func (c *Client) Login(ctx context.Context, req core.LoginRequest) (*core.AuthResult, error) {
	out, err := call[core.AuthResult](ctx, c, http.MethodPost, "/api/auth/login", req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req core.RegisterRequest) (*core.AuthResult, error) {
	out, err := call[core.AuthResult](ctx, c, http.MethodPost, "/api/auth/register", req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.exec(ctx, http.MethodPost, "/api/auth/logout", nil)
}

func (c *Client) SystemStatus(ctx context.Context) (*core.SystemStatus, error) {
	out, err := call[core.SystemStatus](ctx, c, http.MethodGet, "/api/system/status", nil)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
