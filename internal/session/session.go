// Package session tracks who is signed in to the gateway.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"web-app-firewall-console/internal/client"
	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/notify"
	"web-app-firewall-console/pkg/validator"
)

// CookieName is the cookie the gateway keeps its session token in.
const CookieName = "auth_token"

const minPasswordLength = 6

// ErrNoToken is returned by Token when the jar holds no session cookie.
var ErrNoToken = errors.New("no session token")

// Claims is what the console can read from the session token without the
// signing key. It is informational only; the gateway remains the authority.
type Claims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Expired reports whether the token's expiry has passed at now. Tokens
// without an expiry never expire.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

type Provider struct {
	api      core.AuthAPI
	jar      http.CookieJar
	origin   *url.URL
	notifier notify.Notifier
	logger   logger.Logger

	mu      sync.RWMutex
	user    *core.User
	checked bool
}

// NewProvider binds the auth calls to the jar that carries the session
// cookie for baseURL. jar may be nil, which disables Token.
func NewProvider(api core.AuthAPI, jar http.CookieJar, baseURL string, n notify.Notifier, log logger.Logger) (*Provider, error) {
	origin, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &Provider{api: api, jar: jar, origin: origin, notifier: n, logger: log}, nil
}

// Init asks the gateway who we are. Any failure, including a network error,
// leaves the provider signed out.
func (p *Provider) Init(ctx context.Context) error {
	check, err := p.api.CheckAuth(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.checked = true
	p.user = nil
	if err != nil {
		return err
	}
	if check != nil && check.Authenticated && check.User != nil {
		u := *check.User
		p.user = &u
	}
	return nil
}

// Checked reports whether Init has completed.
func (p *Provider) Checked() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.checked
}

func (p *Provider) User() (core.User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return core.User{}, false
	}
	return *p.user, true
}

func (p *Provider) Authenticated() bool {
	_, ok := p.User()
	return ok
}

func (p *Provider) Login(ctx context.Context, email, password string) (core.User, error) {
	email = strings.TrimSpace(email)
	if err := validator.Email(email); err != nil {
		return core.User{}, p.invalid(err)
	}
	if err := validator.Required(password, "password"); err != nil {
		return core.User{}, p.invalid(err)
	}

	res, err := p.api.Login(ctx, core.LoginRequest{Email: email, Password: password})
	if err != nil {
		return core.User{}, err
	}
	return p.signedIn(res)
}

func (p *Provider) Register(ctx context.Context, name, email, password string) (core.User, error) {
	req := core.RegisterRequest{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email), Password: password}
	if err := validator.Required(req.Name, "name"); err != nil {
		return core.User{}, p.invalid(err)
	}
	if err := validator.Email(req.Email); err != nil {
		return core.User{}, p.invalid(err)
	}
	if err := validator.MinLength(req.Password, minPasswordLength, "password"); err != nil {
		return core.User{}, p.invalid(err)
	}

	res, err := p.api.Register(ctx, req)
	if err != nil {
		return core.User{}, err
	}
	if res.User == nil {
		// Registration does not sign in on every gateway version.
		p.notifier.Success(nonEmpty(res.Message, "Account created"))
		return core.User{}, nil
	}
	return p.signedIn(res)
}

func (p *Provider) signedIn(res *core.AuthResult) (core.User, error) {
	if res.User == nil {
		return core.User{}, &client.Error{Kind: client.KindDecode, Message: "login response carried no user"}
	}
	u := *res.User

	p.mu.Lock()
	p.user = &u
	p.checked = true
	p.mu.Unlock()

	p.notifier.Success(nonEmpty(res.Message, "Signed in successfully"))
	p.logger.Info("signed in", logger.String("user_id", u.ID))
	return u, nil
}

// Logout clears the local session even if the gateway call fails.
func (p *Provider) Logout(ctx context.Context) error {
	err := p.api.Logout(ctx)

	p.mu.Lock()
	p.user = nil
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("logout call failed, signed out locally", logger.Err(err))
		return err
	}
	p.notifier.Success("Signed out successfully")
	return nil
}

// Token reads the session cookie from the jar and decodes its claims without
// verifying the signature.
func (p *Provider) Token() (Claims, error) {
	raw, err := p.rawToken()
	if err != nil {
		return Claims{}, err
	}
	return ParseClaims(raw)
}

// ParseClaims decodes user_id, email and exp from an unverified token.
func ParseClaims(raw string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mc); err != nil {
		return Claims{}, fmt.Errorf("malformed session token: %w", err)
	}

	var out Claims
	out.UserID, _ = mc["user_id"].(string)
	out.Email, _ = mc["email"].(string)
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

func (p *Provider) invalid(err error) error {
	ve := client.Validation(err)
	p.notifier.Error(ve.Message)
	return ve
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
