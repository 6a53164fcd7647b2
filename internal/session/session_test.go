package session

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web-app-firewall-console/internal/client"
	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/notify"
)

type fakeAuth struct {
	check     *core.AuthCheck
	checkErr  error
	logins    int
	logoutErr error
}

func (f *fakeAuth) CheckAuth(context.Context) (*core.AuthCheck, error) { return f.check, f.checkErr }

func (f *fakeAuth) Login(_ context.Context, req core.LoginRequest) (*core.AuthResult, error) {
	f.logins++
	if req.Password != "secret1" {
		return nil, &client.Error{Kind: client.KindHTTP, Status: 401, Message: "invalid email or password"}
	}
	return &core.AuthResult{Message: "Login successful", User: &core.User{ID: "u1", Email: req.Email}}, nil
}

func (f *fakeAuth) Register(_ context.Context, req core.RegisterRequest) (*core.AuthResult, error) {
	return &core.AuthResult{Message: "User registered successfully"}, nil
}

func (f *fakeAuth) Logout(context.Context) error { return f.logoutErr }

const base = "http://gateway.test:8080"

func newProvider(t *testing.T, api core.AuthAPI, jar http.CookieJar) (*Provider, *notify.Recorder) {
	t.Helper()
	rec := &notify.Recorder{}
	p, err := NewProvider(api, jar, base, rec, logger.NewNop())
	require.NoError(t, err)
	return p, rec
}

func TestInit(t *testing.T) {
	t.Run("authenticated", func(t *testing.T) {
		p, _ := newProvider(t, &fakeAuth{check: &core.AuthCheck{Authenticated: true, User: &core.User{ID: "u1", Name: "Ada"}}}, nil)
		require.NoError(t, p.Init(context.Background()))
		u, ok := p.User()
		assert.True(t, ok)
		assert.Equal(t, "Ada", u.Name)
		assert.True(t, p.Checked())
	})

	t.Run("not signed in", func(t *testing.T) {
		p, _ := newProvider(t, &fakeAuth{}, nil)
		require.NoError(t, p.Init(context.Background()))
		assert.False(t, p.Authenticated())
		assert.True(t, p.Checked())
	})

	t.Run("network failure signs out", func(t *testing.T) {
		p, _ := newProvider(t, &fakeAuth{checkErr: &client.Error{Kind: client.KindNetwork}}, nil)
		require.Error(t, p.Init(context.Background()))
		assert.False(t, p.Authenticated())
	})
}

func TestLoginValidatesLocally(t *testing.T) {
	api := &fakeAuth{}
	p, rec := newProvider(t, api, nil)

	_, err := p.Login(context.Background(), "not-an-email", "secret1")
	assert.True(t, client.IsKind(err, client.KindValidation))
	_, err = p.Login(context.Background(), "ada@example.com", " ")
	assert.True(t, client.IsKind(err, client.KindValidation))
	assert.Zero(t, api.logins)
	assert.Len(t, rec.Errors(), 2)

	u, err := p.Login(context.Background(), " ada@example.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.True(t, p.Authenticated())
	assert.Equal(t, []string{"Login successful"}, rec.Successes())
}

func TestRegisterWithoutAutoLogin(t *testing.T) {
	p, rec := newProvider(t, &fakeAuth{}, nil)

	_, err := p.Register(context.Background(), "Ada", "ada@example.com", "123")
	assert.True(t, client.IsKind(err, client.KindValidation))

	_, err = p.Register(context.Background(), "Ada", "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.False(t, p.Authenticated())
	assert.Equal(t, []string{"User registered successfully"}, rec.Successes())
}

func TestLogoutClearsEvenOnFailure(t *testing.T) {
	api := &fakeAuth{check: &core.AuthCheck{Authenticated: true, User: &core.User{ID: "u1"}}}
	p, _ := newProvider(t, api, nil)
	require.NoError(t, p.Init(context.Background()))

	api.logoutErr = &client.Error{Kind: client.KindNetwork}
	require.Error(t, p.Logout(context.Background()))
	assert.False(t, p.Authenticated())
}

func TestTokenFromJar(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	p, _ := newProvider(t, &fakeAuth{}, jar)

	_, err = p.Token()
	assert.ErrorIs(t, err, ErrNoToken)

	exp := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u1",
		"email":   "ada@example.com",
		"exp":     exp.Unix(),
	}).SignedString([]byte("not-known-to-the-console"))
	require.NoError(t, err)

	u, _ := url.Parse(base)
	jar.SetCookies(u, []*http.Cookie{{Name: CookieName, Value: signed, Path: "/"}})

	claims, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.True(t, exp.Equal(claims.ExpiresAt))
	assert.False(t, claims.Expired(time.Now()))
	assert.True(t, claims.Expired(exp.Add(time.Second)))
}

func TestParseClaimsRejectsGarbage(t *testing.T) {
	_, err := ParseClaims("not.a.jwt")
	assert.Error(t, err)
}

func TestSaveAndRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session")

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	p, _ := newProvider(t, &fakeAuth{}, jar)
	assert.ErrorIs(t, p.Save(path), ErrNoToken)

	u, _ := url.Parse(base)
	jar.SetCookies(u, []*http.Cookie{{Name: CookieName, Value: "tok.en.value", Path: "/"}})
	require.NoError(t, p.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	fresh, err := cookiejar.New(nil)
	require.NoError(t, err)
	restored, _ := newProvider(t, &fakeAuth{}, fresh)
	require.NoError(t, restored.Restore(path))
	raw, err := restored.rawToken()
	require.NoError(t, err)
	assert.Equal(t, "tok.en.value", raw)

	require.NoError(t, Forget(path))
	require.NoError(t, Forget(path), "forgetting twice is fine")

	empty, err := cookiejar.New(nil)
	require.NoError(t, err)
	again, _ := newProvider(t, &fakeAuth{}, empty)
	require.NoError(t, again.Restore(path), "missing file")
	_, err = again.rawToken()
	assert.ErrorIs(t, err, ErrNoToken)
}
