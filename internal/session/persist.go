package session

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultTokenFile is where the CLI keeps the session token between runs.
func DefaultTokenFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "wafconsole", "session"), nil
}

// Restore loads a token saved by Save into the jar. A missing file is not an
// error; the provider simply stays signed out.
func (p *Provider) Restore(path string) error {
	if p.jar == nil {
		return ErrNoToken
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return nil
	}
	p.jar.SetCookies(p.origin, []*http.Cookie{{Name: CookieName, Value: token, Path: "/"}})
	return nil
}

// Save writes the jar's session token to path with owner-only permissions.
func (p *Provider) Save(path string) error {
	token, err := p.rawToken()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Forget removes the saved token.
func Forget(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func (p *Provider) rawToken() (string, error) {
	if p.jar == nil {
		return "", ErrNoToken
	}
	for _, c := range p.jar.Cookies(p.origin) {
		if c.Name == CookieName && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", ErrNoToken
}
