package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"web-app-firewall-console/internal/console"
	"web-app-firewall-console/internal/session"
)

type credentials struct {
	Email    string `short:"e" long:"email" required:"yes" description:"Account email"`
	Password string `short:"p" long:"password" env:"WAF_PASSWORD" description:"Password, read from stdin when empty"`
}

func (c credentials) password() (string, error) {
	if c.Password != "" {
		return c.Password, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type loginCmd struct {
	credentials
}

func (c *loginCmd) Execute([]string) error {
	password, err := c.password()
	if err != nil {
		return err
	}
	return run(func(ctx context.Context, app *console.App) error {
		_, err := app.Login(ctx, c.Email, password)
		return err
	})
}

type registerCmd struct {
	credentials
	Name string `short:"n" long:"name" required:"yes" description:"Display name"`
}

func (c *registerCmd) Execute([]string) error {
	password, err := c.password()
	if err != nil {
		return err
	}
	return run(func(ctx context.Context, app *console.App) error {
		u, err := app.Register(ctx, c.Name, c.Email, password)
		if err != nil {
			return err
		}
		if u.ID == "" {
			fmt.Println("Run `wafconsole login` to sign in.")
		}
		return nil
	})
}

type logoutCmd struct{}

func (c *logoutCmd) Execute([]string) error {
	return run(func(ctx context.Context, app *console.App) error {
		return app.Logout(ctx)
	})
}

type whoamiCmd struct{}

func (c *whoamiCmd) Execute([]string) error {
	return authed(func(ctx context.Context, app *console.App) error {
		u, _ := app.RequireSession()
		fmt.Printf("%s <%s>\nid: %s\n", u.Name, u.Email, u.ID)

		claims, err := app.Session.Token()
		if errors.Is(err, session.ErrNoToken) {
			return nil
		}
		if err != nil {
			return err
		}
		if !claims.ExpiresAt.IsZero() {
			fmt.Printf("session expires %s (in %s)\n",
				claims.ExpiresAt.Local().Format(time.RFC1123),
				time.Until(claims.ExpiresAt).Round(time.Minute))
		}
		return nil
	})
}
