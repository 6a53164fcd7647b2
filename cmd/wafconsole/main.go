package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"web-app-firewall-console/internal/client"
	"web-app-firewall-console/internal/console"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/session"
	"web-app-firewall-console/internal/store"
	"web-app-firewall-console/pkg/config"
)

type globalOptions struct {
	Config   string `short:"c" long:"config" description:"YAML config file (default $WAF_CONSOLE_CONFIG)"`
	APIURL   string `long:"api-url" description:"Gateway base URL, overrides the config"`
	LogLevel string `long:"log-level" description:"Log level, overrides the config" choice:"debug" choice:"info" choice:"warn" choice:"error"`
}

var (
	opts   globalOptions
	term   = &console.Terminal{Out: os.Stdout, Err: os.Stderr}
	parser = flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
)

func main() {
	parser.ShortDescription = "MiniShield WAF console"
	registerCommands(parser)

	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		if !alreadyReported(err) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// alreadyReported is true for errors the notifier has shown.
func alreadyReported(err error) bool {
	var cerr *client.Error
	return errors.As(err, &cerr) || errors.Is(err, store.ErrVerificationPending)
}

func registerCommands(p *flags.Parser) {
	for _, c := range []struct {
		name, short string
		data        interface{}
	}{
		{"dashboard", "System status, traffic and recent activity", &dashboardCmd{}},
		{"domains", "List protected domains", &domainsCmd{}},
		{"add-domain", "Register a domain and get its nameservers", &addDomainCmd{}},
		{"verify", "Check nameserver delegation of a domain", &verifyCmd{}},
		{"records", "List the DNS records of a domain", &recordsCmd{}},
		{"add-record", "Create a DNS record", &addRecordCmd{}},
		{"delete-record", "Delete a DNS record", &deleteRecordCmd{}},
		{"toggle-proxy", "Flip the WAF proxy of a record", &toggleProxyCmd{}},
		{"toggle-ssl", "Flip origin SSL of a record", &toggleSSLCmd{}},
		{"rules", "List global and custom rules", &rulesCmd{}},
		{"add-rule", "Create a custom rule", &addRuleCmd{}},
		{"toggle-rule", "Enable or disable a rule for a domain", &toggleRuleCmd{}},
		{"delete-rule", "Delete a custom rule", &deleteRuleCmd{}},
		{"logs", "Show attack logs", &logsCmd{}},
		{"export", "Export a page of attack logs", &exportCmd{}},
		{"login", "Sign in to the gateway", &loginCmd{}},
		{"register", "Create an account", &registerCmd{}},
		{"logout", "Sign out", &logoutCmd{}},
		{"whoami", "Show the signed-in user", &whoamiCmd{}},
	} {
		if _, err := p.AddCommand(c.name, c.short, c.short+".", c.data); err != nil {
			panic(err)
		}
	}
}

// run builds the app from config and flags, runs fn until it returns or the
// process is interrupted, then shuts the app down.
func run(fn func(ctx context.Context, app *console.App) error) error {
	cfg, err := config.LoadFile(opts.Config)
	if err != nil {
		return err
	}
	if opts.APIURL != "" {
		cfg.API.BaseURL = strings.TrimRight(opts.APIURL, "/")
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	tokenFile, err := session.DefaultTokenFile()
	if err != nil {
		return err
	}

	app, err := console.New(cfg, log, term, console.WithTokenFile(tokenFile))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Close(shutdownCtx); err != nil {
			log.Warn("shutdown incomplete", logger.Err(err))
		}
	}()

	if err := app.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, app)
}

// authed is run for commands that need a signed-in user.
func authed(fn func(ctx context.Context, app *console.App) error) error {
	return run(func(ctx context.Context, app *console.App) error {
		if _, err := app.RequireSession(); err != nil {
			return err
		}
		return fn(ctx, app)
	})
}
