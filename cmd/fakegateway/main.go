package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"web-app-firewall-console/internal/fakeapi"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/pkg/config"
)

type options struct {
	Config    string        `short:"c" long:"config" description:"YAML config file (default $WAF_CONSOLE_CONFIG)"`
	Simulate  time.Duration `long:"simulate" default:"3s" description:"Interval of simulated attack logs, 0 disables"`
	Heartbeat time.Duration `long:"heartbeat" default:"15s" description:"Keep-alive interval of the log stream"`
	CORS      string        `long:"cors" description:"Comma separated origins allowed to call the API"`
	RDAP      string        `long:"rdap" description:"RDAP base URL to verify delegation against, e.g. https://rdap.org/"`
	Demo      bool          `long:"demo" description:"Seed demo@minishield.local / demo123 with an active demo.example.com"`
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "❌ fake gateway failed: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.LoadFile(opts.Config)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Infof("🚀 Starting fake WAF gateway in %s mode...", cfg.Gateway.Environment)

	gwOpts := []fakeapi.Option{
		fakeapi.WithLogger(log),
		fakeapi.WithHeartbeat(opts.Heartbeat),
		fakeapi.WithSecureCookies(cfg.IsProduction()),
	}
	if opts.CORS != "" {
		gwOpts = append(gwOpts, fakeapi.WithCORS(opts.CORS))
	}
	if opts.RDAP != "" {
		gwOpts = append(gwOpts, fakeapi.WithVerifier(fakeapi.RDAPVerifier(&http.Client{Timeout: 10 * time.Second}, opts.RDAP)))
	}
	gw := fakeapi.New(cfg.Gateway.JWTSecret, gwOpts...)

	for _, rule := range fakeapi.DefaultGlobalRules() {
		gw.AddGlobalRule(rule)
	}
	if opts.Demo {
		if err := seedDemo(gw); err != nil {
			return err
		}
		log.Info("demo account seeded", logger.String("email", "demo@minishield.local"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Simulate > 0 {
		go gw.Simulate(ctx, opts.Simulate)
	}
	go gw.PruneRateLimits(ctx, fakeapi.DefaultAuthWindow)

	srv := &http.Server{
		Addr:              ":" + cfg.Gateway.Port,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Log streams end with their request context, so tie it to ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func seedDemo(gw *fakeapi.Server) error {
	u, err := gw.Register("Demo User", "demo@minishield.local", "demo123")
	if err != nil {
		return fmt.Errorf("seed demo user: %w", err)
	}
	if _, err := gw.AddActiveDomain(u.ID, "demo.example.com"); err != nil {
		return fmt.Errorf("seed demo domain: %w", err)
	}
	return nil
}
