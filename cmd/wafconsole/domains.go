package main

import (
	"context"
	"fmt"

	"web-app-firewall-console/internal/console"
	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/scheduler"
)

type dashboardCmd struct {
	Watch bool `short:"w" long:"watch" description:"Refresh every poll interval until interrupted"`
}

func (c *dashboardCmd) Execute([]string) error {
	return authed(func(ctx context.Context, app *console.App) error {
		if c.Watch {
			listenForPause(app.TogglePause)
			app.WatchDashboard(ctx, func(o scheduler.Overview) {
				// Clear the screen and home the cursor between frames.
				fmt.Print("\033[H\033[2J")
				fmt.Println(console.Overview(o))
			})
			return nil
		}
		err := app.Dashboard.Refresh(ctx)
		fmt.Println(console.Overview(app.Dashboard.Overview()))
		return err
	})
}

type domainsCmd struct{}

func (c *domainsCmd) Execute([]string) error {
	return authed(func(ctx context.Context, app *console.App) error {
		domains, err := app.Domains.ListDomains(ctx)
		if err != nil {
			return err
		}
		fmt.Println(console.Domains(domains))
		return nil
	})
}

type addDomainCmd struct {
	Args struct {
		Name string `positional-arg-name:"NAME"`
	} `positional-args:"yes" required:"yes"`
}

func (c *addDomainCmd) Execute([]string) error {
	return authed(func(ctx context.Context, app *console.App) error {
		d, err := app.Domains.AddDomain(ctx, c.Args.Name)
		if err != nil {
			return err
		}
		fmt.Println(console.Nameservers(*d))
		return nil
	})
}

type domainArg struct {
	Domain string `positional-arg-name:"DOMAIN" description:"Domain name or id"`
}

type verifyCmd struct {
	Args domainArg `positional-args:"yes" required:"yes"`
}

func (c *verifyCmd) Execute([]string) error {
	return authed(func(ctx context.Context, app *console.App) error {
		d, err := app.ResolveDomain(ctx, c.Args.Domain)
		if err != nil {
			return err
		}
		res, err := app.Domains.VerifyDomain(ctx, d.ID)
		if res != nil {
			fmt.Println(console.Verification(res))
		}
		return err
	})
}

type recordsCmd struct {
	Args domainArg `positional-args:"yes" required:"yes"`
}

func (c *recordsCmd) Execute([]string) error {
	return authed(func(ctx context.Context, app *console.App) error {
		d, err := app.ResolveDomain(ctx, c.Args.Domain)
		if err != nil {
			return err
		}
		records, err := app.Domains.LoadRecords(ctx, d.ID)
		if err != nil {
			return err
		}
		fmt.Println(console.Records(records))
		return nil
	})
}

type addRecordCmd struct {
	Type      string `short:"t" long:"type" required:"yes" description:"A, AAAA, CNAME, MX, TXT or NS"`
	Name      string `short:"n" long:"name" required:"yes" description:"Record name, @ for the apex"`
	Content   string `long:"content" required:"yes" description:"Address, target or text"`
	TTL       int    `long:"ttl" description:"TTL in seconds, 0 for the default"`
	Proxied   bool   `long:"proxied" description:"Route traffic through the WAF (A, AAAA, CNAME)"`
	OriginSSL bool   `long:"origin-ssl" description:"Talk HTTPS to the origin"`

	Args domainArg `positional-args:"yes" required:"yes"`
}

func (c *addRecordCmd) Execute([]string) error {
	return authed(func(ctx context.Context, app *console.App) error {
		d, err := app.ResolveDomain(ctx, c.Args.Domain)
		if err != nil {
			return err
		}
		err = app.Domains.AddDNSRecord(ctx, core.AddDNSRecordRequest{
			DomainID:  d.ID,
			Name:      c.Name,
			Type:      core.RecordType(c.Type),
			Content:   c.Content,
			TTL:       c.TTL,
			Proxied:   c.Proxied,
			OriginSSL: c.OriginSSL,
		})
		if err != nil {
			return err
		}
		fmt.Println(console.Records(app.Domains.Records(d.ID)))
		return nil
	})
}

type recordArgs struct {
	Domain string `positional-arg-name:"DOMAIN" description:"Domain name or id"`
	Record string `positional-arg-name:"RECORD" description:"Record id"`
}

type deleteRecordCmd struct {
	Args recordArgs `positional-args:"yes" required:"yes"`
}

func (c *deleteRecordCmd) Execute([]string) error {
	return authed(func(ctx context.Context, app *console.App) error {
		d, err := app.ResolveDomain(ctx, c.Args.Domain)
		if err != nil {
			return err
		}
		if _, err := app.Domains.LoadRecords(ctx, d.ID); err != nil {
			return err
		}
		if err := app.Domains.DeleteDNSRecord(ctx, d.ID, c.Args.Record); err != nil {
			return err
		}
		fmt.Println(console.Records(app.Domains.Records(d.ID)))
		return nil
	})
}

type toggleProxyCmd struct {
	Args recordArgs `positional-args:"yes" required:"yes"`
}

func (c *toggleProxyCmd) Execute([]string) error {
	return toggleRecord(c.Args, func(ctx context.Context, app *console.App, domainID string) error {
		return app.Domains.ToggleProxy(ctx, domainID, c.Args.Record)
	})
}

type toggleSSLCmd struct {
	Args recordArgs `positional-args:"yes" required:"yes"`
}

func (c *toggleSSLCmd) Execute([]string) error {
	return toggleRecord(c.Args, func(ctx context.Context, app *console.App, domainID string) error {
		return app.Domains.ToggleOriginSSL(ctx, domainID, c.Args.Record)
	})
}

// toggleRecord loads the records first so the toggle flips the current value.
func toggleRecord(args recordArgs, flip func(ctx context.Context, app *console.App, domainID string) error) error {
	return authed(func(ctx context.Context, app *console.App) error {
		d, err := app.ResolveDomain(ctx, args.Domain)
		if err != nil {
			return err
		}
		if _, err := app.Domains.LoadRecords(ctx, d.ID); err != nil {
			return err
		}
		err = flip(ctx, app, d.ID)
		// Shows the rolled back state on failure too.
		fmt.Println(console.Records(app.Domains.Records(d.ID)))
		return err
	})
}
