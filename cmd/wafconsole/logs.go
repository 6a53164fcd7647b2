package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"web-app-firewall-console/internal/console"
	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logfeed"
)

type pageOptions struct {
	Page   int    `short:"p" long:"page" default:"1" description:"Page number"`
	Limit  int    `short:"l" long:"limit" description:"Page size, defaults to the configured size"`
	Domain string `short:"d" long:"domain" description:"Only logs of this domain (name or id)"`
}

func (o pageOptions) domainID(ctx context.Context, app *console.App) (string, error) {
	if o.Domain == "" || o.Domain == logfeed.AllDomains {
		return "", nil
	}
	d, err := app.ResolveDomain(ctx, o.Domain)
	if err != nil {
		return "", err
	}
	return d.ID, nil
}

// fetch resolves the domain filter and loads the requested page.
func (o pageOptions) fetch(ctx context.Context, app *console.App) error {
	domainID, err := o.domainID(ctx, app)
	if err != nil {
		return err
	}
	return app.Feed.FetchPage(ctx, o.Page, o.limit(app), domainID)
}

func (o pageOptions) limit(app *console.App) int {
	if o.Limit > 0 {
		return o.Limit
	}
	return app.Config().Logs.PageSize
}

type logsCmd struct {
	pageOptions

	Search string `short:"s" long:"search" description:"Match ip, path or reason"`
	Action string `short:"a" long:"action" description:"Blocked, Flagged, Monitor or all"`
	Follow bool   `short:"f" long:"follow" description:"Keep printing new logs until interrupted"`
	Raw    bool   `long:"raw" description:"Print the captured request of every entry"`
}

func (c *logsCmd) Execute([]string) error {
	filter := logfeed.Filter{Search: c.Search, Action: c.Action}

	return authed(func(ctx context.Context, app *console.App) error {
		if c.Follow {
			domainID, err := c.domainID(ctx, app)
			if err != nil {
				return err
			}
			listenForPause(app.TogglePause)
			return app.FollowLogs(ctx, c.limit(app), domainID, func(l core.AttackLog) {
				if !filter.Matches(l) {
					return
				}
				fmt.Println(console.LogLine(l))
				if c.Raw {
					fmt.Println(console.RawRequest(l))
				}
			})
		}

		if err := c.fetch(ctx, app); err != nil {
			return err
		}
		logs := app.Feed.Filtered(filter)
		fmt.Println(console.LogSummary(app.Feed.Stats(), app.Feed.Pagination()))
		fmt.Println(console.Logs(logs))
		if c.Raw {
			for _, l := range logs {
				fmt.Println(console.RawRequest(l))
			}
		}
		return nil
	})
}

type exportCmd struct {
	pageOptions

	Format string `long:"format" default:"json" choice:"json" choice:"bson" description:"Export format"`
	Output string `short:"o" long:"output" description:"Output file, - for stdout (default waf_logs_<time>.<format>)"`
}

func (c *exportCmd) Execute([]string) error {
	return authed(func(ctx context.Context, app *console.App) error {
		if err := c.fetch(ctx, app); err != nil {
			return err
		}

		if c.Output == "-" {
			return app.Feed.Export(os.Stdout, c.Format)
		}
		path := c.Output
		if path == "" {
			path = logfeed.ExportFilename(time.Now(), c.Format)
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := writeAndClose(f, func(w io.Writer) error { return app.Feed.Export(w, c.Format) }); err != nil {
			return err
		}
		term.Success(fmt.Sprintf("Exported %d logs to %s", len(app.Feed.Logs()), path))
		return nil
	})
}

func writeAndClose(f *os.File, write func(io.Writer) error) error {
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
