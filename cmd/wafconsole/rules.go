package main

import (
	"context"
	"fmt"
	"strings"

	"web-app-firewall-console/internal/console"
	"web-app-firewall-console/internal/core"
)

// selectDomain scopes the rule store; an empty ref lists rules unscoped.
func selectDomain(ctx context.Context, app *console.App, ref string) error {
	domainID := ""
	if ref != "" {
		d, err := app.ResolveDomain(ctx, ref)
		if err != nil {
			return err
		}
		domainID = d.ID
	}
	return app.Rules.SelectDomain(ctx, domainID)
}

func printRules(app *console.App) {
	fmt.Println(console.Rules("Global rules", app.Rules.Global()))
	fmt.Println(console.Rules("Custom rules", app.Rules.Custom()))
}

type rulesCmd struct {
	Domain string `short:"d" long:"domain" description:"Show enabled state for this domain"`
}

func (c *rulesCmd) Execute([]string) error {
	return authed(func(ctx context.Context, app *console.App) error {
		if err := selectDomain(ctx, app, c.Domain); err != nil {
			return err
		}
		printRules(app)
		return nil
	})
}

type addRuleCmd struct {
	Name      string   `short:"n" long:"name" required:"yes" description:"Rule name"`
	When      []string `short:"w" long:"when" required:"yes" description:"Condition as field:operator:value, repeatable"`
	Score     int      `short:"s" long:"score" default:"5" description:"Score added on match"`
	Tags      []string `short:"t" long:"tag" description:"Tag attached on match, repeatable"`
	HardBlock bool     `long:"hard-block" description:"Block on match regardless of score"`
	Domain    string   `short:"d" long:"domain" description:"Domain to show the rules for afterwards"`
}

func (c *addRuleCmd) Execute([]string) error {
	conds := make([]core.Condition, 0, len(c.When))
	for _, w := range c.When {
		cond, err := parseCondition(w)
		if err != nil {
			return err
		}
		conds = append(conds, cond)
	}

	return authed(func(ctx context.Context, app *console.App) error {
		if err := selectDomain(ctx, app, c.Domain); err != nil {
			return err
		}
		err := app.Rules.AddCustomRule(ctx, core.NewRule{
			Name:       c.Name,
			Conditions: conds,
			OnMatch:    core.MatchAction{ScoreAdd: c.Score, Tags: c.Tags, HardBlock: c.HardBlock},
		})
		if err != nil {
			return err
		}
		printRules(app)
		return nil
	})
}

// parseCondition splits "field:operator:value"; the value may contain colons.
func parseCondition(s string) (core.Condition, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return core.Condition{}, fmt.Errorf("condition %q: want field:operator:value", s)
	}
	op := core.Operator(strings.ToLower(strings.TrimSpace(parts[1])))
	if !op.Valid() {
		return core.Condition{}, fmt.Errorf("condition %q: operator must be contains, regex or equals", s)
	}
	return core.Condition{
		Field:    core.ParseField(strings.TrimSpace(parts[0])),
		Operator: op,
		Value:    parts[2],
	}, nil
}

type toggleRuleCmd struct {
	Domain  string `short:"d" long:"domain" required:"yes" description:"Domain the rule applies to"`
	Disable bool   `long:"disable" description:"Disable instead of enable"`

	Args struct {
		Rule string `positional-arg-name:"RULE" description:"Rule id"`
	} `positional-args:"yes" required:"yes"`
}

func (c *toggleRuleCmd) Execute([]string) error {
	return authed(func(ctx context.Context, app *console.App) error {
		if err := selectDomain(ctx, app, c.Domain); err != nil {
			return err
		}
		if err := app.Rules.ToggleRule(ctx, c.Args.Rule, !c.Disable); err != nil {
			return err
		}
		printRules(app)
		return nil
	})
}

type deleteRuleCmd struct {
	Args struct {
		Rule string `positional-arg-name:"RULE" description:"Rule id"`
	} `positional-args:"yes" required:"yes"`
}

func (c *deleteRuleCmd) Execute([]string) error {
	return authed(func(ctx context.Context, app *console.App) error {
		if err := selectDomain(ctx, app, ""); err != nil {
			return err
		}
		if err := app.Rules.DeleteCustomRule(ctx, c.Args.Rule); err != nil {
			return err
		}
		printRules(app)
		return nil
	})
}
