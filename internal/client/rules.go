package client

import (
	"context"
	"fmt"
	"net/http"

	"web-app-firewall-console/internal/core"
)

// ListRules fetches one tier. An empty domainID omits the scope.
func (c *Client) ListRules(ctx context.Context, tier core.RuleTier, domainID string) ([]core.Rule, error) {
	switch tier {
	case core.TierGlobal, core.TierCustom:
	default:
		return nil, fmt.Errorf("unknown rule tier %q", tier)
	}
	return call[[]core.Rule](ctx, c, http.MethodGet, "/api/rules/"+string(tier)+query("domain_id", domainID), nil)
}

func (c *Client) AddCustomRule(ctx context.Context, rule core.NewRule) error {
	return c.exec(ctx, http.MethodPost, "/api/rules/custom/add", rule)
}

func (c *Client) ToggleRule(ctx context.Context, req core.ToggleRuleRequest) error {
	return c.exec(ctx, http.MethodPost, "/api/rules/toggle", req)
}

func (c *Client) DeleteCustomRule(ctx context.Context, id string) error {
	return c.exec(ctx, http.MethodDelete, "/api/rules/custom/delete"+query("id", id), nil)
}
