package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logfeed"
	"web-app-firewall-console/internal/scheduler"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dangerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
	successStyle = okStyle.Bold(true)
	failureStyle = dangerStyle.Bold(true)
)

const timeLayout = "2006-01-02 15:04:05"

// Terminal prints notifications as coloured one-liners. Errors go to Err.
type Terminal struct {
	Out io.Writer
	Err io.Writer

	mu sync.Mutex
}

func (t *Terminal) Success(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.Out, successStyle.Render("✓ "+msg))
}

func (t *Terminal) Error(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.Err, failureStyle.Render("✗ "+msg))
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func empty(what string) string {
	return mutedStyle.Render("No " + what + " yet.")
}

func statusText(status string) string {
	switch status {
	case core.DomainActive:
		return okStyle.Render("active")
	case core.DomainPending:
		return warnStyle.Render("pending verification")
	default:
		return status
	}
}

func actionText(action string) string {
	switch action {
	case core.LogBlocked:
		return dangerStyle.Render(action)
	case core.LogFlagged:
		return warnStyle.Render(action)
	default:
		return mutedStyle.Render(action)
	}
}

func onOff(v bool) string {
	if v {
		return okStyle.Render("on")
	}
	return mutedStyle.Render("off")
}

func Domains(domains []core.Domain) string {
	if len(domains) == 0 {
		return empty("domains")
	}
	t := newTable("ID", "NAME", "STATUS", "NAMESERVERS", "REQUESTS", "BLOCKED", "FLAGGED")
	for _, d := range domains {
		var total, blocked, flagged string
		if d.Stats != nil {
			total = strconv.FormatInt(d.Stats.TotalRequests, 10)
			blocked = strconv.FormatInt(d.Stats.BlockedRequests, 10)
			flagged = strconv.FormatInt(d.Stats.FlaggedRequests, 10)
		}
		t.Row(d.ID, d.Name, statusText(d.Status), strings.Join(d.Nameservers, ", "), total, blocked, flagged)
	}
	return t.Render()
}

// Nameservers tells the user where to point a freshly added domain.
func Nameservers(d core.Domain) string {
	lines := []string{
		titleStyle.Render(d.Name) + " " + statusText(d.Status),
		"Set these nameservers at your registrar, then run verify:",
	}
	for _, ns := range d.Nameservers {
		lines = append(lines, "  "+ns)
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// Verification renders the gateway's verdict with both nameserver lists.
func Verification(res *core.VerifyResult) string {
	if res == nil {
		return ""
	}
	lines := []string{statusText(res.Status) + "  " + res.Message}
	if len(res.AssignedNS) > 0 {
		lines = append(lines, "Assigned:  "+strings.Join(res.AssignedNS, ", "))
	}
	if len(res.FoundAtRegistrar) > 0 {
		lines = append(lines, "Registrar: "+strings.Join(res.FoundAtRegistrar, ", "))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func Records(records []core.DNSRecord) string {
	if len(records) == 0 {
		return empty("DNS records")
	}
	t := newTable("ID", "TYPE", "NAME", "CONTENT", "TTL", "PROXY", "ORIGIN SSL")
	for _, r := range records {
		proxy, ssl := mutedStyle.Render("-"), mutedStyle.Render("-")
		if r.Type.Proxiable() {
			proxy, ssl = onOff(r.Proxied), onOff(r.OriginSSL)
		}
		t.Row(r.ID, string(r.Type), r.Name, r.Content, strconv.Itoa(r.TTL), proxy, ssl)
	}
	return t.Render()
}

func Rules(title string, rules []core.Rule) string {
	heading := titleStyle.Render(title)
	if len(rules) == 0 {
		return heading + "\n" + empty("rules")
	}
	t := newTable("ID", "NAME", "CONDITIONS", "SCORE", "TAGS", "HARD BLOCK", "ENABLED")
	for _, r := range rules {
		conds := make([]string, 0, len(r.Conditions))
		for _, c := range r.Conditions {
			conds = append(conds, fmt.Sprintf("%s %s %q", c.Field, c.Operator, c.Value))
		}
		hard := ""
		if r.OnMatch.HardBlock {
			hard = dangerStyle.Render("yes")
		}
		t.Row(r.ID, r.Name, strings.Join(conds, "\n"), strconv.Itoa(r.OnMatch.ScoreAdd),
			strings.Join(r.OnMatch.Tags, ", "), hard, onOff(r.Enabled))
	}
	return heading + "\n" + t.Render()
}

func Logs(logs []core.AttackLog) string {
	if len(logs) == 0 {
		return empty("attack logs")
	}
	t := newTable("TIME", "IP", "ACTION", "PATH", "REASON", "SCORE")
	for _, l := range logs {
		t.Row(logTime(l).Format(timeLayout), l.IP, actionText(l.Action), truncate(l.RequestPath, 48),
			l.Reason, strconv.FormatFloat(l.Score, 'f', -1, 64))
	}
	return t.Render()
}

// LogLine is the one-line form used while following the feed.
func LogLine(l core.AttackLog) string {
	return fmt.Sprintf("%s  %-15s  %s  %s  %s",
		mutedStyle.Render(logTime(l).Format(timeLayout)),
		l.IP,
		actionText(fmt.Sprintf("%-7s", l.Action)),
		l.RequestPath,
		mutedStyle.Render(l.Reason))
}

// RawRequest boxes the captured request of a log entry.
func RawRequest(l core.AttackLog) string {
	raw := l.RawRequest()
	if raw == "" {
		raw = mutedStyle.Render("No request captured.")
	}
	head := titleStyle.Render(l.Key(0)) + "  " + actionText(l.Action) + "  " + l.Reason
	if l.MLConfidence != nil {
		head += fmt.Sprintf("  ml %.0f%%", *l.MLConfidence*100)
	}
	if l.TriggerPayload != "" {
		head += "\npayload: " + l.TriggerPayload
	}
	return head + "\n" + boxStyle.Render(strings.TrimRight(raw, "\n"))
}

// LogSummary shows the page counters above the log table.
func LogSummary(st logfeed.Stats, pg core.Pagination) string {
	return fmt.Sprintf("%s  %s  %s  top reason: %s  %s",
		fmt.Sprintf("total %d", st.Total),
		dangerStyle.Render(fmt.Sprintf("blocked %d", st.Blocked)),
		warnStyle.Render(fmt.Sprintf("flagged %d", st.Flagged)),
		st.TopReason,
		mutedStyle.Render(fmt.Sprintf("page %d/%d (%d logs)", pg.CurrentPage, pg.TotalPages, pg.TotalItems)))
}

func Overview(o scheduler.Overview) string {
	var sections []string
	if o.Paused {
		sections = append(sections, warnStyle.Render("⏸ Paused"))
	}

	if o.Status != nil {
		t := newTable("COMPONENT", "STATUS", "CPU", "MEMORY", "NETWORK")
		for _, c := range []struct {
			name string
			s    core.ComponentStatus
		}{
			{"Gateway", o.Status.Gateway},
			{"Database", o.Status.Database},
			{"ML Scorer", o.Status.MLScorer},
		} {
			st := c.s.Status
			switch st {
			case "Online":
				st = okStyle.Render(st)
			case "Offline":
				st = dangerStyle.Render(st)
			}
			t.Row(c.name, st, c.s.CPU, c.s.Memory, c.s.Network)
		}
		sections = append(sections, titleStyle.Render("System"), t.Render())
	}

	var total, blocked, flagged int64
	for _, d := range o.Domains {
		if d.Stats != nil {
			total += d.Stats.TotalRequests
			blocked += d.Stats.BlockedRequests
			flagged += d.Stats.FlaggedRequests
		}
	}
	sections = append(sections, titleStyle.Render("Traffic"),
		fmt.Sprintf("%d domains  %d requests  %s  %s", len(o.Domains), total,
			dangerStyle.Render(fmt.Sprintf("%d blocked", blocked)),
			warnStyle.Render(fmt.Sprintf("%d flagged", flagged))))

	if len(o.Traffic) > 0 {
		t := newTable("TIME", "REQUESTS", "THREATS")
		for _, p := range o.Traffic {
			t.Row(p.Time, strconv.FormatInt(p.Total, 10), strconv.FormatInt(p.Threats, 10))
		}
		sections = append(sections, t.Render())
	}

	sections = append(sections, titleStyle.Render("Recent activity"), Logs(o.RecentLogs))
	if !o.LastUpdated.IsZero() {
		sections = append(sections, mutedStyle.Render("Updated "+o.LastUpdated.Format(time.TimeOnly)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// Hint renders a dimmed line of usage help.
func Hint(s string) string { return mutedStyle.Render(s) }

// logTime prefers the recorded timestamp and falls back to the id's.
func logTime(l core.AttackLog) time.Time {
	if !l.Timestamp.IsZero() {
		return l.Timestamp.Local()
	}
	if t, ok := l.IDTime(); ok {
		return t.Local()
	}
	return time.Time{}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
