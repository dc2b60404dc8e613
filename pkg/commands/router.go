package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/sipeed/picohub/pkg/hub"
	"github.com/sipeed/picohub/pkg/logger"
	"github.com/sipeed/picohub/pkg/metrics"
)

// Reply is what the transport sends back to the operator.
type Reply struct {
	Text     string
	Document *Document
}

// Document is a file attachment, used for log exports.
type Document struct {
	Name    string
	Content []byte
}

const (
	replyUnauthorized  = "Unauthorized."
	replyNotFound      = "Not found."
	replyWrongPassword = "Wrong password."
)

type Options struct {
	Capabilities []string
	Location     *time.Location
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Router parses operator text and applies it to the hub.
type Router struct {
	hub          *hub.Hub
	capabilities []string
	loc          *time.Location
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewRouter(h *hub.Hub, opts Options) *Router {
	r := &Router{
		hub:          h,
		capabilities: append([]string(nil), opts.Capabilities...),
		loc:          opts.Location,
		metrics:      opts.Metrics,
		now:          opts.Now,
	}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// HandleOperatorText is the single entry point for the control channel. The
// bool is false when nothing should be sent back.
func (r *Router) HandleOperatorText(ctx context.Context, requester, text string) (Reply, bool) {
	cmd := Parse(text)
	if cmd == nil {
		return Reply{}, false
	}
	return r.Execute(ctx, requester, cmd)
}

// Execute runs an already parsed command on behalf of requester.
func (r *Router) Execute(ctx context.Context, requester string, cmd Command) (Reply, bool) {
	if ctx.Err() != nil {
		return Reply{}, false
	}
	r.metrics.IncOperatorCommand(cmd.Verb())

	switch c := cmd.(type) {
	case Start:
		return r.start(requester)
	case Login:
		return r.login(requester, c)
	case Help:
		return r.help(requester)
	}

	if !r.hub.Gate.IsAuthorized(requester) {
		logger.WarnCF("router", "Rejected unauthorized command", map[string]any{
			"verb":      cmd.Verb(),
			"requester": requester,
		})
		return text(replyUnauthorized)
	}

	logger.InfoCF("router", "Operator command", map[string]any{"verb": cmd.Verb()})

	reg := r.hub.Registry
	switch c := cmd.(type) {
	case Malformed:
		return text("Usage: " + c.Usage)
	case CountTotal:
		return text(fmt.Sprintf("AGENTS: %d", reg.Stats().Total))
	case CountOnline:
		return text(fmt.Sprintf("AGENTS: %d", reg.Stats().Online))
	case CountOffline:
		return text(fmt.Sprintf("AGENTS: %d", reg.Stats().Offline))
	case ListAgents:
		return text(renderList(reg.List()))
	case AgentInfo:
		return r.withAgent(c.ID, func(rec hub.AgentRecord) string { return r.renderAgentInfo(c.ID, rec) })
	case DeviceInfo:
		return r.withAgent(c.ID, func(rec hub.AgentRecord) string { return renderDeviceInfo(c.ID, rec) })
	case PermissionInfo:
		return r.withAgent(c.ID, func(rec hub.AgentRecord) string { return r.renderPermissions(c.ID, rec) })
	case ShowPending:
		return r.withAgent(c.ID, func(rec hub.AgentRecord) string { return renderPending(c.ID, rec) })
	case SetPermission:
		return r.setPermission(c)
	case Enqueue:
		return r.enqueue(c)
	case ExportLog:
		return r.exportLog(c)
	}
	return Reply{}, false
}

func (r *Router) start(requester string) (Reply, bool) {
	if !r.hub.Gate.IsOperator(requester) {
		return Reply{}, false
	}
	return text(fmt.Sprintf("*picohub* | agent control\n\nPlease enter the password.\n\nTime: %s", r.clock()))
}

func (r *Router) login(requester string, c Login) (Reply, bool) {
	if !r.hub.Gate.IsOperator(requester) {
		return Reply{}, false
	}
	if !c.WellFormed {
		r.metrics.IncLoginFailures()
		return text(replyWrongPassword)
	}

	err := r.hub.Gate.AttemptLogin(requester, c.Secret)
	switch {
	case err == nil:
		logger.InfoC("router", "Operator logged in")
		return text(fmt.Sprintf("*Access granted.*\n\npicohub active\nTime: %s", r.clock()))
	case errors.Is(err, hub.ErrRateLimited):
		r.metrics.IncLoginFailures()
		logger.WarnC("router", "Login attempt rate limited")
		return text("Too many attempts. Try again later.")
	default:
		r.metrics.IncLoginFailures()
		logger.WarnC("router", "Login attempt with wrong password")
		return text(replyWrongPassword)
	}
}

func (r *Router) help(requester string) (Reply, bool) {
	if !r.hub.Gate.IsAuthorized(requester) {
		return text("Use `/login BOT \"<password>\"`")
	}

	var b strings.Builder
	b.WriteString("*picohub* | agent control\n\n")
	for _, line := range []string{
		"/total bot info",
		"/online bot info",
		"/offline bot info",
		"/bot list",
		"/bot info [AGENT]",
		"/device info [AGENT]",
		"/permission info [AGENT]",
		"/permission [CAPABILITY] [ALLOW/DENIED] [AGENT]",
		"/queue [AGENT] [COMMAND...]",
		"/pending [AGENT]",
		"/logs [CHANNEL] [AGENT]",
	} {
		b.WriteString("° " + line + "\n")
	}
	if len(r.capabilities) > 0 {
		b.WriteString("\nCapabilities: " + strings.Join(r.capabilities, ", ") + "\n")
	}
	b.WriteString("\nTime: " + r.clock())
	return text(b.String())
}

func (r *Router) setPermission(c SetPermission) (Reply, bool) {
	if !slices.Contains(r.capabilities, c.Capability) {
		return text("Unknown capability. Known: " + strings.Join(r.capabilities, ", "))
	}
	err := r.hub.Registry.SetPermission(c.ID, c.Capability, string(c.Value))
	switch {
	case errors.Is(err, hub.ErrNotFound):
		return text(replyNotFound)
	case err != nil:
		return text("Usage: /permission <capability> <ALLOW|DENIED> <agent>")
	}
	return text(fmt.Sprintf("%s: %s [%s]", strings.ToUpper(c.Capability), c.Value, c.ID))
}

func (r *Router) enqueue(c Enqueue) (Reply, bool) {
	if err := r.hub.Registry.Enqueue(c.ID, c.Command); err != nil {
		return text("Usage: /queue <agent> <command...>")
	}
	pending, _ := r.hub.Registry.Pending(c.ID)
	return text(fmt.Sprintf("QUEUED [%s]: %s (%d pending)", c.ID, c.Command, len(pending)))
}

func (r *Router) exportLog(c ExportLog) (Reply, bool) {
	rec, ok := r.hub.Registry.Get(c.ID)
	if !ok {
		return text(replyNotFound)
	}

	entries := rec.Channels[c.Channel]
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("[%s] %s", e.ID, e.Message))
	}
	body := strings.Join(lines, "\n")
	if body == "" {
		body = "No entries"
	}

	return Reply{
		Text: fmt.Sprintf("%s [%s]: %d entries", c.Channel, c.ID, len(entries)),
		Document: &Document{
			Name:    fmt.Sprintf("%s_%s.txt", c.Channel, c.ID),
			Content: []byte(body),
		},
	}, true
}

func (r *Router) withAgent(id string, render func(hub.AgentRecord) string) (Reply, bool) {
	rec, ok := r.hub.Registry.Get(id)
	if !ok {
		return text(replyNotFound)
	}
	return text(render(rec))
}

func (r *Router) clock() string {
	t := r.now().In(r.loc)
	return fmt.Sprintf("%s (%s)", t.Format("15:04"), t.Format("-07:00"))
}

func (r *Router) renderAgentInfo(id string, rec hub.AgentRecord) string {
	lastSeen := "--"
	if !rec.LastSeen.IsZero() {
		lastSeen = rec.LastSeen.In(r.loc).Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("%s\n[%s]\nLast seen: %s\nPending: %d", rec.Status(), id, lastSeen, len(rec.Pending))
}

func (r *Router) renderPermissions(id string, rec hub.AgentRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", id)

	seen := make(map[string]bool, len(r.capabilities))
	for _, capability := range r.capabilities {
		seen[capability] = true
		fmt.Fprintf(&b, "\n%s: %s", strings.ToUpper(capability), permissionOrPlaceholder(rec, capability))
	}

	extra := make([]string, 0)
	for capability := range rec.Permissions {
		if !seen[capability] {
			extra = append(extra, capability)
		}
	}
	sort.Strings(extra)
	for _, capability := range extra {
		fmt.Fprintf(&b, "\n%s: %s", strings.ToUpper(capability), rec.Permissions[capability])
	}
	return b.String()
}

func permissionOrPlaceholder(rec hub.AgentRecord, capability string) string {
	if p, ok := rec.Permissions[capability]; ok {
		return string(p)
	}
	return "--"
}

// deviceFields are shown first, in this order, with their placeholders.
var deviceFields = []struct {
	key, label, placeholder, suffix string
}{
	{"ip", "IP", "0.0.0.0", ""},
	{"device", "Name", "--", ""},
	{"os", "OS", "--", ""},
	{"battery", "Battery", "--", "%"},
	{"serial", "Serial", "--", ""},
}

func renderDeviceInfo(id string, rec hub.AgentRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n[%s]", rec.Status(), id)

	known := make(map[string]bool, len(deviceFields))
	for _, f := range deviceFields {
		known[f.key] = true
		fmt.Fprintf(&b, "\n%s: %s%s", f.label, rec.Attributes.Get(f.key, f.placeholder), f.suffix)
	}

	extra := make([]string, 0, len(rec.Attributes))
	for k := range rec.Attributes {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		fmt.Fprintf(&b, "\n%s: %s", k, rec.Attributes[k])
	}
	return b.String()
}

func renderList(entries []hub.Entry) string {
	if len(entries) == 0 {
		return "No agents"
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("[%s] %s", e.ID, e.Record.Status())
	}
	return strings.Join(lines, "\n")
}

func renderPending(id string, rec hub.AgentRecord) string {
	if len(rec.Pending) == 0 {
		return fmt.Sprintf("No pending commands [%s]", id)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %d pending", id, len(rec.Pending))
	for i, c := range rec.Pending {
		fmt.Fprintf(&b, "\n%d. %s", i+1, c)
	}
	return b.String()
}

func text(s string) (Reply, bool) {
	return Reply{Text: s}, true
}
