package commands

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/picohub/pkg/hub"
)

const (
	operatorID = "123456789"
	secret     = "s3cret"
)

var testNow = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

func newTestRouter(t *testing.T) (*Router, *hub.Hub) {
	t.Helper()
	clock := func() time.Time { return testNow }
	reg := hub.NewRegistry(nil, nil, hub.WithClock(clock))
	h := hub.New(reg, hub.NewGate(operatorID, secret, 0))
	r := NewRouter(h, Options{
		Capabilities: []string{"storage", "network", "notifications"},
		Now:          clock,
	})
	return r, h
}

func send(t *testing.T, r *Router, requester, text string) (Reply, bool) {
	t.Helper()
	return r.HandleOperatorText(context.Background(), requester, text)
}

func login(t *testing.T, r *Router) {
	t.Helper()
	reply, ok := send(t, r, operatorID, `/login BOT "`+secret+`"`)
	require.True(t, ok)
	require.Contains(t, reply.Text, "Access granted.")
}

func TestRouter_IgnoresNonCommands(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, text := range []string{"hello", "/nonsense", ""} {
		_, ok := send(t, r, operatorID, text)
		assert.False(t, ok, text)
	}
}

func TestRouter_StartOnlyForOperator(t *testing.T) {
	r, _ := newTestRouter(t)

	reply, ok := send(t, r, operatorID, "/start")
	require.True(t, ok)
	assert.Contains(t, reply.Text, "Please enter the password.")
	assert.Contains(t, reply.Text, "12:30 (+00:00)")

	_, ok = send(t, r, "42", "/start")
	assert.False(t, ok)
}

func TestRouter_Login(t *testing.T) {
	r, h := newTestRouter(t)

	_, ok := send(t, r, "42", `/login BOT "`+secret+`"`)
	assert.False(t, ok, "strangers get no reply")
	assert.False(t, h.Gate.LoggedIn())

	reply, ok := send(t, r, operatorID, `/login BOT "wrong"`)
	require.True(t, ok)
	assert.Equal(t, "Wrong password.", reply.Text)
	assert.False(t, h.Gate.LoggedIn())

	reply, _ = send(t, r, operatorID, "/login "+secret)
	assert.Equal(t, "Wrong password.", reply.Text)
	assert.False(t, h.Gate.LoggedIn())

	login(t, r)
	assert.True(t, h.Gate.LoggedIn())
}

func TestRouter_LoginRateLimited(t *testing.T) {
	reg := hub.NewRegistry(nil, nil)
	r := NewRouter(hub.New(reg, hub.NewGate(operatorID, secret, 1)), Options{})

	reply, _ := send(t, r, operatorID, `/login BOT "wrong"`)
	assert.Equal(t, "Wrong password.", reply.Text)

	reply, _ = send(t, r, operatorID, `/login BOT "`+secret+`"`)
	assert.Contains(t, reply.Text, "Too many attempts")
}

func TestRouter_Help(t *testing.T) {
	r, _ := newTestRouter(t)

	reply, ok := send(t, r, operatorID, "/help")
	require.True(t, ok)
	assert.Contains(t, reply.Text, "/login")
	assert.NotContains(t, reply.Text, "/queue")

	login(t, r)
	reply, _ = send(t, r, operatorID, "/help")
	assert.Contains(t, reply.Text, "/queue [AGENT] [COMMAND...]")
	assert.Contains(t, reply.Text, "storage, network, notifications")
}

func TestRouter_NoStateChangeBeforeLogin(t *testing.T) {
	r, h := newTestRouter(t)
	require.NoError(t, h.Registry.Register("BOT-001", nil))
	before := h.Registry.Snapshot()

	for _, text := range []string{
		"/permission storage ALLOW BOT-001",
		"/queue BOT-001 SYNC now",
		"/queue BOT-404 SYNC now",
		"/bot list",
		"/total bot info",
		"/device info BOT-001",
		"/pending BOT-001",
		"/logs events BOT-001",
		"/bot info",
	} {
		for _, requester := range []string{operatorID, "42"} {
			reply, ok := send(t, r, requester, text)
			require.True(t, ok, text)
			assert.Equal(t, "Unauthorized.", reply.Text, text)
			assert.Nil(t, reply.Document)
		}
	}

	assert.Equal(t, before, h.Registry.Snapshot())
	_, ok := h.Registry.Get("BOT-404")
	assert.False(t, ok)
}

func TestRouter_OtherIdentityStaysUnauthorizedAfterLogin(t *testing.T) {
	r, h := newTestRouter(t)
	login(t, r)

	reply, _ := send(t, r, "42", "/queue BOT-001 SYNC")
	assert.Equal(t, "Unauthorized.", reply.Text)
	_, ok := h.Registry.Get("BOT-001")
	assert.False(t, ok)
}

func TestRouter_Counts(t *testing.T) {
	r, h := newTestRouter(t)
	login(t, r)

	reply, _ := send(t, r, operatorID, "/bot list")
	assert.Equal(t, "No agents", reply.Text)

	require.NoError(t, h.Registry.Register("BOT-001", nil))
	require.NoError(t, h.Registry.Enqueue("BOT-002", "PING"))

	reply, _ = send(t, r, operatorID, "/total bot info")
	assert.Equal(t, "AGENTS: 2", reply.Text)
	reply, _ = send(t, r, operatorID, "/online bot info")
	assert.Equal(t, "AGENTS: 1", reply.Text)
	reply, _ = send(t, r, operatorID, "/offline bot info")
	assert.Equal(t, "AGENTS: 1", reply.Text)

	reply, _ = send(t, r, operatorID, "/bot list")
	assert.Equal(t, "[BOT-001] ONLINE\n[BOT-002] OFFLINE", reply.Text)
}

func TestRouter_UnknownAgent(t *testing.T) {
	r, _ := newTestRouter(t)
	login(t, r)

	for _, text := range []string{
		"/bot info BOT-404",
		"/device info BOT-404",
		"/permission info BOT-404",
		"/pending BOT-404",
		"/logs events BOT-404",
		"/permission storage ALLOW BOT-404",
	} {
		reply, _ := send(t, r, operatorID, text)
		assert.Equal(t, "Not found.", reply.Text, text)
	}
}

func TestRouter_MalformedReportsUsage(t *testing.T) {
	r, _ := newTestRouter(t)
	login(t, r)

	reply, ok := send(t, r, operatorID, "/permission storage MAYBE BOT-001")
	require.True(t, ok)
	assert.Equal(t, "Usage: /permission <capability> <ALLOW|DENIED> <agent>", reply.Text)
}

func TestRouter_UnknownCapabilityDoesNotMutate(t *testing.T) {
	r, h := newTestRouter(t)
	login(t, r)
	require.NoError(t, h.Registry.Register("BOT-001", nil))

	reply, _ := send(t, r, operatorID, "/permission camera ALLOW BOT-001")
	assert.True(t, strings.HasPrefix(reply.Text, "Unknown capability"))

	rec, _ := h.Registry.Get("BOT-001")
	assert.Empty(t, rec.Permissions)
}

func TestRouter_DeviceInfoPlaceholders(t *testing.T) {
	r, h := newTestRouter(t)
	login(t, r)
	require.NoError(t, h.Registry.Register("BOT-001", hub.Attributes{
		"os":      hub.StringValue("linux"),
		"battery": hub.NumberValue(87),
		"arch":    hub.StringValue("arm64"),
	}))

	reply, _ := send(t, r, operatorID, "/device info BOT-001")
	assert.Equal(t, strings.Join([]string{
		"ONLINE",
		"[BOT-001]",
		"IP: 0.0.0.0",
		"Name: --",
		"OS: linux",
		"Battery: 87%",
		"Serial: --",
		"arch: arm64",
	}, "\n"), reply.Text)
}

func TestRouter_ExportLog(t *testing.T) {
	r, h := newTestRouter(t)
	login(t, r)
	require.NoError(t, h.Registry.Register("BOT-001", nil))
	require.NoError(t, h.Registry.Report("BOT-001", hub.Report{
		Channels: map[string][]hub.ChannelEntry{
			"events": {
				{ID: hub.NumberValue(1), Message: "boot"},
				{ID: hub.StringValue("a2"), Message: "sync done"},
			},
		},
	}))

	reply, ok := send(t, r, operatorID, "/logs events BOT-001")
	require.True(t, ok)
	require.NotNil(t, reply.Document)
	assert.Equal(t, "events_BOT-001.txt", reply.Document.Name)
	assert.Equal(t, "[1] boot\n[a2] sync done", string(reply.Document.Content))

	reply, _ = send(t, r, operatorID, "/logs other BOT-001")
	require.NotNil(t, reply.Document)
	assert.Equal(t, "No entries", string(reply.Document.Content))
}

func TestRouter_EndToEnd(t *testing.T) {
	r, h := newTestRouter(t)
	reg := h.Registry

	reply, _ := send(t, r, operatorID, "/start")
	assert.Contains(t, reply.Text, "Please enter the password.")
	login(t, r)

	require.NoError(t, reg.Register("BOT-001", hub.Attributes{"device": hub.StringValue("Pixel 7")}))

	reply, _ = send(t, r, operatorID, "/permission storage ALLOW BOT-001")
	assert.Equal(t, "STORAGE: ALLOW [BOT-001]", reply.Text)

	reply, _ = send(t, r, operatorID, "/permission info BOT-001")
	assert.Equal(t, "[BOT-001]\nSTORAGE: ALLOW\nNETWORK: --\nNOTIFICATIONS: --", reply.Text)

	reply, _ = send(t, r, operatorID, "/queue BOT-001 SYNC now")
	assert.Equal(t, "QUEUED [BOT-001]: SYNC now (1 pending)", reply.Text)
	reply, _ = send(t, r, operatorID, "/queue BOT-001 PING")
	assert.Equal(t, "QUEUED [BOT-001]: PING (2 pending)", reply.Text)

	reply, _ = send(t, r, operatorID, "/pending BOT-001")
	assert.Equal(t, "[BOT-001] 2 pending\n1. SYNC now\n2. PING", reply.Text)

	assert.Equal(t, []string{"SYNC now", "PING"}, reg.Drain("BOT-001"))
	assert.Equal(t, []string{}, reg.Drain("BOT-001"))

	reply, _ = send(t, r, operatorID, "/bot info BOT-001")
	assert.Equal(t, "ONLINE\n[BOT-001]\nLast seen: 2026-03-01 12:30\nPending: 0", reply.Text)

	reply, _ = send(t, r, operatorID, "/device info BOT-001")
	assert.Contains(t, reply.Text, "Name: Pixel 7")
}

func TestRouter_CancelledContext(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := r.HandleOperatorText(ctx, operatorID, "/start")
	assert.False(t, ok)
}
