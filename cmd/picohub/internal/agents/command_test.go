package agents

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentsCommand(t *testing.T) {
	cmd := NewAgentsCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "agents", cmd.Use)
	assert.True(t, cmd.HasAlias("a"))
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("store"))
}

func runAgents(t *testing.T, args ...string) string {
	t.Helper()
	cmd := NewAgentsCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestAgentsListsInRegistrationOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	snapshot := `{
		"BOT-002": {"seq": 2, "online": false, "pending": ["PING"]},
		"BOT-001": {"seq": 1, "online": true, "last_seen": "2026-03-01T12:00:00Z", "pending": []}
	}`
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o600))

	out := runAgents(t, "--store", path)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "BOT-001")
	assert.Contains(t, lines[1], "ONLINE")
	assert.Contains(t, lines[1], "2026-03-01 12:00")
	assert.Contains(t, lines[2], "BOT-002")
	assert.Contains(t, lines[2], "OFFLINE")
}

func TestAgentsMissingSnapshot(t *testing.T) {
	out := runAgents(t, "--store", filepath.Join(t.TempDir(), "absent.json"))
	assert.Equal(t, "No agents\n", out)
}

func TestAgentsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	cmd := NewAgentsCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--store", path})
	assert.Error(t, cmd.Execute())
}
