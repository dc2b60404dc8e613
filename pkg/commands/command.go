package commands

import (
	"sort"
	"strings"

	"github.com/sipeed/picohub/pkg/hub"
)

// Command is a parsed operator command. The set of implementations is closed:
// only types in this package satisfy it.
type Command interface {
	Verb() string
	sealed()
}

type Start struct{}

// Login carries the secret from `/login BOT "<secret>"`. WellFormed is false
// when the text did not match that template exactly.
type Login struct {
	Secret     string
	WellFormed bool
}

type Help struct{}

type CountTotal struct{}
type CountOnline struct{}
type CountOffline struct{}
type ListAgents struct{}

type AgentInfo struct{ ID string }
type DeviceInfo struct{ ID string }
type PermissionInfo struct{ ID string }

type SetPermission struct {
	Capability string
	Value      hub.Permission
	ID         string
}

// Enqueue queues an opaque command string for an agent.
type Enqueue struct {
	ID      string
	Command string
}

type ShowPending struct{ ID string }

type ExportLog struct {
	Channel string
	ID      string
}

// Malformed is a known verb whose arguments did not have the required shape.
type Malformed struct {
	Name  string
	Usage string
}

func (Start) Verb() string          { return "start" }
func (Login) Verb() string          { return "login" }
func (Help) Verb() string           { return "help" }
func (CountTotal) Verb() string     { return "total bot info" }
func (CountOnline) Verb() string    { return "online bot info" }
func (CountOffline) Verb() string   { return "offline bot info" }
func (ListAgents) Verb() string     { return "bot list" }
func (AgentInfo) Verb() string      { return "bot info" }
func (DeviceInfo) Verb() string     { return "device info" }
func (PermissionInfo) Verb() string { return "permission info" }
func (SetPermission) Verb() string  { return "permission" }
func (Enqueue) Verb() string        { return "queue" }
func (ShowPending) Verb() string    { return "pending" }
func (ExportLog) Verb() string      { return "logs" }
func (m Malformed) Verb() string    { return m.Name }

func (Start) sealed()          {}
func (Login) sealed()          {}
func (Help) sealed()           {}
func (CountTotal) sealed()     {}
func (CountOnline) sealed()    {}
func (CountOffline) sealed()   {}
func (ListAgents) sealed()     {}
func (AgentInfo) sealed()      {}
func (DeviceInfo) sealed()     {}
func (PermissionInfo) sealed() {}
func (SetPermission) sealed()  {}
func (Enqueue) sealed()        {}
func (ShowPending) sealed()    {}
func (ExportLog) sealed()      {}
func (Malformed) sealed()      {}

type verbSpec struct {
	words []string
	usage string
	parse func(args []string, rest string) Command
}

const loginTemplatePrefix = `BOT "`

var verbTable = func() []verbSpec {
	specs := []verbSpec{
		{words: []string{"start"}, parse: func([]string, string) Command { return Start{} }},
		{words: []string{"help"}, parse: func([]string, string) Command { return Help{} }},
		{words: []string{"login"}, usage: `/login BOT "<password>"`, parse: parseLogin},
		{words: []string{"total", "bot", "info"}, parse: noArgs(CountTotal{})},
		{words: []string{"online", "bot", "info"}, parse: noArgs(CountOnline{})},
		{words: []string{"offline", "bot", "info"}, parse: noArgs(CountOffline{})},
		{words: []string{"bot", "list"}, parse: noArgs(ListAgents{})},
		{words: []string{"bot", "info"}, usage: "/bot info <agent>", parse: oneID(func(id string) Command { return AgentInfo{ID: id} })},
		{words: []string{"device", "info"}, usage: "/device info <agent>", parse: oneID(func(id string) Command { return DeviceInfo{ID: id} })},
		{words: []string{"permission", "info"}, usage: "/permission info <agent>", parse: oneID(func(id string) Command { return PermissionInfo{ID: id} })},
		{words: []string{"permission"}, usage: "/permission <capability> <ALLOW|DENIED> <agent>", parse: parseSetPermission},
		{words: []string{"queue"}, usage: "/queue <agent> <command...>", parse: parseEnqueue},
		{words: []string{"pending"}, usage: "/pending <agent>", parse: oneID(func(id string) Command { return ShowPending{ID: id} })},
		{words: []string{"logs"}, usage: "/logs <channel> <agent>", parse: parseExportLog},
	}
	// Longest literal prefix first, so "permission info" wins over "permission".
	sort.SliceStable(specs, func(i, j int) bool { return len(specs[i].words) > len(specs[j].words) })
	return specs
}()

// Parse turns operator text into a Command. Text that is not a slash command,
// or names no known verb, yields nil.
func Parse(text string) Command {
	text = strings.TrimSpace(text)
	tokens := strings.Fields(text)
	if len(tokens) == 0 || !strings.HasPrefix(tokens[0], "/") {
		return nil
	}

	head := strings.TrimPrefix(tokens[0], "/")
	if i := strings.Index(head, "@"); i >= 0 {
		head = head[:i]
	}
	if head == "" {
		return nil
	}
	words := append([]string{head}, tokens[1:]...)
	// rest is the raw text after the first token, used where exact spacing matters.
	rest := strings.TrimPrefix(text, tokens[0])

	for _, spec := range verbTable {
		if !hasPrefix(words, spec.words) {
			continue
		}
		cmd := spec.parse(words[len(spec.words):], rest)
		if cmd == nil {
			return Malformed{Name: strings.Join(spec.words, " "), Usage: spec.usage}
		}
		return cmd
	}
	return nil
}

func hasPrefix(words, prefix []string) bool {
	if len(words) < len(prefix) {
		return false
	}
	for i, w := range prefix {
		if words[i] != w {
			return false
		}
	}
	return true
}

func noArgs(cmd Command) func([]string, string) Command {
	return func([]string, string) Command { return cmd }
}

func oneID(build func(id string) Command) func([]string, string) Command {
	return func(args []string, _ string) Command {
		if len(args) != 1 {
			return nil
		}
		return build(args[0])
	}
}

// parseLogin requires the text after the verb to be exactly ` BOT "<secret>"`.
func parseLogin(_ []string, rest string) Command {
	body, ok := strings.CutPrefix(rest, " ")
	if !ok || len(body) <= len(loginTemplatePrefix)+1 ||
		!strings.HasPrefix(body, loginTemplatePrefix) || !strings.HasSuffix(body, `"`) {
		return Login{}
	}
	secret := body[len(loginTemplatePrefix) : len(body)-1]
	return Login{Secret: secret, WellFormed: true}
}

func parseSetPermission(args []string, _ string) Command {
	if len(args) != 3 {
		return nil
	}
	value, err := hub.ParsePermission(args[1])
	if err != nil {
		return nil
	}
	return SetPermission{Capability: args[0], Value: value, ID: args[2]}
}

func parseEnqueue(args []string, _ string) Command {
	if len(args) < 2 {
		return nil
	}
	return Enqueue{ID: args[0], Command: strings.Join(args[1:], " ")}
}

func parseExportLog(args []string, _ string) Command {
	if len(args) != 2 {
		return nil
	}
	return ExportLog{Channel: args[0], ID: args[1]}
}
