package hub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Permission is the state of a named capability on an agent.
type Permission string

const (
	PermissionAllow  Permission = "ALLOW"
	PermissionDenied Permission = "DENIED"
)

// ParsePermission accepts exactly ALLOW or DENIED.
func ParsePermission(s string) (Permission, error) {
	switch Permission(s) {
	case PermissionAllow, PermissionDenied:
		return Permission(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidValue, s)
}

// ChannelEntry is one item of a per-channel log supplied by an agent.
type ChannelEntry struct {
	ID      Value  `json:"id"`
	Message string `json:"message"`
}

// AgentRecord is everything the hub knows about one agent.
type AgentRecord struct {
	Seq         uint64                    `json:"seq"`
	Online      bool                      `json:"online"`
	LastSeen    time.Time                 `json:"last_seen,omitzero"`
	Attributes  Attributes                `json:"attributes,omitempty"`
	Permissions map[string]Permission     `json:"permissions,omitempty"`
	Channels    map[string][]ChannelEntry `json:"channels,omitempty"`
	Pending     []string                  `json:"pending"`
}

// Status renders the online flag the way operator replies show it.
func (r AgentRecord) Status() string {
	if r.Online {
		return "ONLINE"
	}
	return "OFFLINE"
}

// Clone returns a deep copy that shares no maps or slices with r.
func (r AgentRecord) Clone() AgentRecord {
	out := r
	out.Attributes = r.Attributes.clone()
	if r.Permissions != nil {
		out.Permissions = make(map[string]Permission, len(r.Permissions))
		for k, v := range r.Permissions {
			out.Permissions[k] = v
		}
	}
	if r.Channels != nil {
		out.Channels = make(map[string][]ChannelEntry, len(r.Channels))
		for k, v := range r.Channels {
			out.Channels[k] = append([]ChannelEntry(nil), v...)
		}
	}
	out.Pending = append([]string{}, r.Pending...)
	return out
}

// Report is a decoded agent report. Every map is merged key by key into the
// existing record; keys the report does not mention are left untouched.
type Report struct {
	Attributes  Attributes
	Channels    map[string][]ChannelEntry
	Permissions map[string]Permission
}

// Empty reports whether r carries nothing to merge.
func (r Report) Empty() bool {
	return len(r.Attributes) == 0 && len(r.Channels) == 0 && len(r.Permissions) == 0
}

// DecodeReport parses a JSON object into a Report. The keys "attributes",
// "channels" and "permissions" are structured; "id" is ignored; every other
// top-level key is treated as an attribute. Nothing is applied when any
// field has the wrong shape.
func DecodeReport(data []byte) (Report, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Report{}, fmt.Errorf("%w: report must be a JSON object", ErrInvalidArgument)
	}
	if raw == nil {
		return Report{}, fmt.Errorf("%w: report must be a JSON object", ErrInvalidArgument)
	}

	var rep Report
	for key, msg := range raw {
		switch key {
		case "id":
			continue
		case "attributes":
			var attrs Attributes
			if err := json.Unmarshal(msg, &attrs); err != nil {
				return Report{}, fmt.Errorf("attributes: %w", asInvalid(err))
			}
			for k, v := range attrs {
				if v.IsZero() {
					return Report{}, fmt.Errorf("attributes.%s: %w: null value", k, ErrInvalidArgument)
				}
			}
			rep.attrs().Merge(attrs)
		case "channels":
			var chans map[string][]ChannelEntry
			if err := json.Unmarshal(msg, &chans); err != nil {
				return Report{}, fmt.Errorf("channels: %w", asInvalid(err))
			}
			rep.Channels = chans
		case "permissions":
			var perms map[string]string
			if err := json.Unmarshal(msg, &perms); err != nil {
				return Report{}, fmt.Errorf("permissions: %w", asInvalid(err))
			}
			for capability, value := range perms {
				p, err := ParsePermission(value)
				if err != nil {
					return Report{}, fmt.Errorf("permissions.%s: %w", capability, err)
				}
				if rep.Permissions == nil {
					rep.Permissions = make(map[string]Permission, len(perms))
				}
				rep.Permissions[capability] = p
			}
		default:
			v, err := decodeAttribute(msg)
			if err != nil {
				return Report{}, fmt.Errorf("%s: %w", key, err)
			}
			// Explicit entries under "attributes" win over flat keys.
			if _, dup := rep.Attributes[key]; !dup {
				rep.attrs()[key] = v
			}
		}
	}
	return rep, nil
}

// DecodeRegistration parses a registration body {id, ...attributes}.
func DecodeRegistration(data []byte) (string, Attributes, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return "", nil, fmt.Errorf("%w: registration must be a JSON object", ErrInvalidArgument)
	}

	var id string
	if err := json.Unmarshal(bytes.TrimSpace(raw["id"]), &id); err != nil || strings.TrimSpace(id) == "" {
		return "", nil, fmt.Errorf("%w: id must be a non-empty string", ErrInvalidArgument)
	}
	delete(raw, "id")

	attrs := make(Attributes, len(raw))
	for key, msg := range raw {
		v, err := decodeAttribute(msg)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", key, err)
		}
		attrs[key] = v
	}
	return id, attrs, nil
}

func (r *Report) attrs() Attributes {
	if r.Attributes == nil {
		r.Attributes = make(Attributes)
	}
	return r.Attributes
}

// decodeAttribute is Value.UnmarshalJSON minus the null case, which is only
// tolerated for channel entry ids.
func decodeAttribute(msg json.RawMessage) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(msg); err != nil {
		return Value{}, err
	}
	if v.IsZero() {
		return Value{}, fmt.Errorf("%w: null value", ErrInvalidArgument)
	}
	return v, nil
}

func asInvalid(err error) error {
	if errors.Is(err, ErrInvalidArgument) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
}
