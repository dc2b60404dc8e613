package hub

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/picohub/pkg/logger"
	"github.com/sipeed/picohub/pkg/metrics"
)

// Snapshotter persists a full copy of every agent record.
type Snapshotter interface {
	Save(snapshot map[string]AgentRecord) error
}

// Entry pairs an agent id with a copy of its record.
type Entry struct {
	ID     string
	Record AgentRecord
}

// Stats summarises the registry for the count commands.
type Stats struct {
	Total   int
	Online  int
	Offline int
}

// slot owns one agent record. Its mutex is the per-agent critical section:
// every read-modify-write of the record, including queue drains, holds it.
type slot struct {
	mu  sync.Mutex
	rec AgentRecord
}

// Registry holds agent records in memory and writes a snapshot after every
// mutation. Lock order is r.saveMu, then r.mu, then slot.mu; mutations never
// hold a slot lock while saving.
type Registry struct {
	mu      sync.RWMutex
	slots   map[string]*slot
	order   []string
	nextSeq uint64

	saveMu  sync.Mutex
	store   Snapshotter
	metrics *metrics.Metrics
	now     func() time.Time
}

type RegistryOption func(*Registry)

// WithClock overrides time.Now for LastSeen stamps.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry seeds a registry from previously loaded records. Insertion
// order is rebuilt from each record's Seq, ties broken by id.
func NewRegistry(store Snapshotter, records map[string]AgentRecord, opts ...RegistryOption) *Registry {
	r := &Registry{
		slots: make(map[string]*slot, len(records)),
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	for id, rec := range records {
		r.slots[id] = &slot{rec: rec.Clone()}
		r.order = append(r.order, id)
		if rec.Seq >= r.nextSeq {
			r.nextSeq = rec.Seq + 1
		}
	}
	sort.Slice(r.order, func(i, j int) bool {
		a, b := r.slots[r.order[i]].rec.Seq, r.slots[r.order[j]].rec.Seq
		if a != b {
			return a < b
		}
		return r.order[i] < r.order[j]
	})
	r.metrics.SetAgents(len(r.order))
	return r
}

// lookup returns the slot for id, or nil.
func (r *Registry) lookup(id string) *slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[id]
}

// lookupOrCreate returns the slot for id, creating an empty record if needed.
func (r *Registry) lookupOrCreate(id string) *slot {
	if s := r.lookup(id); s != nil {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[id]; ok {
		return s
	}
	s := &slot{rec: AgentRecord{Seq: r.nextSeq, Pending: []string{}}}
	r.nextSeq++
	r.slots[id] = s
	r.order = append(r.order, id)
	r.metrics.SetAgents(len(r.order))
	return s
}

// Register creates the agent if needed, merges attrs, and marks it online.
func (r *Registry) Register(id string, attrs Attributes) error {
	if err := validateID(id); err != nil {
		return err
	}

	s := r.lookupOrCreate(id)
	s.mu.Lock()
	if s.rec.Attributes == nil {
		s.rec.Attributes = make(Attributes, len(attrs))
	}
	s.rec.Attributes.Merge(attrs)
	s.rec.Online = true
	s.rec.LastSeen = r.now().UTC()
	s.mu.Unlock()

	r.metrics.IncRegistrations()
	r.persist("register", id)
	return nil
}

// Report merges rep into an existing agent. It never creates a record.
func (r *Registry) Report(id string, rep Report) error {
	s := r.lookup(id)
	if s == nil {
		return fmt.Errorf("report %q: %w", id, ErrNotFound)
	}

	s.mu.Lock()
	if len(rep.Attributes) > 0 {
		if s.rec.Attributes == nil {
			s.rec.Attributes = make(Attributes, len(rep.Attributes))
		}
		s.rec.Attributes.Merge(rep.Attributes)
	}
	for ch, entries := range rep.Channels {
		if s.rec.Channels == nil {
			s.rec.Channels = make(map[string][]ChannelEntry, len(rep.Channels))
		}
		s.rec.Channels[ch] = append([]ChannelEntry(nil), entries...)
	}
	for capability, p := range rep.Permissions {
		if s.rec.Permissions == nil {
			s.rec.Permissions = make(map[string]Permission, len(rep.Permissions))
		}
		s.rec.Permissions[capability] = p
	}
	s.mu.Unlock()

	r.metrics.IncReports()
	r.persist("report", id)
	return nil
}

// SetPermission records value for capability on an existing agent.
func (r *Registry) SetPermission(id, capability, value string) error {
	p, err := ParsePermission(value)
	if err != nil {
		return err
	}
	if strings.TrimSpace(capability) == "" {
		return fmt.Errorf("%w: empty capability", ErrInvalidArgument)
	}

	s := r.lookup(id)
	if s == nil {
		return fmt.Errorf("set permission on %q: %w", id, ErrNotFound)
	}

	s.mu.Lock()
	if s.rec.Permissions == nil {
		s.rec.Permissions = make(map[string]Permission)
	}
	s.rec.Permissions[capability] = p
	s.mu.Unlock()

	r.persist("permission", id)
	return nil
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (AgentRecord, bool) {
	s := r.lookup(id)
	if s == nil {
		return AgentRecord{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Clone(), true
}

// List returns copies of all records in insertion order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	ids := append([]string(nil), r.order...)
	slots := make([]*slot, len(ids))
	for i, id := range ids {
		slots[i] = r.slots[id]
	}
	r.mu.RUnlock()

	out := make([]Entry, len(ids))
	for i, s := range slots {
		s.mu.Lock()
		out[i] = Entry{ID: ids[i], Record: s.rec.Clone()}
		s.mu.Unlock()
	}
	return out
}

func (r *Registry) Stats() Stats {
	var st Stats
	for _, e := range r.List() {
		st.Total++
		if e.Record.Online {
			st.Online++
		} else {
			st.Offline++
		}
	}
	return st
}

// Snapshot copies every record, keyed by id.
func (r *Registry) Snapshot() map[string]AgentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]AgentRecord, len(r.slots))
	for id, s := range r.slots {
		s.mu.Lock()
		out[id] = s.rec.Clone()
		s.mu.Unlock()
	}
	return out
}

// Flush writes a snapshot and returns the store error, if any.
func (r *Registry) Flush() error {
	if r.store == nil {
		return nil
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	return r.store.Save(r.Snapshot())
}

// persist saves synchronously. Failures are logged and counted but never
// returned: the in-memory state stays authoritative.
func (r *Registry) persist(op, id string) {
	if err := r.Flush(); err != nil {
		r.metrics.IncSnapshotFailures()
		logger.ErrorCF("registry", "Snapshot save failed", map[string]any{
			"op":    op,
			"agent": id,
			"error": err.Error(),
		})
	}
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty agent id", ErrInvalidArgument)
	}
	return nil
}
