package hub

import (
	"fmt"
	"strings"
)

// Enqueue appends command to the agent's pending queue. Unknown ids get an
// empty record so commands can be queued before the agent first registers.
func (r *Registry) Enqueue(id, command string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("%w: empty command", ErrInvalidArgument)
	}

	s := r.lookupOrCreate(id)
	s.mu.Lock()
	s.rec.Pending = append(s.rec.Pending, command)
	s.mu.Unlock()

	r.metrics.AddEnqueued(1)
	r.persist("enqueue", id)
	return nil
}

// Drain removes and returns every pending command for id. Each command is
// returned by exactly one Drain call. Unknown ids yield an empty slice and
// no record is created.
func (r *Registry) Drain(id string) []string {
	s := r.lookup(id)
	if s == nil {
		return []string{}
	}

	s.mu.Lock()
	cmds := s.rec.Pending
	s.rec.Pending = []string{}
	s.mu.Unlock()

	if len(cmds) == 0 {
		return []string{}
	}

	r.metrics.AddDelivered(len(cmds))
	r.persist("drain", id)
	return cmds
}

// Pending returns a copy of the queue without draining it.
func (r *Registry) Pending(id string) ([]string, error) {
	rec, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("pending %q: %w", id, ErrNotFound)
	}
	return rec.Pending, nil
}
