// Package hub holds the agent registry, the per-agent command queues and the
// operator session gate.
package hub

import (
	"github.com/sipeed/picohub/pkg/logger"
)

// Hub is the process-scoped state handed to every transport handler.
type Hub struct {
	Registry *Registry
	Gate     *Gate
}

func New(registry *Registry, gate *Gate) *Hub {
	return &Hub{Registry: registry, Gate: gate}
}

// Close writes a final snapshot.
func (h *Hub) Close() error {
	if err := h.Registry.Flush(); err != nil {
		logger.ErrorCF("hub", "Final snapshot failed", map[string]any{"error": err.Error()})
		return err
	}
	logger.InfoCF("hub", "Final snapshot written", map[string]any{
		"agents": len(h.Registry.List()),
	})
	return nil
}
