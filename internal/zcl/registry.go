package zcl

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds the cluster definitions known to the node. Lookups
// return deep copies so callers can never mutate the registered set.
type Registry struct {
	mu       sync.RWMutex
	clusters map[uint16]*ClusterDef
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clusters: make(map[uint16]*ClusterDef),
		logger:   logger,
	}
}

// Register adds a cluster definition. Registering an ID twice merges
// the new attributes and commands into the existing definition.
func (r *Registry) Register(c ClusterDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clusters[c.ID]; ok {
		existing.Merge(&c)
		r.logger.Debug("cluster definition merged", "id", fmt.Sprintf("0x%04X", c.ID), "name", existing.Name)
		return
	}
	clone := c
	r.clusters[c.ID] = &clone
	r.logger.Debug("cluster registered", "id", fmt.Sprintf("0x%04X", c.ID), "name", c.Name)
}

// Get returns a cluster definition by ID, or nil if not registered.
func (r *Registry) Get(id uint16) *ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.clusters[id]
	if c == nil {
		return nil
	}
	return c.DeepCopy()
}

// Has reports whether a cluster ID is registered.
func (r *Registry) Has(id uint16) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clusters[id]
	return ok
}

// All returns every registered cluster definition.
func (r *Registry) All() []ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]ClusterDef, 0, len(r.clusters))
	for _, c := range r.clusters {
		result = append(result, *c.DeepCopy())
	}
	return result
}
