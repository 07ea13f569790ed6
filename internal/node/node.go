// Package node implements the lamp's cluster/attribute framework: the
// attribute store with change notification, cluster command dispatch,
// startup-value semantics and the event bus the front-ends consume.
package node

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lampd/internal/store"
	"lampd/internal/zcl"
	"lampd/internal/zcl/clusters"
)

var (
	ErrUnsupportedCluster   = errors.New("unsupported cluster")
	ErrUnsupportedAttribute = errors.New("unsupported attribute")
	ErrUnsupportedCommand   = errors.New("unsupported command")
	ErrReadOnly             = errors.New("attribute is read only")
	ErrInvalidValue         = errors.New("invalid value")
	ErrInvalidPayload       = errors.New("invalid command payload")
)

// StatusFor maps a dispatch error to its ZCL status code.
func StatusFor(err error) zcl.Status {
	switch {
	case err == nil:
		return zcl.StatusSuccess
	case errors.Is(err, ErrUnsupportedCluster):
		return zcl.StatusUnsupportedCluster
	case errors.Is(err, ErrUnsupportedAttribute):
		return zcl.StatusUnsupportedAttr
	case errors.Is(err, ErrUnsupportedCommand):
		return zcl.StatusUnsupportedCommand
	case errors.Is(err, ErrReadOnly):
		return zcl.StatusReadOnly
	case errors.Is(err, ErrInvalidValue), errors.Is(err, ErrInvalidPayload):
		return zcl.StatusInvalidValue
	}
	return zcl.StatusFailure
}

// Info is the static identity of this node.
type Info struct {
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SWVersion    string `json:"sw_version"`
	UniqueID     string `json:"unique_id"`
}

// ChangeHook receives every attribute change, regardless of source.
// Hooks run synchronously on the writer's goroutine.
type ChangeHook func(endpoint uint8, cluster, attr uint16, value interface{})

// AttributeValue is one attribute with its current value, as exposed
// on the HTTP API.
type AttributeValue struct {
	Endpoint    uint8       `json:"endpoint"`
	Cluster     uint16      `json:"cluster"`
	ClusterName string      `json:"cluster_name"`
	ID          uint16      `json:"id"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Value       interface{} `json:"value"`
	Writable    bool        `json:"writable"`
}

type attrKey struct {
	endpoint uint8
	cluster  uint16
	attr     uint16
}

// Node owns the attribute values of all endpoints.
type Node struct {
	info      Info
	registry  *zcl.Registry
	store     store.Store
	events    *EventBus
	logger    *slog.Logger
	endpoints []Endpoint

	mu    sync.RWMutex
	attrs map[attrKey]interface{}
	hooks []ChangeHook

	startedAt time.Time
}

// New creates a node over the given endpoints. Start must be called
// before use.
func New(info Info, endpoints []Endpoint, registry *zcl.Registry, st store.Store, events *EventBus, logger *slog.Logger) *Node {
	return &Node{
		info:      info,
		registry:  registry,
		store:     st,
		events:    events,
		logger:    logger.With("component", "node"),
		endpoints: endpoints,
		attrs:     make(map[attrKey]interface{}),
	}
}

// Start seeds attribute defaults, restores persisted values and applies
// the StartUp* semantics.
func (n *Node) Start() error {
	n.startedAt = time.Now()
	n.seedDefaults()
	if err := n.restore(); err != nil {
		return fmt.Errorf("restore attributes: %w", err)
	}
	n.seedInfo()
	n.applyStartUp()
	n.logger.Info("node started", "endpoints", len(n.endpoints), "unique_id", n.info.UniqueID)
	return nil
}

func (n *Node) Info() Info                { return n.info }
func (n *Node) Endpoints() []Endpoint     { return n.endpoints }
func (n *Node) Registry() *zcl.Registry   { return n.registry }
func (n *Node) Events() *EventBus         { return n.events }
func (n *Node) Uptime() time.Duration     { return time.Since(n.startedAt) }

func (n *Node) endpoint(id uint8) *Endpoint {
	for i := range n.endpoints {
		if n.endpoints[i].ID == id {
			return &n.endpoints[i]
		}
	}
	return nil
}

// OnAttributeChange registers a change hook. Register before Start.
func (n *Node) OnAttributeChange(hook ChangeHook) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hooks = append(n.hooks, hook)
}

// WriteAttribute is the external write path: it enforces the
// attribute's writability. Sources are tags like "web" or "lua".
func (n *Node) WriteAttribute(endpoint uint8, cluster, attr uint16, value interface{}, source string) error {
	return n.write(endpoint, cluster, attr, value, source, false)
}

// SetAttribute is the internal write path used by command dispatch and
// driver state reports; it may touch read-only attributes.
func (n *Node) SetAttribute(endpoint uint8, cluster, attr uint16, value interface{}, source string) error {
	return n.write(endpoint, cluster, attr, value, source, true)
}

func (n *Node) write(endpoint uint8, cluster, attr uint16, value interface{}, source string, internal bool) error {
	ep := n.endpoint(endpoint)
	if ep == nil || !ep.HasCluster(cluster) {
		return fmt.Errorf("endpoint %d cluster 0x%04X: %w", endpoint, cluster, ErrUnsupportedCluster)
	}
	cdef := n.registry.Get(cluster)
	if cdef == nil {
		return fmt.Errorf("cluster 0x%04X: %w", cluster, ErrUnsupportedCluster)
	}
	adef := cdef.FindAttribute(attr)
	if adef == nil {
		return fmt.Errorf("cluster 0x%04X attribute 0x%04X: %w", cluster, attr, ErrUnsupportedAttribute)
	}
	if !internal && !adef.IsWritable() {
		return fmt.Errorf("%s/%s: %w", cdef.Name, adef.Name, ErrReadOnly)
	}

	norm, err := zcl.Normalize(adef.Type, value)
	if err != nil {
		return fmt.Errorf("%s/%s: %w: %v", cdef.Name, adef.Name, ErrInvalidValue, err)
	}

	n.mu.Lock()
	key := attrKey{endpoint, cluster, attr}
	if old, ok := n.attrs[key]; ok && old == norm {
		n.mu.Unlock()
		return nil
	}
	n.attrs[key] = norm
	hooks := make([]ChangeHook, len(n.hooks))
	copy(hooks, n.hooks)
	n.mu.Unlock()

	if adef.Persist {
		if data, encErr := zcl.EncodeValue(adef.Type, norm); encErr == nil {
			if err := n.store.SaveAttribute(endpoint, cluster, attr, data); err != nil {
				n.logger.Error("persist attribute", "attribute", adef.Name, "error", err)
			}
		}
	}

	n.logger.Debug("attribute changed",
		"cluster", fmt.Sprintf("0x%04X", cluster),
		"attribute", adef.Name,
		"value", norm,
		"source", source)

	for _, hook := range hooks {
		hook(endpoint, cluster, attr, norm)
	}
	n.events.Emit(Event{Type: EventAttributeChanged, Data: map[string]interface{}{
		"endpoint":  endpoint,
		"cluster":   cluster,
		"name":      adef.Name,
		"attribute": attr,
		"value":     norm,
		"source":    source,
	}})
	return nil
}

// ReadAttribute returns the current value of an attribute.
func (n *Node) ReadAttribute(endpoint uint8, cluster, attr uint16) (interface{}, error) {
	ep := n.endpoint(endpoint)
	if ep == nil || !ep.HasCluster(cluster) {
		return nil, fmt.Errorf("endpoint %d cluster 0x%04X: %w", endpoint, cluster, ErrUnsupportedCluster)
	}
	cdef := n.registry.Get(cluster)
	if cdef == nil {
		return nil, fmt.Errorf("cluster 0x%04X: %w", cluster, ErrUnsupportedCluster)
	}
	if cdef.FindAttribute(attr) == nil {
		return nil, fmt.Errorf("cluster 0x%04X attribute 0x%04X: %w", cluster, attr, ErrUnsupportedAttribute)
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.attrs[attrKey{endpoint, cluster, attr}], nil
}

// Attributes returns a snapshot of every attribute on an endpoint, in
// cluster definition order.
func (n *Node) Attributes(endpoint uint8) []AttributeValue {
	ep := n.endpoint(endpoint)
	if ep == nil {
		return nil
	}
	var out []AttributeValue
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, cid := range ep.Clusters {
		cdef := n.registry.Get(cid)
		if cdef == nil {
			continue
		}
		for _, adef := range cdef.Attributes {
			out = append(out, AttributeValue{
				Endpoint:    endpoint,
				Cluster:     cid,
				ClusterName: cdef.Name,
				ID:          adef.ID,
				Name:        adef.Name,
				Type:        zcl.TypeName(adef.Type),
				Value:       n.attrs[attrKey{endpoint, cid, adef.ID}],
				Writable:    adef.IsWritable(),
			})
		}
	}
	return out
}

// seedDefaults fills the in-memory table from the cluster definitions.
// No events fire during seeding.
func (n *Node) seedDefaults() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ep := range n.endpoints {
		for _, cid := range ep.Clusters {
			cdef := n.registry.Get(cid)
			if cdef == nil {
				n.logger.Warn("endpoint references unregistered cluster", "cluster", fmt.Sprintf("0x%04X", cid))
				continue
			}
			for _, adef := range cdef.Attributes {
				if adef.Default == nil {
					continue
				}
				norm, err := zcl.Normalize(adef.Type, adef.Default)
				if err != nil {
					n.logger.Error("bad attribute default", "attribute", adef.Name, "error", err)
					continue
				}
				n.attrs[attrKey{ep.ID, cid, adef.ID}] = norm
			}
		}
	}
}

// restore loads persisted attribute values over the defaults.
func (n *Node) restore() error {
	restored := 0
	err := n.store.ListAttributes(func(endpoint uint8, cluster, attr uint16, data []byte) error {
		cdef := n.registry.Get(cluster)
		if cdef == nil {
			return nil // stale entry from an older cluster set
		}
		adef := cdef.FindAttribute(attr)
		if adef == nil || !adef.Persist {
			return nil
		}
		val, _, err := zcl.DecodeValue(adef.Type, data)
		if err != nil {
			n.logger.Warn("discarding undecodable persisted attribute", "attribute", adef.Name, "error", err)
			return nil
		}
		n.mu.Lock()
		n.attrs[attrKey{endpoint, cluster, attr}] = val
		n.mu.Unlock()
		restored++
		return nil
	})
	if err != nil {
		return err
	}
	if restored > 0 {
		n.logger.Info("attributes restored", "count", restored)
	}
	return nil
}

// seedInfo pushes the node identity into the Basic cluster.
func (n *Node) seedInfo() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ep := range n.endpoints {
		if !ep.HasCluster(clusters.IDBasic) {
			continue
		}
		n.attrs[attrKey{ep.ID, clusters.IDBasic, clusters.AttrManufacturerName}] = n.info.Manufacturer
		n.attrs[attrKey{ep.ID, clusters.IDBasic, clusters.AttrModelIdentifier}] = n.info.Model
		n.attrs[attrKey{ep.ID, clusters.IDBasic, clusters.AttrSWBuildID}] = n.info.SWVersion
		n.attrs[attrKey{ep.ID, clusters.IDBasic, clusters.AttrSerialNumber}] = n.info.UniqueID
	}
}
