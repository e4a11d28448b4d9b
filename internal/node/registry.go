package node

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the authoritative in-memory set of nodes and their sensors.
//
// The registry owns every Node and Sensor. Readers get deep copies; writers
// either call one of the single-step methods or run a multi-step change
// through Update, which holds the write lock for its whole duration.
//
// All public methods are thread-safe.
type Registry struct {
	mu     sync.RWMutex
	nodes  map[int]*Node
	logger Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		nodes:  make(map[int]*Node),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// GetNode returns a copy of the node, or ErrNodeNotFound.
func (r *Registry) GetNode(id int) (*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n.DeepCopy(), nil
}

// GetSensor returns a copy of the sensor, or ErrNodeNotFound / ErrSensorNotFound.
func (r *Registry) GetSensor(nodeID, sensorID int) (*Sensor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[nodeID]
	if !ok {
		return nil, ErrNodeNotFound
	}
	s, ok := n.Sensor(sensorID)
	if !ok {
		return nil, ErrSensorNotFound
	}
	return s.DeepCopy(), nil
}

// Nodes returns copies of all nodes ordered by id.
func (r *Registry) Nodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of nodes and the total number of sensors.
func (r *Registry) Count() (nodes, sensors int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.nodes {
		sensors += len(n.Sensors)
	}
	return len(r.nodes), sensors
}

// FreeNodeID returns the lowest id in 1..MaxAssignableID not in use,
// or BroadcastID when every id is taken.
func (r *Registry) FreeNodeID() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.freeNodeID()
}

func (r *Registry) freeNodeID() int {
	for id := 1; id <= MaxAssignableID; id++ {
		if _, taken := r.nodes[id]; !taken {
			return id
		}
	}
	return BroadcastID
}

// AddNode stores a copy of n. It returns ErrNodeExists if the id is known,
// which lets loaders call it repeatedly for the same ids.
func (r *Registry) AddNode(n *Node) error {
	if n == nil || !ValidNodeID(n.ID) {
		return ErrInvalidNodeID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %d", ErrNodeExists, n.ID)
	}

	cpy := n.DeepCopy()
	for _, s := range cpy.Sensors {
		s.NodeID = cpy.ID
		if s.Data == nil {
			s.Data = make(map[DataType]SensorData)
		}
	}
	r.nodes[cpy.ID] = cpy

	r.logger.Debug("node added", "node_id", cpy.ID, "sensors", len(cpy.Sensors))
	return nil
}

// DeleteNode removes a node and its sensors.
func (r *Registry) DeleteNode(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[id]; !ok {
		return ErrNodeNotFound
	}
	delete(r.nodes, id)

	r.logger.Info("node deleted", "node_id", id)
	return nil
}

// Clear drops every node and returns how many were removed.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := len(r.nodes)
	r.nodes = make(map[int]*Node)

	r.logger.Info("registry cleared", "nodes", count)
	return count
}

// UpdateSettings copies the user-editable fields of settings onto the live node:
// the node name, and for each listed sensor its description, history policy,
// invert flag and remap range. Identity, sensor type and stored data are left
// alone. Sensors in settings that the node does not have are ignored.
func (r *Registry) UpdateSettings(settings *Node) error {
	if settings == nil {
		return ErrInvalidNodeID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[settings.ID]
	if !ok {
		return ErrNodeNotFound
	}

	n.Name = settings.Name
	for _, in := range settings.Sensors {
		s, ok := n.Sensor(in.ID)
		if !ok {
			continue
		}
		s.Description = in.Description
		s.History = in.History
		s.Invert = in.Invert
		s.Remap = in.Remap
	}
	return nil
}

// SetNodeExternalID records the persistence key of a node.
func (r *Registry) SetNodeExternalID(id int, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	n.ExternalID = externalID
	return nil
}

// SetSensorExternalID records the persistence key of a sensor.
func (r *Registry) SetSensorExternalID(nodeID, sensorID int, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[nodeID]
	if !ok {
		return ErrNodeNotFound
	}
	s, ok := n.Sensor(sensorID)
	if !ok {
		return ErrSensorNotFound
	}
	s.ExternalID = externalID
	return nil
}

// Update runs fn with exclusive access to the registry. The Tx and any
// pointers obtained from it must not be used after fn returns.
func (r *Registry) Update(fn func(tx *Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&Tx{r: r})
}

// Tx gives live access to registry entities inside Update.
type Tx struct {
	r *Registry
}

// Node returns the live node with the given id.
func (tx *Tx) Node(id int) (*Node, bool) {
	n, ok := tx.r.nodes[id]
	return n, ok
}

// CreateNode inserts an empty node seen at the given time and returns it.
// The caller must have checked that the id is valid and unused.
func (tx *Tx) CreateNode(id int, seen time.Time) *Node {
	n := &Node{ID: id, LastSeen: seen}
	tx.r.nodes[id] = n
	return n
}

// FreeNodeID is Registry.FreeNodeID for use inside Update.
func (tx *Tx) FreeNodeID() int {
	return tx.r.freeNodeID()
}
