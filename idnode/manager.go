package idnode

import (
	"fmt"
	"sync"
)

// NodeInfo is a point-in-time snapshot of one managed node for display.
type NodeInfo struct {
	ID        uint16
	Port      int
	HighWater uint64
	Valid     bool
	Collision bool
}

// Manager owns a set of id nodes in one process, for the interactive
// monitor and tests. All node access is serialized through the manager's
// lock, which keeps the single-goroutine contract of IdNode.
type Manager struct {
	cfg    Config
	nodes  []*IdNode // maintain order with slice
	nextID uint16    // next node id to try for auto-created nodes
	mu     sync.Mutex
}

// NewManager creates a manager that builds nodes from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:    cfg,
		nextID: 1, // start auto-assigned node ids at 1
	}
}

// CreateNode creates and initializes a node on the next unused node id.
func (m *Manager) CreateNode() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	for m.inUse(id) {
		id++
	}
	if id >= MaxNodes {
		return 0, fmt.Errorf("%w: no free node id", ErrInvalidNodeID)
	}

	node, err := New(m.cfg)
	if err != nil {
		return 0, fmt.Errorf("create node: %w", err)
	}
	if err := node.Initialize(id); err != nil {
		node.Close()
		return 0, fmt.Errorf("initialize node %04d: %w", id, err)
	}

	m.nodes = append(m.nodes, node)
	m.nextID = id + 1
	return id, nil
}

// DeleteNode stops and removes the node at index in the list.
func (m *Manager) DeleteNode(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.nodes) {
		return fmt.Errorf("invalid node index: %d", index)
	}
	node := m.nodes[index]
	m.nodes = append(m.nodes[:index], m.nodes[index+1:]...)
	node.Close()
	return nil
}

// IssueBurst requests count ids from the node at index and returns the
// first and last issued values.
func (m *Manager) IssueBurst(index, count int) (first, last uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.nodes) {
		return 0, 0, fmt.Errorf("invalid node index: %d", index)
	}
	node := m.nodes[index]
	for i := 0; i < count; i++ {
		id, err := node.GetID()
		if err != nil {
			return first, last, err
		}
		if i == 0 {
			first = id
		}
		last = id
	}
	return first, last, nil
}

// Snapshots returns display snapshots of all nodes, in creation order.
func (m *Manager) Snapshots() []NodeInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]NodeInfo, len(m.nodes))
	for i, n := range m.nodes {
		infos[i] = NodeInfo{
			ID:        n.NodeID(),
			Port:      n.LocalPort(),
			HighWater: n.MinTimestamp(),
			Valid:     n.IsValid(),
			Collision: n.HasCollision(),
		}
	}
	return infos
}

// PeerStates returns the peer records held by the node at index.
func (m *Manager) PeerStates(index int) []NodeState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.nodes) {
		return nil
	}
	return m.nodes[index].PeerStates()
}

// Count returns the number of managed nodes.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// StopAll closes every managed node.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.nodes {
		n.Close()
	}
	m.nodes = nil
}

func (m *Manager) inUse(id uint16) bool {
	for _, n := range m.nodes {
		if n.NodeID() == id {
			return true
		}
	}
	return false
}
