package idnode

import (
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/timrc-git/dist-id-shore/logger"
	"github.com/timrc-git/dist-id-shore/store"
	"github.com/timrc-git/dist-id-shore/transport"
)

const (
	advanceRetries = 10
	advanceBackoff = 100 * time.Microsecond

	// receive bound used while polling inside the listen window
	listenPollWait = 100 * time.Millisecond
)

// IdNode generates unique 64-bit identifiers and coordinates with peer
// nodes over a multicast group. Each running IdNode must have a unique
// 10-bit node id.
//
// An IdNode is driven from a single goroutine: Initialize, GetID, and Close
// must not be called concurrently.
type IdNode struct {
	cfg   Config
	clock Clock

	nodeID    uint16
	minTimeMs uint64 // high-water mark timestamp
	deltaMs   uint64 // offset from the monotonic clock to the high-water mark
	counter   uint16 // ids issued since the last high-water advance

	state NodeState // packed node state for storage and transmission
	store *store.RecordStore
	tr    *transport.Transport

	initialized  bool
	hasCollision bool
}

// New creates an id node from cfg. The node is unusable until Initialize
// succeeds.
func New(cfg Config) (*IdNode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	return &IdNode{cfg: cfg, clock: clock}, nil
}

// HasCollision reports whether a peer with the same node id was detected.
func (n *IdNode) HasCollision() bool { return n.hasCollision }

// IsValid reports whether the node is fully initialized and able to issue.
func (n *IdNode) IsValid() bool { return n.initialized && !n.hasCollision }

// NodeID returns the node's 10-bit identifier.
func (n *IdNode) NodeID() uint16 { return n.nodeID }

// MinTimestamp returns the high-water mark timestamp.
func (n *IdNode) MinTimestamp() uint64 { return n.minTimeMs }

// LocalPort returns the port of the node's sending socket, or 0 before
// InitLocal.
func (n *IdNode) LocalPort() int {
	if n.tr == nil {
		return 0
	}
	return n.tr.LocalAddr().Port
}

// Initialize prepares the node for use: local setup, then the network
// listen window. On error the node is unusable.
func (n *IdNode) Initialize(nodeID uint16) error {
	if err := n.InitLocal(nodeID); err != nil {
		return err
	}
	return n.InitNetwork()
}

// InitLocal performs the fast local part of initialization: validates the
// node id, opens the record store and transport, multicasts the startup
// request, and seeds the high-water mark from the stored state.
func (n *IdNode) InitLocal(nodeID uint16) error {
	if nodeID >= MaxNodes {
		return fmt.Errorf("%w: %d >= %d", ErrInvalidNodeID, nodeID, MaxNodes)
	}
	n.releaseResources()
	n.nodeID = nodeID
	n.initialized = false
	n.hasCollision = false
	n.counter = 0

	path := filepath.Join(n.cfg.StateDir, fmt.Sprintf("%04d.state", nodeID))
	st, err := store.Open(path, MaxNodes, StateSize)
	if err != nil {
		return fmt.Errorf("node %04d: %w", nodeID, err)
	}

	rec, err := st.Read(int(nodeID))
	if err != nil {
		st.Close()
		return fmt.Errorf("node %04d: read own state: %w", nodeID, err)
	}
	state, err := UnmarshalNodeState(rec)
	if err != nil {
		st.Close()
		return fmt.Errorf("node %04d: decode own state: %w", nodeID, err)
	}
	state.ID = nodeID
	if state.Timestamp == 0 {
		// Never initialized, so write it back to establish the record.
		if err := st.Write(int(nodeID), state.Marshal()); err != nil {
			st.Close()
			return fmt.Errorf("node %04d: establish state: %w", nodeID, err)
		}
	}

	tr, err := transport.Open(transport.Config{Group: n.cfg.Group, TTL: n.cfg.TTL})
	if err != nil {
		st.Close()
		return fmt.Errorf("node %04d: %w", nodeID, err)
	}
	state.SetAddress(tr.LocalAddr())

	n.store = st
	n.tr = tr
	n.state = state

	// Startup: request (via multicast) info from peers.
	n.state.SetMode(ModeRequest)
	n.emitState(n.state)
	// Start off with the stored high-water timestamp (which might be 0).
	if err := n.adjustTimestamp(n.state.Timestamp); err != nil {
		return fmt.Errorf("node %04d: %w", nodeID, err)
	}
	return nil
}

// InitNetwork performs the slower, network-based part of initialization.
// It waits out the listen window processing peer replies, which raise the
// high-water mark and may reveal a redundant peer, then adopts the current
// wall time as the floor for issued timestamps and announces the node.
func (n *IdNode) InitNetwork() error {
	endTs := n.clock.WallMs() + uint64(n.cfg.ListenTime.Milliseconds())
	for n.clock.WallMs() < endTs {
		n.processMulticast(listenPollWait)
		if n.hasCollision {
			return fmt.Errorf("node %04d: %w", n.nodeID, ErrCollision)
		}
	}

	// Consider the current time the high-water mark.
	if endTs > n.minTimeMs {
		if err := n.adjustTimestamp(endTs); err != nil {
			return fmt.Errorf("node %04d: %w", n.nodeID, err)
		}
	}
	n.initialized = true

	// Announce that we're up.
	n.state.SetMode(ModeUp)
	n.emitState(n.state)
	return nil
}

// GetID issues one fresh identifier. Pending multicast traffic is drained
// first so peer announcements, high-water hints, and collisions are
// observed promptly.
func (n *IdNode) GetID() (uint64, error) {
	for n.processMulticast(0) {
	}
	if !n.IsValid() {
		if n.hasCollision {
			return 0, fmt.Errorf("node %04d: %w", n.nodeID, ErrCollision)
		}
		return 0, fmt.Errorf("node %04d: %w", n.nodeID, ErrNotValid)
	}

	if n.counter >= MaxCounter-1 || n.minTimeMs == 0 {
		if err := n.updateTimestamp(); err != nil {
			return 0, fmt.Errorf("node %04d: %w", n.nodeID, err)
		}
		n.counter = 0
	}
	id, err := ComposeID(n.minTimeMs, n.counter, n.nodeID)
	if err != nil {
		return 0, err
	}
	n.counter++
	return id, nil
}

// PeerStates returns the non-empty records the node holds about its peers,
// its own included.
func (n *IdNode) PeerStates() []NodeState {
	if n.store == nil {
		return nil
	}
	var peers []NodeState
	for i := 0; i < MaxNodes; i++ {
		rec, err := n.store.Read(i)
		if err != nil {
			continue
		}
		s, err := UnmarshalNodeState(rec)
		if err != nil || s.Timestamp == 0 {
			continue
		}
		peers = append(peers, s)
	}
	return peers
}

// Close releases the node's transport and store. The node can be
// re-initialized afterwards.
func (n *IdNode) Close() {
	n.releaseResources()
	n.initialized = false
}

func (n *IdNode) releaseResources() {
	if n.tr != nil {
		n.tr.Close()
		n.tr = nil
	}
	if n.store != nil {
		n.store.Close()
		n.store = nil
	}
}

// emitState sends the packed state out to peers.
func (n *IdNode) emitState(s NodeState) {
	if err := n.tr.Send(s.Marshal()); err != nil {
		logger.Errorf("node %04d: emit state: %v", n.nodeID, err)
	}
}

// processMulticast waits up to maxWait for one datagram and dispatches it.
// Returns false when nothing was received or the node is poisoned.
func (n *IdNode) processMulticast(maxWait time.Duration) bool {
	if n.hasCollision || n.tr == nil {
		return false
	}
	dg, ok := n.tr.Recv(maxWait)
	if !ok {
		return false
	}
	if len(dg.Payload) != StateSize {
		logger.Debugf("node %04d: dropping %d-byte datagram from %s", n.nodeID, len(dg.Payload), dg.From)
		return true
	}
	msg, err := UnmarshalNodeState(dg.Payload)
	if err != nil {
		logger.Debugf("node %04d: dropping datagram from %s: %v", n.nodeID, dg.From, err)
		return true
	}
	n.handleMessage(msg, dg.From)
	return true
}

// handleMessage dispatches one well-sized datagram through the
// three-message state machine.
func (n *IdNode) handleMessage(msg NodeState, from *net.UDPAddr) {
	switch {
	case msg.HasMode(ModeUp):
		n.handleUp(msg, from)
	case msg.HasMode(ModeRequest):
		n.handleRequest(msg, from)
	case msg.HasMode(ModeHighWater):
		n.handleHighWater(msg, from)
	default:
		logger.Debugf("node %04d: ignoring unknown mode %q from %s", n.nodeID, string(msg.Mode[:]), from)
	}
}

// handleUp processes a peer announcement. An announcement of our own id
// from a different port is a collision and poisons this node permanently.
func (n *IdNode) handleUp(msg NodeState, from *net.UDPAddr) {
	if msg.ID == n.nodeID {
		// Our bound local address is the any-address, so only the source
		// port is comparable.
		if from.Port != n.tr.LocalAddr().Port {
			logger.Errorf("node %04d: id collision detected (local port %d vs %s)",
				n.nodeID, n.tr.LocalAddr().Port, from)
			n.hasCollision = true
		}
		return
	}
	if msg.ID >= MaxNodes {
		return
	}
	// Keep the freshest view of the peer; UDP may deliver announcements out
	// of order.
	if rec, err := n.store.Read(int(msg.ID)); err == nil {
		if prev, err := UnmarshalNodeState(rec); err == nil && prev.Timestamp > msg.Timestamp {
			logger.Debugf("node %04d: stale UP for node %04d (%d < %d)",
				n.nodeID, msg.ID, msg.Timestamp, prev.Timestamp)
			return
		}
	}
	if err := n.store.Write(int(msg.ID), msg.Marshal()); err != nil {
		logger.Errorf("node %04d: store peer %04d: %v", n.nodeID, msg.ID, err)
	}
}

// handleRequest answers a peer's query with our stored view of the asked
// id: as an UP if we own that id ourselves, otherwise as a high-water hint.
func (n *IdNode) handleRequest(msg NodeState, from *net.UDPAddr) {
	logger.Debugf("node %04d: RQ for node %04d from %s", n.nodeID, msg.ID, from)
	if msg.ID >= MaxNodes {
		return
	}
	rec, err := n.store.Read(int(msg.ID))
	if err != nil {
		return
	}
	peer, err := UnmarshalNodeState(rec)
	if err != nil || peer.Timestamp == 0 {
		// Don't forward un-initialized entries.
		return
	}
	if n.initialized && msg.ID == n.nodeID {
		// That id is taken, by us.
		peer.SetMode(ModeUp)
	} else {
		peer.SetMode(ModeHighWater)
	}
	n.emitState(peer)
}

// handleHighWater adopts a peer-reported high-water mark for our own id.
func (n *IdNode) handleHighWater(msg NodeState, from *net.UDPAddr) {
	logger.Debugf("node %04d: HW for node %04d from %s (%d vs local %d)",
		n.nodeID, msg.ID, from, msg.Timestamp, n.minTimeMs)
	if msg.ID != n.nodeID {
		return
	}
	if msg.Timestamp > n.minTimeMs {
		if err := n.adjustTimestamp(msg.Timestamp); err != nil {
			logger.Errorf("node %04d: adopt high-water: %v", n.nodeID, err)
		}
	}
}

// adjustTimestamp sets a new high-water mark, calculating a new delta from
// the monotonic time source, and writes the record through to the store.
// The per-millisecond counter restarts with the new mark.
func (n *IdNode) adjustTimestamp(timestamp uint64) error {
	base := n.clock.MonoMs()
	n.minTimeMs = timestamp
	// Wraps when timestamp < base; the addition in checked reads undoes it.
	n.deltaMs = timestamp - base
	n.counter = 0
	n.state.Timestamp = timestamp
	if err := n.store.Write(int(n.nodeID), n.state.Marshal()); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// updateTimestampInner bumps the high-water mark to the current
// monotonic-derived reading, throttling while the clock has not advanced
// past the adopted mark.
func (n *IdNode) updateTimestampInner() error {
	for retry := 0; retry <= advanceRetries; retry++ {
		now := n.clock.MonoMs() + n.deltaMs
		switch {
		case now > n.minTimeMs:
			n.minTimeMs = now
			return nil
		case now < n.minTimeMs:
			// The monotonic source has not caught up with an adopted
			// high-water mark yet; same throttle as rate overflow.
			logger.Debugf("node %04d: clock %dms behind high-water", n.nodeID, n.minTimeMs-now)
		default:
			logger.Debugf("node %04d: request rate exceeded, throttling", n.nodeID)
		}
		time.Sleep(advanceBackoff)
	}
	return ErrRateLimited
}

// updateTimestamp bumps the high-water mark, persists it, and announces the
// new state to the group.
func (n *IdNode) updateTimestamp() error {
	if err := n.updateTimestampInner(); err != nil {
		return err
	}
	n.state.Timestamp = n.minTimeMs
	if err := n.store.Write(int(n.nodeID), n.state.Marshal()); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	n.state.SetMode(ModeUp)
	n.emitState(n.state)
	return nil
}
