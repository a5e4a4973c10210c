// SPDX-License-Identifier: MIT
package platform

import "sync"

// NodeCore is an embeddable implementation of the topology half of Node.
// It tracks outgoing edges under a mutex; parameter handling stays with
// the embedding node type.
type NodeCore struct {
	mu   sync.Mutex
	outs []Node
}

// Connect records an outgoing edge to dst. Duplicate edges to the same
// destination collapse into one.
func (n *NodeCore) Connect(dst Node) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, existing := range n.outs {
		if existing == dst {
			return nil
		}
	}
	n.outs = append(n.outs, dst)
	return nil
}

// Disconnect drops every outgoing edge.
func (n *NodeCore) Disconnect() {
	n.mu.Lock()
	n.outs = nil
	n.mu.Unlock()
}

// Outputs returns the current outgoing edge count.
func (n *NodeCore) Outputs() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.outs)
}

// Targets returns a copy of the outgoing edge list. Used by topology
// checks and tests; the hot path never calls it.
func (n *NodeCore) Targets() []Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	targets := make([]Node, len(n.outs))
	copy(targets, n.outs)
	return targets
}

// ConnectedTo reports whether this node has an edge to dst.
func (n *NodeCore) ConnectedTo(dst Node) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, existing := range n.outs {
		if existing == dst {
			return true
		}
	}
	return false
}
