package cdb

import (
	"strconv"
	"sync"

	"seatrt/internal/errors"
)

// Registry owns every published character-device node for one seat: the
// per-seat control node plus one legacy node per registered VT, and the
// legacy-minor bitset they allocate from.
type Registry struct {
	mu      sync.Mutex
	major   uint32
	minors  *MinorBitset
	control *Node
	byVT    map[int]*Node
}

// NewRegistry creates an empty registry. major is the character-device
// major number legacy nodes are published under; spec §4.6 requires it
// to match the in-kernel TTY major so existing /dev/ttyN-style clients
// keep working against these nodes.
func NewRegistry(major uint32) *Registry {
	return &Registry{major: major, minors: NewMinorBitset(), byVT: make(map[int]*Node)}
}

// SetControl publishes the seat's control node, the one node a session
// manager itself opens to issue seat-wide commands rather than VT
// ioctls.
func (r *Registry) SetControl(ops VTOps, pollWake func()) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.control = NewNode("seat-control", r.major, 0, ops, pollWake)
	return r.control
}

// Control returns the previously published control node, or nil.
func (r *Registry) Control() *Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.control
}

// RegisterVT publishes a legacy node for vtNum bound to ops, allocating
// a minor from the bitset.
func (r *Registry) RegisterVT(vtNum int, ops VTOps, pollWake func()) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	minor := r.minors.Allocate()
	n := NewNode(vtName(vtNum), r.major, uint32(minor), ops, pollWake)
	r.byVT[vtNum] = n
	return n
}

// UnregisterVT removes vtNum's node and frees its minor.
func (r *Registry) UnregisterVT(vtNum int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byVT[vtNum]
	if !ok {
		return
	}
	r.minors.Free(int(n.Minor()))
	delete(r.byVT, vtNum)
}

// Lookup finds the node bound to vtNum.
func (r *Registry) Lookup(vtNum int) (*Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byVT[vtNum]
	if !ok {
		return nil, errors.Errorf(errors.NotFound, "no node for vt %d", vtNum)
	}
	return n, nil
}

// ByMinor finds the node published at the given minor, including the
// control node at minor 0.
func (r *Registry) ByMinor(minor uint32) (*Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.control != nil && minor == r.control.Minor() {
		return r.control, nil
	}
	for _, n := range r.byVT {
		if n.Minor() == minor {
			return n, nil
		}
	}
	return nil, errors.Errorf(errors.NotFound, "no node at minor %d", minor)
}

func vtName(vtNum int) string {
	if vtNum < 0 {
		return "vt-fake" + strconv.Itoa(-vtNum)
	}
	return "tty" + strconv.Itoa(vtNum)
}
