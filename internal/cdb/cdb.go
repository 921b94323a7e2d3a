// Package cdb implements the character-device bridge (CDB, spec §4.6):
// it exposes each VT session to legacy processes through a character
// device, one client per open, dispatching read/write/poll/ioctl into
// the session's VT operations (internal/vtmaster). The (major, minor)
// registry and the legacy-minor bitset live here as pure, dependency-
// free logic; the actual kernel-facing transport is isolated in
// fuse.go, which is the only file in this package that imports
// github.com/hanwen/go-fuse/v2's CUSE support.
package cdb

import (
	"sync"

	"seatrt/internal/errors"
)

// legacyMinorOffset keeps legacy per-VT minors from colliding with
// in-kernel TTY minors, per spec §4.6/§6.
const legacyMinorOffset = 16384

// TTYMajor is the kernel's tty character-device major number
// (Documentation/admin-guide/devices.txt). A Registry is published
// under this major so the legacy nodes it publishes present themselves
// as /dev/ttyN-style devices rather than some runtime-private major a
// legacy VT client wouldn't recognize.
const TTYMajor = 4

// MinorBitset allocates legacy per-VT minor numbers starting at
// legacyMinorOffset.
type MinorBitset struct {
	mu   sync.Mutex
	used map[int]bool
	next int
}

// NewMinorBitset creates an empty bitset.
func NewMinorBitset() *MinorBitset {
	return &MinorBitset{used: make(map[int]bool)}
}

// Allocate reserves and returns the next free legacy minor.
func (b *MinorBitset) Allocate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		cand := legacyMinorOffset + b.next
		b.next++
		if !b.used[cand] {
			b.used[cand] = true
			return cand
		}
	}
}

// Free releases a previously allocated minor so it can be reused.
func (b *MinorBitset) Free(minor int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.used, minor)
}

// VTOps is the VT-session-facing half of one character-device node:
// the operations a client's ioctl/read/write/poll ultimately dispatch
// into. internal/vtmaster.Handle plus a thin session adapter implements
// this. cdb never imports internal/seat, so it stays free of import
// cycles with the package that owns the scheduler; its session adapter
// (session.go) does import internal/vtmaster.
type VTOps interface {
	// Ioctl dispatches one VT/KD ioctl by kernel request number; in and
	// out carry the raw argument bytes exactly as the kernel ioctl ABI
	// would, already sized by the caller for the request in question.
	Ioctl(req uint32, in []byte) (out []byte, err error)
	// PollMask reports the current poll(2) revents for this VT.
	PollMask() uint32
	// Read/Write implement the character device's read/write syscalls.
	// VT sessions in this runtime carry no input stream on the device
	// fd itself (spec §4.5); Read normally returns zero bytes
	// immediately unless a VTOps implementation defines otherwise.
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
}

// Node is one published character-device node: either the per-seat
// control node or a legacy per-VT node. Each Open call creates a new
// Client bound to the same VTOps.
type Node struct {
	mu       sync.Mutex
	name     string
	major    uint32
	minor    uint32
	ops      VTOps
	clients  map[uint64]*Client
	nextID   uint64
	pollWake func() // rings the doorbell so a pending poll() wakes up
}

// NewNode creates a published node bound to ops. pollWake, if non-nil,
// is invoked whenever this node's poll mask may have changed, so a
// FUSE/CUSE layer blocked in Poll can be woken.
func NewNode(name string, major, minor uint32, ops VTOps, pollWake func()) *Node {
	return &Node{name: name, major: major, minor: minor, ops: ops, clients: make(map[uint64]*Client), pollWake: pollWake}
}

func (n *Node) Major() uint32 { return n.major }
func (n *Node) Minor() uint32 { return n.minor }
func (n *Node) Name() string  { return n.name }

// Open creates a new Client bound to this node's VTOps.
func (n *Node) Open() *Client {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	c := &Client{id: n.nextID, node: n}
	n.clients[c.id] = c
	return c
}

// KillClient severs a client's binding immediately, as spec §4.6
// requires kill-client to do; any further operation on it fails with
// HangUp.
func (n *Node) KillClient(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if c, ok := n.clients[id]; ok {
		c.killed = true
		delete(n.clients, id)
	}
}

// SetPollWake rebinds the doorbell NotifyPollChange rings. A transport
// mounting this node calls this once it exists, so the doorbell reaches
// the actual blocked poll(2) rather than whatever (possibly nil) closure
// the node was constructed with.
func (n *Node) SetPollWake(f func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pollWake = f
}

// NotifyPollChange wakes anything blocked waiting on this node's poll
// mask, e.g. after a VT_RELDISP outcome changes what revents Poll would
// report.
func (n *Node) NotifyPollChange() {
	n.mu.Lock()
	wake := n.pollWake
	n.mu.Unlock()
	if wake != nil {
		wake()
	}
}

// Client is one open() on a Node, bound to a single VT session for its
// entire lifetime.
type Client struct {
	id     uint64
	node   *Node
	killed bool
}

func (c *Client) ID() uint64 { return c.id }

func (c *Client) checkAlive() error {
	if c.killed {
		return errors.New(errors.HangUp, "client was killed")
	}
	return nil
}

// Ioctl dispatches into the bound VTOps.
func (c *Client) Ioctl(req uint32, in []byte) ([]byte, error) {
	if err := c.checkAlive(); err != nil {
		return nil, err
	}
	return c.node.ops.Ioctl(req, in)
}

// Poll returns the bound VTOps's current revents.
func (c *Client) Poll() uint32 {
	if c.killed {
		return pollHangUp
	}
	return c.node.ops.PollMask()
}

// Read/Write forward to the bound VTOps.
func (c *Client) Read(buf []byte) (int, error) {
	if err := c.checkAlive(); err != nil {
		return 0, err
	}
	return c.node.ops.Read(buf)
}

func (c *Client) Write(buf []byte) (int, error) {
	if err := c.checkAlive(); err != nil {
		return 0, err
	}
	return c.node.ops.Write(buf)
}

// Release closes the client, removing it from its node.
func (c *Client) Release() {
	c.node.mu.Lock()
	defer c.node.mu.Unlock()
	delete(c.node.clients, c.id)
}

const pollHangUp = 1 << 2 // matches vtmaster.PollHangUp's bit position
