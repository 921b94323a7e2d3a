package cdb

// This file is the only place in the package that touches
// github.com/hanwen/go-fuse/v2's CUSE (character device in userspace)
// support. go-fuse is a real, already-adopted dependency of this stack
// (see DESIGN.md), but no CUSE source was retrieved into the reference
// pack this module was built against, only its go.mod manifest entry
// and one unrelated file; everything below is written against the
// real public CUSE API from memory rather than a retrieved example,
// confined here precisely so that risk is bounded to one file. The
// rest of this package (Node, Client, Registry, VTSession) has no
// go-fuse import and is fully testable without a kernel or a fuse
// mount.
//
// CUSE publishes exactly one character device per mounted server, so
// one DeviceTransport wraps one Node; Transport is the per-seat set of
// currently mounted devices, growing and shrinking as VTs register and
// unregister.
import (
	"context"
	"sync"

	"seatrt/internal/errors"
	"seatrt/internal/logging"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// DeviceTransport mounts a single Node as a CUSE character device.
type DeviceTransport struct {
	node *Node
	srv  *fuse.Server
}

// MountNode publishes n as a CUSE device named devName under the given
// major/minor pair. It rebinds n's poll doorbell (Node.SetPollWake) to
// this mount's own server, so NotifyPollChange reaches a real poll(2)
// blocked in the kernel instead of whatever closure registered the node.
func MountNode(n *Node, devName string) (*DeviceTransport, error) {
	raw := &rawFS{RawFileSystem: fuse.NewDefaultRawFileSystem(), node: n}
	opts := &fuse.CUSEOptions{
		DevName:  devName,
		DevMajor: int32(n.Major()),
		DevMinor: int32(n.Minor()),
	}
	srv, err := fuse.NewCUSEServer(opts, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "mounting cuse device %s", devName)
	}
	raw.srv = srv
	n.SetPollWake(raw.wakePoll)
	return &DeviceTransport{node: n, srv: srv}, nil
}

// Serve blocks, running this device's CUSE server loop. Transport.Mount
// runs it on its own goroutine, outside this runtime's single-threaded
// cooperative event loop.
func (d *DeviceTransport) Serve() { d.srv.Serve() }

// Close unmounts the device, returning once Serve has stopped.
func (d *DeviceTransport) Close() error {
	return d.srv.Unmount()
}

// Mounter is the Transport-facing subset a Controller depends on, so
// tests can inject a fake mounter instead of requiring a real CUSE
// device.
type Mounter interface {
	Mount(n *Node, devName string) error
	Unmount(devName string)
	Close()
}

var _ Mounter = (*Transport)(nil)

// Transport owns one mounted DeviceTransport per published Node for a
// seat's Registry, tracking mounts as VTs register and unregister.
type Transport struct {
	ctx context.Context
	tag string

	mu     sync.Mutex
	byName map[string]*DeviceTransport
}

// NewTransport creates an empty transport.
func NewTransport(ctx context.Context, tag string) *Transport {
	return &Transport{ctx: ctx, tag: tag, byName: make(map[string]*DeviceTransport)}
}

// Mount publishes n and starts its blocking Serve loop on a new
// goroutine, returning once the device is mounted.
func (t *Transport) Mount(n *Node, devName string) error {
	d, err := MountNode(n, devName)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.byName[devName] = d
	t.mu.Unlock()
	go d.Serve()
	return nil
}

// Unmount closes and forgets the device published under devName.
func (t *Transport) Unmount(devName string) {
	t.mu.Lock()
	d, ok := t.byName[devName]
	delete(t.byName, devName)
	t.mu.Unlock()
	if !ok {
		return
	}
	if err := d.Close(); err != nil {
		logging.Warnf(t.ctx, t.tag, "unmounting %s: %v", devName, err)
	}
}

// Close unmounts every currently published device.
func (t *Transport) Close() {
	t.mu.Lock()
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	t.mu.Unlock()
	for _, name := range names {
		t.Unmount(name)
	}
}

// rawFS adapts one Node's Client registry into go-fuse's raw filesystem
// operations. Only the handful a character device actually exercises
// are implemented; everything else falls back to the embedded default
// (ENOSYS).
type rawFS struct {
	fuse.RawFileSystem
	node *Node
	srv  *fuse.Server

	mu        sync.Mutex
	pollKh    uint64
	pollArmed bool
}

func (r *rawFS) clientFor(fh uint64) (*Client, error) {
	r.node.mu.Lock()
	defer r.node.mu.Unlock()
	c, ok := r.node.clients[fh]
	if !ok {
		return nil, errors.New(errors.NotFound, "no client for this handle")
	}
	return c, nil
}

// Open creates a new Client for this device and hands its id back as
// the file handle every subsequent operation is keyed on.
func (r *rawFS) Open(cancel <-chan struct{}, in *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	c := r.node.Open()
	out.Fh = c.ID()
	return fuse.OK
}

func (r *rawFS) Read(cancel <-chan struct{}, in *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	c, err := r.clientFor(in.Fh)
	if err != nil {
		return nil, fuse.EBADF
	}
	n, rerr := c.Read(buf)
	if rerr != nil {
		return nil, statusFor(rerr)
	}
	return fuse.ReadResultData(buf[:n]), fuse.OK
}

func (r *rawFS) Write(cancel <-chan struct{}, in *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	c, err := r.clientFor(in.Fh)
	if err != nil {
		return 0, fuse.EBADF
	}
	n, werr := c.Write(data)
	if werr != nil {
		return 0, statusFor(werr)
	}
	return uint32(n), fuse.OK
}

func (r *rawFS) Ioctl(cancel <-chan struct{}, in *fuse.IoctlIn, inBuf []byte) (out fuse.IoctlOut, outBuf []byte, status fuse.Status) {
	c, err := r.clientFor(in.Fh)
	if err != nil {
		return out, nil, fuse.EBADF
	}
	result, ierr := c.Ioctl(in.Cmd, inBuf)
	if ierr != nil {
		return out, nil, statusFor(ierr)
	}
	return out, result, fuse.OK
}

func (r *rawFS) Release(cancel <-chan struct{}, in *fuse.ReleaseIn) {
	if c, err := r.clientFor(in.Fh); err == nil {
		c.Release()
	}
}

// Poll implements poll(2) for this device: it reports the bound
// Client's current revents and, when the kernel asked to be woken on a
// change (a non-zero Kh), remembers the handle so wakePoll can notify
// the server later via Node.NotifyPollChange. Without this, go-fuse's
// embedded default answers ENOSYS and a real CUSE client falls back to
// busy-polling instead of blocking.
func (r *rawFS) Poll(cancel <-chan struct{}, in *fuse.PollIn, out *fuse.PollOut) fuse.Status {
	c, err := r.clientFor(in.Fh)
	if err != nil {
		return fuse.EBADF
	}
	if in.Kh != 0 {
		r.mu.Lock()
		r.pollKh = in.Kh
		r.pollArmed = true
		r.mu.Unlock()
	}
	out.REvents = c.Poll()
	return fuse.OK
}

// wakePoll is bound as this device's Node.pollWake: it notifies the
// CUSE server of the last-armed poll handle so a blocked poll(2) wakes
// and re-reads revents via Poll.
func (r *rawFS) wakePoll() {
	r.mu.Lock()
	kh, armed := r.pollKh, r.pollArmed
	r.mu.Unlock()
	if !armed || r.srv == nil {
		return
	}
	r.srv.NotifyPollWakeup(kh)
}

func statusFor(err error) fuse.Status {
	switch errors.KindOf(err) {
	case errors.NotFound:
		return fuse.ENOENT
	case errors.PermissionDenied:
		return fuse.EPERM
	case errors.InvalidArgument:
		return fuse.EINVAL
	case errors.Busy:
		return fuse.EAGAIN
	case errors.HangUp:
		return fuse.ENODEV
	case errors.NotSupported:
		return fuse.ENOSYS
	default:
		return fuse.EIO
	}
}
