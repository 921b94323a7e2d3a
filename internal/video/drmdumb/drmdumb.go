package drmdumb

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"seatrt/internal/errors"
	"seatrt/internal/video"
)

// Backend is a DRM card node driven entirely through CREATE_DUMB
// framebuffers and CPU blits; see the package doc for ioctl grounding.
type Backend struct {
	file *os.File
	fd   uintptr

	connectors map[uint32]*Display // by connector ID, the stable identity poll() diffs against
	master     bool
}

// Open opens a DRM card node (e.g. /dev/dri/card0). It does not acquire
// master; call Wake for that.
func Open(path string) (*Backend, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return &Backend{file: f, fd: f.Fd(), connectors: make(map[uint32]*Display)}, nil
}

func (b *Backend) Wake() error {
	if err := ioctl(b.fd, ioctlSetMaster, 0); err != nil {
		return errors.Wrap(err, "DRM_IOCTL_SET_MASTER")
	}
	b.master = true
	return nil
}

func (b *Backend) Sleep() error {
	if !b.master {
		return nil
	}
	if err := ioctl(b.fd, ioctlDropMaster, 0); err != nil {
		return errors.Wrap(err, "DRM_IOCTL_DROP_MASTER")
	}
	b.master = false
	return nil
}

func (b *Backend) Close() error {
	for _, d := range b.connectors {
		d.destroyBuffers(b.fd)
	}
	return b.file.Close()
}

// Poll re-scans connectors via GETRESOURCES/GETCONNECTOR and diffs
// against the previously known set, per spec §4.4.
func (b *Backend) Poll() ([]video.Event, error) {
	ids, err := b.connectorIDs()
	if err != nil {
		return nil, errors.Wrap(err, "GETRESOURCES")
	}

	seen := make(map[uint32]bool, len(ids))
	var events []video.Event

	for _, id := range ids {
		seen[id] = true
		conn, err := b.getConnector(id)
		if err != nil {
			continue
		}
		connected := conn.Connection == connectorStatusConnected
		existing, known := b.connectors[id]
		switch {
		case connected && !known:
			d := &Display{backend: b, connectorID: id, encoderID: conn.EncoderID}
			b.connectors[id] = d
			events = append(events, video.Event{Kind: video.DisplayNew, Display: d})
		case !connected && known:
			existing.destroyBuffers(b.fd)
			delete(b.connectors, id)
			events = append(events, video.Event{Kind: video.DisplayGone, Display: existing})
		}
	}
	for id, d := range b.connectors {
		if !seen[id] {
			d.destroyBuffers(b.fd)
			delete(b.connectors, id)
			events = append(events, video.Event{Kind: video.DisplayGone, Display: d})
		}
	}

	events = append(events, video.Event{Kind: video.WakeUp})
	return events, nil
}

// HandleFlipEvent drains pending DRM page-flip completion events off the
// card fd (registered readable with the event loop by the caller) and
// clears the matching display's pending-vsync flag, per spec §4.4's
// "flip handler fd event that clears the pending-vsync flag".
func (b *Backend) HandleFlipEvent() {
	buf := make([]byte, 1024)
	n, err := unix.Read(int(b.fd), buf)
	if err != nil || n == 0 {
		return
	}
	// drm_event header: {type uint32, length uint32}; a page-flip event
	// is followed by drm_event_vblank {user_data uint64, tv_sec, tv_usec,
	// sequence, crtc_id uint32}. Only crtc_id is needed here.
	off := 0
	for off+8 <= n {
		evType := le32(buf[off:])
		evLen := int(le32(buf[off+4:]))
		if evLen == 0 || off+evLen > n {
			break
		}
		if evType == 0x02 /* DRM_EVENT_FLIP_COMPLETE */ && evLen >= 32 {
			crtcID := le32(buf[off+28:])
			for _, d := range b.connectors {
				if d.crtcID == crtcID {
					d.pendingFlip = false
				}
			}
		}
		off += evLen
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (b *Backend) connectorIDs() ([]uint32, error) {
	var res modeGetResources
	if err := ioctlPtr(b.fd, ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}
	if res.CountConnectors == 0 {
		return nil, nil
	}
	ids := make([]uint32, res.CountConnectors)
	res.ConnectorIDPtr = ptr(unsafe.Pointer(&ids[0]))
	if err := ioctlPtr(b.fd, ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}
	return ids, nil
}

func (b *Backend) getConnector(id uint32) (modeGetConnector, error) {
	conn := modeGetConnector{ConnectorID: id}
	if err := ioctlPtr(b.fd, ioctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
		return conn, err
	}
	return conn, nil
}

func (b *Backend) getEncoderCrtc(encoderID uint32) (uint32, error) {
	enc := modeGetEncoder{EncoderID: encoderID}
	if err := ioctlPtr(b.fd, ioctlModeGetEncoder, unsafe.Pointer(&enc)); err != nil {
		return 0, err
	}
	return enc.CrtcID, nil
}
