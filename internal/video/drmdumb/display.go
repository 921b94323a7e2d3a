package drmdumb

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"seatrt/internal/errors"
	"seatrt/internal/video"
)

type buffer struct {
	handle uint32
	fbID   uint32
	pitch  uint32
	size   uint64
	mem    []byte
}

// Display is one connector's double-buffered dumb framebuffer pair.
type Display struct {
	backend     *Backend
	connectorID uint32
	encoderID   uint32
	crtcID      uint32

	width, height uint32
	bufs          [2]buffer
	front         int // index currently being scanned out
	pendingFlip   bool
}

func (d *Display) Activate(mode video.Mode) error {
	if d.crtcID == 0 {
		crtc, err := d.backend.getEncoderCrtc(d.encoderID)
		if err != nil {
			return errors.Wrap(err, "resolving CRTC for connector")
		}
		if crtc == 0 {
			return errors.New(errors.NotFound, "connector has no usable CRTC")
		}
		d.crtcID = crtc
	}

	d.width, d.height = mode.Width, mode.Height
	for i := range d.bufs {
		if d.bufs[i].mem == nil {
			buf, err := createDumbBuffer(d.backend.fd, mode.Width, mode.Height)
			if err != nil {
				d.destroyBuffers(d.backend.fd)
				return errors.Wrapf(err, "creating dumb buffer %d", i)
			}
			d.bufs[i] = buf
		}
	}

	crtc := modeCrtc{
		CrtcID:           d.crtcID,
		FbID:             d.bufs[0].fbID,
		SetConnectorsPtr: ptr(unsafe.Pointer(&d.connectorID)),
		CountConnectors:  1,
		ModeValid:        1,
		Mode:             nativeMode(mode),
	}
	if err := ioctlPtr(d.backend.fd, ioctlModeSetCrtc, unsafe.Pointer(&crtc)); err != nil {
		return errors.Wrap(err, "DRM_IOCTL_MODE_SETCRTC")
	}
	d.front = 0
	return nil
}

func nativeMode(m video.Mode) modeModeInfo {
	mi := modeModeInfo{
		Clock:    uint32(m.Width) * uint32(m.Height) * m.Refresh / 1000,
		Hdisplay: uint16(m.Width),
		Vdisplay: uint16(m.Height),
		Vrefresh: m.Refresh,
		Type:     0x40, // DRM_MODE_TYPE_DRIVER
	}
	copy(mi.Name[:], "seatrt-mode")
	return mi
}

func (d *Display) Deactivate() error {
	crtc := modeCrtc{CrtcID: d.crtcID, SetConnectorsPtr: ptr(unsafe.Pointer(&d.connectorID))}
	return ioctlPtr(d.backend.fd, ioctlModeSetCrtc, unsafe.Pointer(&crtc))
}

// SetDPMS is a no-op for the dumb path: DPMS is a connector property the
// accelerated path would set via DRM_IOCTL_MODE_OBJ_SETPROPERTY; without
// a cached property-ID lookup (out of scope for the dumb path, which
// this implementation never promotes to accelerated mode per spec §4.4's
// contention policy), this backend only supports on/off via Activate/
// Deactivate and reports any other state as not supported.
func (d *Display) SetDPMS(state video.DPMSState) error {
	switch state {
	case video.DPMSOn:
		return nil
	case video.DPMSOff:
		return d.Deactivate()
	default:
		return errors.New(errors.NotSupported, "drmdumb only supports DPMS on/off")
	}
}

func (d *Display) Swap() error {
	back := 1 - d.front
	flip := modePageFlip{CrtcID: d.crtcID, FbID: d.bufs[back].fbID, Flags: pageFlipEvent}
	if err := ioctlPtr(d.backend.fd, ioctlModePageFlip, unsafe.Pointer(&flip)); err != nil {
		return errors.Wrap(err, "DRM_IOCTL_MODE_PAGE_FLIP")
	}
	d.pendingFlip = true
	d.front = back
	return nil
}

func (d *Display) VSyncPending() bool { return d.pendingFlip }

func (d *Display) back() *buffer { return &d.bufs[1-d.front] }

func (d *Display) Blit(buf []video.Pixel, stride, w, h, x, y int) error {
	dst := d.back()
	for row := 0; row < h; row++ {
		srcRow := buf[row*stride : row*stride+w]
		dstOff := (y+row)*int(dst.pitch) + x*4
		for col := 0; col < w; col++ {
			putPixel(dst.mem, dstOff+col*4, srcRow[col])
		}
	}
	return nil
}

func (d *Display) Fill(c video.Pixel, rect video.Rect) error {
	dst := d.back()
	for row := 0; row < rect.H; row++ {
		off := (rect.Y+row)*int(dst.pitch) + rect.X*4
		for col := 0; col < rect.W; col++ {
			putPixel(dst.mem, off+col*4, c)
		}
	}
	return nil
}

func (d *Display) Blend(req video.BlendReq) error {
	dst := d.back()
	for row := 0; row < req.H; row++ {
		srcOff := row * req.Stride
		dstOff := (req.Y+row)*int(dst.pitch) + req.X*4
		for col := 0; col < req.W; col++ {
			cov := req.Buf[srcOff+col]
			px := blendChannel(req.Bg, req.Fg, cov)
			putPixel(dst.mem, dstOff+col*4, px)
		}
	}
	return nil
}

func (d *Display) Blendv(reqs []video.BlendReq) error {
	for _, r := range reqs {
		if err := d.Blend(r); err != nil {
			return err
		}
	}
	return nil
}

func blendChannel(bg, fg video.Pixel, coverage byte) video.Pixel {
	a := uint32(coverage)
	lerp := func(b, f uint8) uint8 { return uint8((uint32(b)*(255-a) + uint32(f)*a) / 255) }
	return video.RGB(lerp(bg.R(), fg.R()), lerp(bg.G(), fg.G()), lerp(bg.B(), fg.B()))
}

func putPixel(mem []byte, off int, p video.Pixel) {
	mem[off+0] = p.B()
	mem[off+1] = p.G()
	mem[off+2] = p.R()
	mem[off+3] = 0
}

func createDumbBuffer(fd uintptr, width, height uint32) (buffer, error) {
	dumb := modeCreateDumb{Width: width, Height: height, Bpp: 32}
	if err := ioctlPtr(fd, ioctlModeCreateDumb, unsafe.Pointer(&dumb)); err != nil {
		return buffer{}, errors.Wrap(err, "DRM_IOCTL_MODE_CREATE_DUMB")
	}

	fb := modeFbCmd{Width: width, Height: height, Pitch: dumb.Pitch, Bpp: 32, Depth: 24, Handle: dumb.Handle}
	if err := ioctlPtr(fd, ioctlModeAddFB, unsafe.Pointer(&fb)); err != nil {
		return buffer{}, errors.Wrap(err, "DRM_IOCTL_MODE_ADDFB")
	}

	mreq := modeMapDumb{Handle: dumb.Handle}
	if err := ioctlPtr(fd, ioctlModeMapDumb, unsafe.Pointer(&mreq)); err != nil {
		return buffer{}, errors.Wrap(err, "DRM_IOCTL_MODE_MAP_DUMB")
	}

	mem, err := unix.Mmap(int(fd), int64(mreq.Offset), int(dumb.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return buffer{}, errors.Wrap(err, "mmap dumb buffer")
	}

	return buffer{handle: dumb.Handle, fbID: fb.FbID, pitch: dumb.Pitch, size: dumb.Size, mem: mem}, nil
}

func (d *Display) destroyBuffers(fd uintptr) {
	for i := range d.bufs {
		if d.bufs[i].mem != nil {
			unix.Munmap(d.bufs[i].mem)
			rmfb := d.bufs[i].fbID
			ioctlPtr(fd, ioctlModeRmFB, unsafe.Pointer(&rmfb))
			destroy := struct{ Handle uint32 }{d.bufs[i].handle}
			ioctlPtr(fd, ioctlModeDestroyDumb, unsafe.Pointer(&destroy))
			d.bufs[i] = buffer{}
		}
	}
}
