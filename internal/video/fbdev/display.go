package fbdev

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"seatrt/internal/errors"
	"seatrt/internal/video"
)

// Display is the single display an fbdev node exposes. Double buffering
// is attempted via a virtual resolution twice the visible height;
// Activate falls back to a single buffer (Swap becomes a same-buffer
// no-op) if the driver refuses the taller virtual resolution.
type Display struct {
	backend *Backend

	mem    []byte
	stride int

	width, height uint32
	bpp           uint32
	doubleBuf     bool
	frontOffset   uint32 // 0 or height, in lines

	dither *ditherState
}

func (d *Display) backendFD() uintptr { return d.backend.fd }

// Activate maps the framebuffer, requests the given mode's resolution,
// and tries a doubled virtual height for page-flip-free double
// buffering; on any error from the driver it retries with a single
// buffer instead of failing outright.
func (d *Display) Activate(mode video.Mode) error {
	b := d.backend
	v := b.vinfo
	v.Xres, v.Yres = uint32(mode.Width), uint32(mode.Height)
	v.XresVirtual = v.Xres
	v.YresVirtual = v.Yres * 2
	v.Activate = fbActivateNow

	b.vinfo = v
	if err := b.writeVarInfo(); err != nil {
		v.YresVirtual = v.Yres
		b.vinfo = v
		if err2 := b.writeVarInfo(); err2 != nil {
			return errors.Wrap(err2, "FBIOPUT_VSCREENINFO")
		}
		d.doubleBuf = false
	} else {
		d.doubleBuf = true
	}

	if err := b.readVarInfo(); err != nil {
		return errors.Wrap(err, "re-reading FBIOGET_VSCREENINFO after activate")
	}
	if err := b.readFixedInfo(); err != nil {
		return errors.Wrap(err, "re-reading FBIOGET_FSCREENINFO after activate")
	}

	d.width, d.height = b.vinfo.Xres, b.vinfo.Yres
	d.bpp = b.vinfo.BitsPerPixel
	d.stride = int(b.finfo.LineLength)
	d.frontOffset = 0

	mapLen := d.stride * int(b.vinfo.YresVirtual)
	mem, err := unix.Mmap(int(b.fd), 0, mapLen, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return errors.Wrap(err, "mmap fbdev")
	}
	d.mem = mem

	if d.bpp < 32 {
		d.dither = newDitherState(int(d.width) * int(d.height))
	}
	return nil
}

func (d *Display) unmap() {
	if d.mem != nil {
		unix.Munmap(d.mem)
		d.mem = nil
	}
}

func (d *Display) Deactivate() error {
	return d.blank(fbBlankPowerDn)
}

func (d *Display) SetDPMS(state video.DPMSState) error {
	switch state {
	case video.DPMSOn:
		return d.blank(fbBlankUnblank)
	case video.DPMSOff:
		return d.blank(fbBlankPowerDn)
	default:
		return errors.New(errors.NotSupported, "fbdev only supports DPMS on/off")
	}
}

func (d *Display) blank(mode uint32) error {
	return ioctlPtr(d.backendFD(), fbioBlank, uintptr(mode))
}

// Swap pans the visible window to the back buffer's offset. If the
// double-height virtual resolution was refused at Activate, this is a
// no-op: caller already drew straight into the single visible buffer.
func (d *Display) Swap() error {
	if !d.doubleBuf {
		return nil
	}
	next := d.backLineOffset()
	v := d.backend.vinfo
	v.Yoffset = next
	v.Activate = fbActivateVBL
	d.backend.vinfo = v
	if err := ioctlPtr(d.backendFD(), fbioPanDisplay, uptr(&d.backend.vinfo)); err != nil {
		return errors.Wrap(err, "FBIOPAN_DISPLAY")
	}
	d.frontOffset = next
	return nil
}

// VSyncPending always reports false: FBIOPAN_DISPLAY blocks the calling
// thread until the pan lands at the next vblank, so by the time Swap
// returns there is nothing left pending.
func (d *Display) VSyncPending() bool { return false }

func (d *Display) backLineOffset() uint32 {
	if !d.doubleBuf {
		return 0
	}
	if d.frontOffset == 0 {
		return d.height
	}
	return 0
}

func (d *Display) writePixel(x, y int, p video.Pixel) {
	idx := y*int(d.width) + x
	r := d.quantized(idx, 0, p.R())
	g := d.quantized(idx, 1, p.G())
	b := d.quantized(idx, 2, p.B())

	vinfo := &d.backend.vinfo
	var word uint32
	word |= uint32(r) << vinfo.Red.Offset
	word |= uint32(g) << vinfo.Green.Offset
	word |= uint32(b) << vinfo.Blue.Offset

	off := (int(d.backLineOffset())+y)*d.stride + x*int(d.bpp/8)
	switch d.bpp / 8 {
	case 2:
		binary.LittleEndian.PutUint16(d.mem[off:], uint16(word))
	case 3:
		d.mem[off] = byte(word)
		d.mem[off+1] = byte(word >> 8)
		d.mem[off+2] = byte(word >> 16)
	case 4:
		binary.LittleEndian.PutUint32(d.mem[off:], word)
	}
}

func (d *Display) quantized(idx, channel int, v uint8) uint8 {
	if d.dither == nil {
		return v
	}
	var bits int
	switch channel {
	case 0:
		bits = int(d.backend.vinfo.Red.Length)
	case 1:
		bits = int(d.backend.vinfo.Green.Length)
	default:
		bits = int(d.backend.vinfo.Blue.Length)
	}
	return d.dither.quantize(idx, channel, v, bits)
}

func (d *Display) Blit(buf []video.Pixel, stride, w, h, x, y int) error {
	for row := 0; row < h; row++ {
		srcRow := buf[row*stride : row*stride+w]
		for col := 0; col < w; col++ {
			d.writePixel(x+col, y+row, srcRow[col])
		}
	}
	return nil
}

func (d *Display) Fill(c video.Pixel, rect video.Rect) error {
	for row := 0; row < rect.H; row++ {
		for col := 0; col < rect.W; col++ {
			d.writePixel(rect.X+col, rect.Y+row, c)
		}
	}
	return nil
}

func (d *Display) Blend(req video.BlendReq) error {
	for row := 0; row < req.H; row++ {
		srcOff := row * req.Stride
		for col := 0; col < req.W; col++ {
			cov := req.Buf[srcOff+col]
			px := blendChannel(req.Bg, req.Fg, cov)
			d.writePixel(req.X+col, req.Y+row, px)
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
