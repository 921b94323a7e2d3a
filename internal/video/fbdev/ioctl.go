package fbdev

import "unsafe"

const (
	fbioGetVScreenInfo = 0x4600
	fbioPutVScreenInfo = 0x4601
	fbioGetFScreenInfo = 0x4602
	fbioPanDisplay     = 0x4606
	fbioBlank          = 0x4611
)

const (
	fbActivateNow = 0
	fbActivateVBL = 16

	fbVisualTrueColor = 2

	fbBlankUnblank = 0
	fbBlankPowerDn = 4
)

type fbBitfield struct {
	Offset   uint32
	Length   uint32
	MSBRight uint32
}

// fixScreenInfo mirrors struct fb_fix_screeninfo from linux/fb.h.
type fixScreenInfo struct {
	ID          [16]byte
	SmemStart   uint64
	SmemLen     uint32
	Type        uint32
	TypeAux     uint32
	Visual      uint32
	XPanStep    uint16
	YPanStep    uint16
	YWrapStep   uint16
	LineLength  uint32
	MmioStart   uint64
	MmioLen     uint32
	Accel       uint32
	Capabilities uint16
	Reserved    [2]uint16
}

// varScreenInfo mirrors struct fb_var_screeninfo from linux/fb.h.
type varScreenInfo struct {
	Xres        uint32
	Yres        uint32
	XresVirtual uint32
	YresVirtual uint32
	Xoffset     uint32
	Yoffset     uint32

	BitsPerPixel uint32
	Grayscale    uint32

	Red    fbBitfield
	Green  fbBitfield
	Blue   fbBitfield
	Transp fbBitfield

	Nonstd uint32

	Activate uint32

	Height uint32
	Width  uint32

	AccelFlags uint32

	Pixclock    uint32
	LeftMargin  uint32
	RightMargin uint32
	UpperMargin uint32
	LowerMargin uint32
	HsyncLen    uint32
	VsyncLen    uint32
	Sync        uint32
	Vmode       uint32
	Rotate      uint32
	Colorspace  uint32
	Reserved    [4]uint32
}

func uptr(p interface{}) uintptr {
	switch v := p.(type) {
	case *fixScreenInfo:
		return uintptr(unsafe.Pointer(v))
	case *varScreenInfo:
		return uintptr(unsafe.Pointer(v))
	case *uint32:
		return uintptr(unsafe.Pointer(v))
	default:
		panic("fbdev: uptr: unsupported type")
	}
}
