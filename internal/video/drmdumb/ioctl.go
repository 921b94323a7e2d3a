// Package drmdumb implements the video package's software DRM backend
// (spec §4.4 "DRM-dumb path"): CREATE_DUMB-backed framebuffers, mmap'd
// and blitted/filled/blended from the CPU, presented with page flips.
//
// The ioctl numbers and request structs below are grounded directly on
// helixml/helix's api/cmd/drm-flipper (present in the retrieval pack's
// other_examples/), which issues the identical CREATE_DUMB/ADDFB/SETCRTC
// sequence via raw golang.org/x/sys/unix syscalls rather than a cgo
// libdrm binding (none exists in the pack). PAGEFLIP, DESTROY_DUMB, and
// the resource/connector/encoder enumeration ioctls are added here
// because drm-flipper's own scope (continuous SETCRTC swaps against a
// pre-leased connector) didn't need them, but they follow the exact same
// struct-literal-plus-unix.Syscall(SYS_IOCTL, ...) style.
package drmdumb

import "unsafe"

const (
	ioctlModeGetResources = 0xc04064a0
	ioctlModeGetConnector = 0xc05064a7
	ioctlModeGetEncoder   = 0xc01464a6
	ioctlModeCreateDumb   = 0xc02064b2
	ioctlModeMapDumb      = 0xc01064b3
	ioctlModeAddFB        = 0xc01c64ae
	ioctlModeRmFB         = 0xc00464af
	ioctlModeSetCrtc      = 0xc06864a2
	ioctlModePageFlip     = 0xc01064b0
	ioctlModeDestroyDumb  = 0xc00464b4
	ioctlSetMaster        = 0x641e
	ioctlDropMaster       = 0x641f

	pageFlipEvent = 0x01

	connectorStatusConnected = 1
)

type modeCreateDumb struct {
	Height uint32
	Width  uint32
	Bpp    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

type modeMapDumb struct {
	Handle uint32
	Pad    uint32
	Offset uint64
}

type modeFbCmd struct {
	FbID   uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	Bpp    uint32
	Depth  uint32
	Handle uint32
}

type modeModeInfo struct {
	Clock      uint32
	Hdisplay   uint16
	HsyncStart uint16
	HsyncEnd   uint16
	Htotal     uint16
	Hskew      uint16
	Vdisplay   uint16
	VsyncStart uint16
	VsyncEnd   uint16
	Vtotal     uint16
	Vscan      uint16
	Vrefresh   uint32
	Flags      uint32
	Type       uint32
	Name       [32]byte
}

type modeCrtc struct {
	SetConnectorsPtr uint64
	CountConnectors  uint32
	CrtcID           uint32
	FbID             uint32
	X                uint32
	Y                uint32
	GammaSize        uint32
	ModeValid        uint32
	Mode             modeModeInfo
}

type modePageFlip struct {
	CrtcID   uint32
	FbID     uint32
	Flags    uint32
	Reserved uint32
	UserData uint64
}

type modeGetResources struct {
	FbIDPtr        uint64
	CrtcIDPtr      uint64
	ConnectorIDPtr uint64
	EncoderIDPtr   uint64
	CountFbs       uint32
	CountCrtcs     uint32
	CountConnectors uint32
	CountEncoders  uint32
	MinWidth       uint32
	MaxWidth       uint32
	MinHeight      uint32
	MaxHeight      uint32
}

type modeGetConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MmWidth         uint32
	MmHeight        uint32
	Subpixel        uint32
	Pad             uint32
}

type modeGetEncoder struct {
	EncoderID   uint32
	EncoderType uint32
	CrtcID      uint32
	PossibleCrtcs uint32
	PossibleClones uint32
}

func ptr(p unsafe.Pointer) uint64 { return uint64(uintptr(p)) }
