package devmon

import "strings"

// rawDevice is the subset of a uevent's fields the classifier and the
// monitor need. It is deliberately small and decoupled from the netlink
// wire format so classify and the monitor's diffing logic can be unit
// tested without a kernel socket.
type rawDevice struct {
	Subsystem string // "drm", "graphics", "input"
	Sysname   string // e.g. "card0", "fb0", "event3"
	SysPath   string
	Node      string // /dev node path
	IDSeat    string // udev ID_SEAT property, "" meaning unset (defaults to seat0)

	hasInputParent bool // input: sysname has an "input" ancestor (accept gate)
	bootVGAParent  bool // drm/fbdev: parent device is the boot_vga PCI device
	usbOrUDL       bool // drm: driver is usb/udl-family; fbdev: driver is udlfb
	fbID           string // fbdev: fixed-info "id" string, for drm-backed detection
	hotplug        bool   // change event carried HOTPLUG=1
}

type classified struct {
	Type  DevType
	Flags Flags
}

// DRMBackedFBIDs lists the fb_info.id prefixes known to belong to a
// kernel driver that also registers a DRM node for the same hardware.
// Any id ending in "drmfb" (the DRM fbdev-emulation naming, e.g.
// "inteldrmfb") counts as DRM-backed as well. Exported so a deployment can extend it without a code change (see
// fbdev's own DRMBackedIDs for the video-backend-side counterpart; this
// is the device-monitor's copy of the same policy, used only for the
// NEW_DEV flag).
var DRMBackedFBIDs = []string{"drmfb", "simplefb", "offb", "astfb"}

func isDRMBackedFBID(id string) bool {
	if strings.HasSuffix(id, "drmfb") {
		return true
	}
	for _, prefix := range DRMBackedFBIDs {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

// classify implements spec §4.2's device-acceptance table. ok is false
// for any device that table doesn't name (e.g. a non-card DRM render
// node, or an input device with no evdev event interface).
func classify(dev rawDevice) (classified, bool) {
	switch dev.Subsystem {
	case "drm":
		if !strings.HasPrefix(dev.Sysname, "card") {
			return classified{}, false
		}
		return classified{Type: DRM, Flags: Flags{Primary: dev.bootVGAParent, Aux: dev.usbOrUDL}}, true

	case "graphics":
		if !strings.HasPrefix(dev.Sysname, "fb") {
			return classified{}, false
		}
		return classified{Type: FBDEV, Flags: Flags{
			DRMBacked: isDRMBackedFBID(dev.fbID),
			Primary:   dev.bootVGAParent,
			Aux:       dev.usbOrUDL,
		}}, true

	case "input":
		if !strings.HasPrefix(dev.Sysname, "event") {
			return classified{}, false
		}
		if !dev.hasInputParent {
			return classified{}, false
		}
		return classified{Type: INPUT}, true

	default:
		return classified{}, false
	}
}
