package devmon

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"seatrt/internal/eloop"
	"seatrt/internal/errors"
)

// sysfsRoot is overridable by tests so parseUevent's sysfs reads can be
// pointed at a synthetic tree instead of the real /sys.
var sysfsRoot = "/sys"

type udevAction int

const (
	udevAdd udevAction = iota
	udevRemove
	udevChange
)

// udevClient reads kernel device uevents off the NETLINK_KOBJECT_UEVENT
// socket, following the same raw-syscall style gokrazy/fbstatus and
// helixml/helix use for every other kernel-facing interface in this
// repository: there is no third-party uevent-parsing library in the
// retrieval pack, so the socket and the "KEY=VALUE\0"-delimited payload
// format (documented in the kernel's udev source, not specific to any
// library) are handled directly with golang.org/x/sys/unix.
type udevClient struct {
	fd  int
	src *eloop.Source
}

// newUdevClient binds the uevent socket to the event loop. preDispatch,
// if non-nil, runs once at the top of every Dispatch pass in which the
// uevent fd is ready, before any of this pass's uevents are decoded and
// handed to onEvent — the mechanism Monitor uses to guarantee its
// login-manager queue drains first (spec §4.2's ordering rule), rather
// than relying on whatever order epoll_wait happened to return both fds
// in.
func newUdevClient(loop *eloop.Loop, preDispatch func(), onEvent func(udevAction, rawDevice)) (*udevClient, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, errors.Wrap(err, "socket(AF_NETLINK, NETLINK_KOBJECT_UEVENT)")
	}
	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "bind uevent socket")
	}

	c := &udevClient{fd: fd}
	src, err := loop.RegisterFD(fd, eloop.Readable, func(l *eloop.Loop, s *eloop.Source, revents eloop.EventMask) {
		if preDispatch != nil {
			preDispatch()
		}
		c.drain(onEvent)
	})
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "register uevent fd")
	}
	c.src = src
	return c, nil
}

func (c *udevClient) close() {
	unix.Close(c.fd)
}

func (c *udevClient) drain(onEvent func(udevAction, rawDevice)) {
	buf := make([]byte, 8192)
	for {
		n, _, err := unix.Recvfrom(c.fd, buf, 0)
		if err != nil {
			return
		}
		if n == 0 {
			return
		}
		action, dev, ok := parseUevent(buf[:n])
		if ok {
			onEvent(action, dev)
		}
	}
}

// parseUevent decodes one NETLINK_KOBJECT_UEVENT payload. The kernel
// format (both the legacy "libudev" framing and the raw kernel framing)
// starts with an "ACTION@DEVPATH\x00" header followed by NUL-separated
// "KEY=VALUE" pairs; this parses the raw kernel framing, which is what a
// direct (non-libudev-compat) socket bind receives.
func parseUevent(b []byte) (udevAction, rawDevice, bool) {
	parts := splitNUL(b)
	if len(parts) == 0 {
		return 0, rawDevice{}, false
	}

	head := parts[0]
	at := strings.IndexByte(head, '@')
	if at < 0 {
		return 0, rawDevice{}, false
	}
	actionStr, devpath := head[:at], head[at+1:]

	var action udevAction
	switch actionStr {
	case "add":
		action = udevAdd
	case "remove":
		action = udevRemove
	case "change":
		action = udevChange
	default:
		return 0, rawDevice{}, false
	}

	dev := rawDevice{SysPath: devpath}
	var subsystem, major, minor string
	for _, kv := range parts[1:] {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		key, val := kv[:eq], kv[eq+1:]
		switch key {
		case "SUBSYSTEM":
			subsystem = val
		case "MAJOR":
			major = val
		case "MINOR":
			minor = val
		case "ID_SEAT":
			dev.IDSeat = val
		case "HOTPLUG":
			dev.hotplug = val == "1"
		case "DEVNAME":
			dev.Node = "/dev/" + val
		}
	}
	dev.Subsystem = subsystem
	dev.Sysname = sysnameFromPath(devpath)
	dev.hasInputParent = subsystem == "input" // input event nodes always have an input-class parent by construction
	populateSysfsFlags(&dev)
	_ = major
	_ = minor
	return action, dev, true
}

// readSysfsAttr reads a flat sysfs attribute file (boot_vga, name, ...),
// trimming the trailing newline the kernel always appends.
func readSysfsAttr(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// readSysfsLink resolves a sysfs symlink (device/driver, device/subsystem)
// to the final path component, which is the driver or bus name the kernel
// exposes through it.
func readSysfsLink(path string) string {
	target, err := os.Readlink(path)
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

// usbUDLDrivers lists the driver names (as exposed by the device/driver
// or device/subsystem symlink) that back a USB DisplayLink adapter —
// neither a boot_vga device nor ever the primary console, which is why
// classify treats them as Aux rather than Primary.
var usbUDLDrivers = []string{"udl", "udlfb"}

func isUSBOrUDLDriver(driver string) bool {
	for _, d := range usbUDLDrivers {
		if driver == d {
			return true
		}
	}
	return false
}

// populateSysfsFlags fills in the sysfs-derived classification fields
// parseUevent's KEY=VALUE scan can't see directly: whether the device
// sits behind the boot_vga PCI device, whether its driver is a USB/UDL
// one, and — for fbdev nodes — the fixed-info id string classify uses to
// detect a DRM-backed framebuffer (spec.md's "do not write to a graphics
// fbdev whose companion DRM node is present" rule).
func populateSysfsFlags(dev *rawDevice) {
	base := filepath.Join(sysfsRoot, dev.SysPath)

	switch dev.Subsystem {
	case "drm":
		dev.bootVGAParent = readSysfsAttr(filepath.Join(base, "device", "boot_vga")) == "1"
		driver := readSysfsLink(filepath.Join(base, "device", "driver"))
		dev.usbOrUDL = isUSBOrUDLDriver(driver) || isUSBOrUDLDriver(readSysfsLink(filepath.Join(base, "device", "subsystem")))

	case "graphics":
		dev.fbID = readSysfsAttr(filepath.Join(base, "name"))
		dev.bootVGAParent = readSysfsAttr(filepath.Join(base, "device", "boot_vga")) == "1"
		dev.usbOrUDL = isUSBOrUDLDriver(readSysfsLink(filepath.Join(base, "device", "driver"))) || strings.Contains(dev.fbID, "udl")
	}
}

func sysnameFromPath(devpath string) string {
	if i := strings.LastIndexByte(devpath, '/'); i >= 0 {
		return devpath[i+1:]
	}
	return devpath
}

func splitNUL(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == 0 {
			if i > start {
				out = append(out, string(b[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, string(b[start:]))
	}
	return out
}

// devNumber parses a uevent MAJOR or MINOR field; kept here because it
// belongs next to the rest of the field table even though neither value
// is consumed yet (classification runs entirely off sysfs paths, not
// dev_t numbers).
func devNumber(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
