package devmon

import "testing"

func TestClassifyDRMCard(t *testing.T) {
	c, ok := classify(rawDevice{Subsystem: "drm", Sysname: "card0", bootVGAParent: true})
	if !ok {
		t.Fatal("card0 not classified")
	}
	if c.Type != DRM || !c.Flags.Primary {
		t.Errorf("got %+v", c)
	}
}

func TestClassifyDRMRenderNodeRejected(t *testing.T) {
	if _, ok := classify(rawDevice{Subsystem: "drm", Sysname: "renderD128"}); ok {
		t.Error("renderD128 should not be classified as a DRM card")
	}
}

func TestClassifyFBDevDRMBacked(t *testing.T) {
	c, ok := classify(rawDevice{Subsystem: "graphics", Sysname: "fb0", fbID: "drmfbdrm"})
	if !ok || c.Type != FBDEV || !c.Flags.DRMBacked {
		t.Errorf("got %+v, ok=%v", c, ok)
	}
}

func TestClassifyInputRequiresInputParent(t *testing.T) {
	if _, ok := classify(rawDevice{Subsystem: "input", Sysname: "event3", hasInputParent: false}); ok {
		t.Error("event node without an input parent should be rejected")
	}
	c, ok := classify(rawDevice{Subsystem: "input", Sysname: "event3", hasInputParent: true})
	if !ok || c.Type != INPUT {
		t.Errorf("got %+v, ok=%v", c, ok)
	}
}

func TestClassifyUnknownSubsystemRejected(t *testing.T) {
	if _, ok := classify(rawDevice{Subsystem: "usb", Sysname: "1-1"}); ok {
		t.Error("usb subsystem should not be classified")
	}
}

func TestParseUeventAddBasics(t *testing.T) {
	payload := "add@/devices/pci0000:00/card0\x00ACTION=add\x00SUBSYSTEM=drm\x00DEVNAME=dri/card0\x00ID_SEAT=seat0\x00"
	action, dev, ok := parseUevent([]byte(payload))
	if !ok {
		t.Fatal("parse failed")
	}
	if action != udevAdd {
		t.Errorf("action = %v, want udevAdd", action)
	}
	if dev.Subsystem != "drm" || dev.Sysname != "card0" || dev.IDSeat != "seat0" {
		t.Errorf("got %+v", dev)
	}
}

func TestParseUeventChangeHotplug(t *testing.T) {
	payload := "change@/devices/pci0000:00/card0\x00SUBSYSTEM=drm\x00HOTPLUG=1\x00"
	action, dev, ok := parseUevent([]byte(payload))
	if !ok || action != udevChange || !dev.hotplug {
		t.Errorf("got action=%v dev=%+v ok=%v", action, dev, ok)
	}
}
