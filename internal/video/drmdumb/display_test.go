package drmdumb

import (
	"testing"

	"seatrt/internal/video"
)

func TestBlendChannelFullCoverageUsesForeground(t *testing.T) {
	fg := video.RGB(200, 100, 50)
	bg := video.RGB(0, 0, 0)
	got := blendChannel(bg, fg, 255)
	if got != fg {
		t.Errorf("got %v, want %v", got, fg)
	}
}

func TestBlendChannelZeroCoverageUsesBackground(t *testing.T) {
	fg := video.RGB(200, 100, 50)
	bg := video.RGB(10, 20, 30)
	got := blendChannel(bg, fg, 0)
	if got != bg {
		t.Errorf("got %v, want %v", got, bg)
	}
}

func TestPutPixelWritesBGRAOrder(t *testing.T) {
	mem := make([]byte, 4)
	putPixel(mem, 0, video.RGB(0x11, 0x22, 0x33))
	want := []byte{0x33, 0x22, 0x11, 0x00}
	for i := range want {
		if mem[i] != want[i] {
			t.Errorf("mem[%d] = %#x, want %#x", i, mem[i], want[i])
		}
	}
}

func TestNativeModeCopiesDimensions(t *testing.T) {
	mi := nativeMode(video.Mode{Width: 1920, Height: 1080, Refresh: 60})
	if mi.Hdisplay != 1920 || mi.Vdisplay != 1080 {
		t.Errorf("got %+v", mi)
	}
}
