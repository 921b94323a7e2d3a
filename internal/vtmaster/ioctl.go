package vtmaster

// Linux VT/KD ioctl request numbers and mode constants (linux/vt.h,
// linux/kd.h, linux/termios.h). No Go binding for these exists in the
// retrieval pack; gokrazy/fbstatus's own linuxvt package (referenced but
// not itself retrieved) carries the same values as unexported constants.
const (
	vtOpenQry     = 0x5600
	vtGetMode     = 0x5601
	vtSetMode     = 0x5602
	vtGetState    = 0x5603
	vtReldisp     = 0x5605
	vtActivate    = 0x5606
	vtWaitActive  = 0x5607
	vtDisallocate = 0x5608
)

const (
	vtAuto    = 0
	vtProcess = 1
	vtAckAcq  = 2
)

const (
	kdGetMode = 0x4B3B
	kdSetMode = 0x4B3A

	kdText  = 0x00
	kdGraphics = 0x01
	kdText0 = 0x02
	kdText1 = 0x03
)

const (
	kdGKbMode = 0x4B44
	kdSKbMode = 0x4B45

	kRaw       = 0x00
	kXlate     = 0x01
	kMediumRaw = 0x02
	kUnicode   = 0x03
	kOff       = 0x04
)

const (
	tcFlsh = 0x540B

	tcIFlush  = 0
	tcOFlush  = 1
	tcIOFlush = 2
)
