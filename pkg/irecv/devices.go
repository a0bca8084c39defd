package irecv

import (
	"strconv"
	"strings"
)

// VendorApple is the vendor id all boot-mode devices report.
const VendorApple uint16 = 0x05ac

// Mode is the boot mode a device was found in, equal to its USB product
// id. Mode is fixed for the lifetime of a Client; packet sizing and
// transfer style are pure functions of it.
type Mode uint16

const (
	ModeWTF       Mode = 0x1222 // oldest DFU; bare chip-id serial
	ModeDFU       Mode = 0x1227
	ModeRecovery1 Mode = 0x1280
	ModeRecovery2 Mode = 0x1281
	ModeRecovery3 Mode = 0x1282
	ModeRecovery4 Mode = 0x1283
)

func (m Mode) String() string {
	switch m {
	case ModeWTF:
		return "WTF"
	case ModeDFU:
		return "DFU"
	case ModeRecovery1, ModeRecovery2, ModeRecovery3, ModeRecovery4:
		return "Recovery"
	}
	return "UNKNOWN"
}

// DFUFamily reports whether m uploads through control transfers with the
// checksum trailer (DFU and WTF) rather than bulk transfers.
func (m Mode) DFUFamily() bool {
	return m == ModeDFU || m == ModeWTF
}

// productIDs is the closed set of recognized boot-mode product ids.
var productIDs = []uint16{
	uint16(ModeRecovery1),
	uint16(ModeRecovery2),
	uint16(ModeRecovery3),
	uint16(ModeRecovery4),
	uint16(ModeDFU),
	uint16(ModeWTF),
}

// Model identifies a known physical device.
type Model int

const (
	ModelUnknown Model = iota
	ModelIPhone2G
	ModelIPhone3G
	ModelIPhone3GS
	ModelIPod1G
	ModelIPod2G
	ModelIPod3G
	ModelIPod4G
	ModelIPhone4
	ModelIPhone4CDMA
	ModelIPad1G
	ModelAppleTV2
)

// Device is one row of the static identification table.
type Device struct {
	Model Model
	Name  string
	CPID  uint32
	BDID  uint32
}

// Chip ids 8900 and 8930 are shared across several physical models, so
// those rows are only reachable through a (CPID, BDID) pair.
var deviceTable = []Device{
	{ModelIPhone2G, "iPhone1,1", 8900, 0},
	{ModelIPhone3G, "iPhone1,2", 8900, 4},
	{ModelIPod1G, "iPod1,1", 8900, 2},
	{ModelIPhone3GS, "iPhone2,1", 8920, 0},
	{ModelIPod2G, "iPod2,1", 8720, 0},
	{ModelIPod3G, "iPod3,1", 8922, 2},
	{ModelIPad1G, "iPad1,1", 8930, 2},
	{ModelIPhone4, "iPhone3,1", 8930, 0},
	{ModelIPhone4CDMA, "iPhone3,3", 8930, 6},
	{ModelIPod4G, "iPod4,1", 8930, 8},
	{ModelAppleTV2, "AppleTV2,1", 8930, 16},
}

var ambiguousCPIDs = map[uint32]bool{8900: true, 8930: true}

var unknownDevice = Device{Model: ModelUnknown, Name: "Unknown"}

func lookupDevice(cpid, bdid uint32) Device {
	for _, d := range deviceTable {
		if d.CPID != cpid {
			continue
		}
		if ambiguousCPIDs[cpid] && d.BDID != bdid {
			continue
		}
		return d
	}
	return unknownDevice
}

// CPID extracts the chip id from the device's serial string: the decimal
// value after "CPID:" for iBoot-class serials, or the leading 4-digit
// prefix in WTF mode.
func (c *Client) CPID() (uint32, error) {
	if err := c.check(); err != nil {
		return 0, err
	}

	if c.mode == ModeWTF {
		if len(c.serial) < 4 {
			return 0, ErrUnknown
		}
		v, err := strconv.ParseUint(c.serial[:4], 10, 32)
		if err != nil {
			return 0, ErrUnknown
		}
		return uint32(v), nil
	}

	return c.serialField("CPID:", 10, 32)
}

// BDID extracts the board id (hex after "BDID:").
func (c *Client) BDID() (uint32, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	return c.serialField("BDID:", 16, 32)
}

// ECID extracts the exclusive chip id (hex after "ECID:").
func (c *Client) ECID() (uint64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	v, err := c.serialField64("ECID:", 16, 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (c *Client) serialField(tag string, base, bits int) (uint32, error) {
	v, err := c.serialField64(tag, base, bits)
	return uint32(v), err
}

func (c *Client) serialField64(tag string, base, bits int) (uint64, error) {
	i := strings.Index(c.serial, tag)
	if i < 0 {
		return 0, ErrUnknown
	}
	s := c.serial[i+len(tag):]
	end := 0
	for end < len(s) && isBaseDigit(s[end], base) {
		end++
	}
	if end == 0 {
		return 0, ErrUnknown
	}
	v, err := strconv.ParseUint(s[:end], base, bits)
	if err != nil {
		return 0, ErrUnknown
	}
	return v, nil
}

func isBaseDigit(b byte, base int) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case base == 16 && ((b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')):
		return true
	}
	return false
}

// Device maps the client's identity onto the static table. An
// unidentifiable device is reported as ModelUnknown, never as an error.
func (c *Client) Device() Device {
	cpid, err := c.CPID()
	if err != nil {
		return unknownDevice
	}
	var bdid uint32
	if ambiguousCPIDs[cpid] {
		bdid, err = c.BDID()
		if err != nil {
			return unknownDevice
		}
	}
	return lookupDevice(cpid, bdid)
}
