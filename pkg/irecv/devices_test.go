package irecv

import (
	"errors"
	"testing"
)

const iPhone4Serial = "CPID:8930 CPRV:20 CPFM:03 SCEP:01 BDID:00 ECID:0000000012345678 IBFL:01"

func TestIdentityRecovery(t *testing.T) {
	c, _ := newTestClient(ModeRecovery2, iPhone4Serial)

	cpid, err := c.CPID()
	if err != nil || cpid != 8930 {
		t.Errorf("CPID = %d, %v; want 8930", cpid, err)
	}
	bdid, err := c.BDID()
	if err != nil || bdid != 0 {
		t.Errorf("BDID = %d, %v; want 0", bdid, err)
	}
	ecid, err := c.ECID()
	if err != nil || ecid != 0x12345678 {
		t.Errorf("ECID = %#x, %v; want 0x12345678", ecid, err)
	}

	if d := c.Device(); d.Model != ModelIPhone4 || d.Name != "iPhone3,1" {
		t.Errorf("Device = %+v, want iPhone3,1", d)
	}
}

func TestIdentityBDIDHex(t *testing.T) {
	c, _ := newTestClient(ModeRecovery2, "CPID:8930 BDID:10 ECID:00000000000000FF")

	bdid, err := c.BDID()
	if err != nil || bdid != 16 {
		t.Errorf("BDID = %d, %v; want 16 (hex field)", bdid, err)
	}
	if d := c.Device(); d.Model != ModelAppleTV2 {
		t.Errorf("Device = %+v, want AppleTV2,1", d)
	}
	ecid, err := c.ECID()
	if err != nil || ecid != 0xff {
		t.Errorf("ECID = %#x, %v; want 0xff", ecid, err)
	}
}

func TestIdentityWTF(t *testing.T) {
	c, _ := newTestClient(ModeWTF, "89000000000001")

	cpid, err := c.CPID()
	if err != nil || cpid != 8900 {
		t.Errorf("CPID = %d, %v; want 8900", cpid, err)
	}
	// 8900 is ambiguous and a WTF serial carries no board id.
	if d := c.Device(); d.Model != ModelUnknown {
		t.Errorf("Device = %+v, want Unknown", d)
	}
}

func TestIdentityMissingFields(t *testing.T) {
	c, _ := newTestClient(ModeRecovery2, "SRNM:garbage")

	if _, err := c.CPID(); !errors.Is(err, ErrUnknown) {
		t.Errorf("CPID on bad serial: got %v, want ErrUnknown", err)
	}
	if d := c.Device(); d.Model != ModelUnknown || d.Name != "Unknown" {
		t.Errorf("Device = %+v, want Unknown", d)
	}
}

func TestLookupDevice(t *testing.T) {
	// Unambiguous chip id: the board id is ignored.
	if d := lookupDevice(8920, 99); d.Model != ModelIPhone3GS {
		t.Errorf("8920 = %+v, want iPhone2,1", d)
	}
	// Ambiguous chip ids resolve through the board id.
	if d := lookupDevice(8930, 8); d.Model != ModelIPod4G {
		t.Errorf("8930/8 = %+v, want iPod4,1", d)
	}
	if d := lookupDevice(8900, 4); d.Model != ModelIPhone3G {
		t.Errorf("8900/4 = %+v, want iPhone1,2", d)
	}
	if d := lookupDevice(8930, 99); d.Model != ModelUnknown {
		t.Errorf("8930/99 = %+v, want Unknown", d)
	}
	if d := lookupDevice(1234, 0); d.Model != ModelUnknown {
		t.Errorf("1234 = %+v, want Unknown", d)
	}
}

func TestModeProperties(t *testing.T) {
	cases := []struct {
		mode Mode
		name string
		dfu  bool
	}{
		{ModeWTF, "WTF", true},
		{ModeDFU, "DFU", true},
		{ModeRecovery1, "Recovery", false},
		{ModeRecovery4, "Recovery", false},
		{Mode(0x1299), "UNKNOWN", false},
	}
	for _, tc := range cases {
		if got := tc.mode.String(); got != tc.name {
			t.Errorf("%#04x: String() = %q, want %q", uint16(tc.mode), got, tc.name)
		}
		if got := tc.mode.DFUFamily(); got != tc.dfu {
			t.Errorf("%#04x: DFUFamily() = %v, want %v", uint16(tc.mode), got, tc.dfu)
		}
	}
}
