package irecv

import (
	"time"
)

// Transport describes a common API to talk to one opened boot-mode device
// over USB. The protocol engine depends only on this contract; which
// concrete backend (libusb via gousb, an OS device-class framework, ...)
// is active is invisible to callers.
//
// All calls block the calling goroutine for at most the given timeout.
// Transfers never silently truncate: the returned count is the number of
// bytes actually moved.
type Transport interface {
	// SetConfiguration selects the device configuration, skipping the
	// request if the configuration is already active.
	SetConfiguration(n int) error

	// ClaimInterface claims an interface and selects its alternate
	// setting.
	ClaimInterface(iface, alt int) error

	// ReleaseInterface releases a previously claimed interface.
	ReleaseInterface(iface int) error

	// Control issues a control transfer on endpoint zero. For
	// host-to-device requests data is sent; for device-to-host requests
	// data is filled in.
	Control(rType, request uint8, val, idx uint16, data []byte, timeout time.Duration) (int, error)

	// Bulk issues a bulk transfer on the given endpoint address (IN
	// endpoints have bit 7 set). On failure the backend attempts to
	// clear a halted endpoint before returning.
	Bulk(endpoint uint8, data []byte, timeout time.Duration) (int, error)

	// GetStringDescriptorASCII fetches a string descriptor, mapping
	// non-ASCII characters to '?' and truncating to max bytes.
	GetStringDescriptorASCII(index, max int) (string, error)

	// Reset performs a USB device reset. The transport stays open.
	Reset() error

	// Close disposes of the handle. No other method may be called
	// afterwards.
	Close() error
}

// Backend discovers and opens devices. Open scans attached devices for
// the given vendor id and any of the given product ids, opens the first
// match and reports which product id matched. ErrUnableToConnect is
// returned when nothing matches.
type Backend interface {
	Open(vendor uint16, products []uint16) (Transport, uint16, error)
}

const (
	// descriptor type for GET_DESCRIPTOR string requests
	descTypeString = 0x03

	reqGetDescriptor = 0x06
	reqClearFeature  = 0x01
	featEndpointHalt = 0x0000
)

// decodeStringDescriptor turns a raw string descriptor (bLength, bType,
// then UTF-16LE code units) into ASCII. Code units outside the ASCII
// range come out as '?'. n is the byte count actually read; max bounds
// the result length.
func decodeStringDescriptor(data []byte, n, max int) (string, error) {
	if n < 2 || data[1] != descTypeString {
		return "", ErrUnknown
	}
	if int(data[0]) > n {
		return "", ErrUnknown
	}
	out := make([]byte, 0, max)
	for si := 2; si+1 < int(data[0]); si += 2 {
		if len(out) >= max-1 {
			break
		}
		if data[si+1] != 0 || data[si] > 0x7f {
			out = append(out, '?')
		} else {
			out = append(out, data[si])
		}
	}
	return string(out), nil
}
