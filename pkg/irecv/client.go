// Package irecv drives Apple devices that dropped into a low-level USB
// boot mode (DFU, Recovery, WTF): it discovers them, runs the iBoot text
// command protocol, and uploads/downloads firmware-sized payloads with
// mode-specific chunking and the DFU checksum trailer.
package irecv

import (
	"log/slog"
	"time"
)

const (
	// controlTimeout bounds every protocol control transfer.
	controlTimeout = time.Second
	// receiveTimeout bounds generic bulk drain reads.
	receiveTimeout = 500 * time.Millisecond

	reconnectAttempts = 10
)

// Pauses between retry rounds. Fixed, not exponential; package variables
// so engine tests do not sleep for real.
var (
	openRetryPause   = time.Second
	statusRetryPause = time.Second
)

// Client owns exactly one open Transport and the session state negotiated
// at open time. A Client is single-goroutine: every operation blocks, and
// event callbacks run inline on the calling goroutine. After Close, all
// operations fail with ErrNoDevice.
type Client struct {
	backend Backend
	usb     Transport

	mode   Mode
	serial string

	config int
	iface  int
	alt    int

	callbacks map[EventType]EventFunc

	// busy rejects callback reentry into an in-flight transfer.
	busy bool
}

// Open enumerates attached devices through the backend, opens the first
// one in a recognized boot mode, negotiates configuration and
// interface(s), and caches the serial identity string.
func Open(b Backend) (*Client, error) {
	usb, pid, err := b.Open(VendorApple, productIDs)
	if err != nil {
		return nil, err
	}

	c := &Client{
		backend:   b,
		usb:       usb,
		mode:      Mode(pid),
		callbacks: make(map[EventType]EventFunc),
	}
	slog.Debug("opened boot-mode device", "mode", c.mode, "pid", uint16(pid))

	if err := c.SetConfiguration(1); err != nil {
		usb.Close()
		return nil, err
	}

	// DFU-family devices expose a single interface; iBoot-class modes
	// additionally want interface 1 at alternate setting 1.
	if err := c.SetInterface(0, 0); err != nil {
		usb.Close()
		return nil, err
	}
	if !c.mode.DFUFamily() {
		if err := c.SetInterface(1, 1); err != nil {
			usb.Close()
			return nil, err
		}
	}

	// Serial descriptor index 3 on every known boot mode. A failed
	// fetch leaves the identity empty; identification then reports
	// Unknown rather than failing the open.
	serial, err := usb.GetStringDescriptorASCII(3, 255)
	if err != nil {
		slog.Debug("no serial descriptor", "err", err)
	}
	c.serial = serial

	return c, nil
}

// OpenAttempts calls Open up to attempts times, pausing one second
// between failures.
func OpenAttempts(b Backend, attempts int) (*Client, error) {
	for i := 0; i < attempts; i++ {
		c, err := Open(b)
		if err == nil {
			return c, nil
		}
		slog.Debug("connection failed, waiting before retry", "err", err)
		time.Sleep(openRetryPause)
	}
	return nil, ErrUnableToConnect
}

// Reconnect closes the session, waits initialPause for the device to
// re-enumerate, and opens a new session through the same backend with up
// to 10 attempts. The progress subscription is carried over to the new
// client; a connected event fires on success.
func (c *Client) Reconnect(initialPause time.Duration) (*Client, error) {
	backend := c.backend
	progress := c.callbacks[EventProgress]

	if c.check() == nil {
		c.Close()
	}

	if initialPause > 0 {
		slog.Debug("waiting for the device to pop up", "pause", initialPause)
		time.Sleep(initialPause)
	}

	nc, err := OpenAttempts(backend, reconnectAttempts)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		nc.callbacks[EventProgress] = progress
	}
	nc.emit(&Event{Type: EventConnected})
	return nc, nil
}

// check validates session liveness.
func (c *Client) check() error {
	if c == nil || c.usb == nil {
		return ErrNoDevice
	}
	return nil
}

// Mode reports the boot mode negotiated at open time.
func (c *Client) Mode() Mode {
	return c.mode
}

// Serial reports the device's USB serial identity string.
func (c *Client) Serial() string {
	return c.serial
}

// SetConfiguration selects a device configuration.
func (c *Client) SetConfiguration(n int) error {
	if err := c.check(); err != nil {
		return err
	}
	slog.Debug("setting configuration", "config", n)
	if err := c.usb.SetConfiguration(n); err != nil {
		return ErrUsbConfiguration
	}
	c.config = n
	return nil
}

// SetInterface claims an interface with an alternate setting.
func (c *Client) SetInterface(iface, alt int) error {
	if err := c.check(); err != nil {
		return err
	}
	slog.Debug("setting interface", "interface", iface, "alt", alt)
	if err := c.usb.ClaimInterface(iface, alt); err != nil {
		return ErrUsbInterface
	}
	c.iface = iface
	c.alt = alt
	return nil
}

// Reset issues a USB device reset. The session stays open.
func (c *Client) Reset() error {
	if err := c.check(); err != nil {
		return err
	}
	return c.usb.Reset()
}

// Close fires the disconnected event, releases the interface claims (for
// iBoot-class modes; DFU-family interfaces stay claimed until the handle
// goes) and the transport. A second Close reports ErrNoDevice.
func (c *Client) Close() error {
	if err := c.check(); err != nil {
		return err
	}

	c.emit(&Event{Type: EventDisconnected})

	if !c.mode.DFUFamily() {
		c.usb.ReleaseInterface(1)
		c.usb.ReleaseInterface(0)
	}
	err := c.usb.Close()
	c.usb = nil
	return err
}

// begin marks an exclusive operation in flight, rejecting reentrant calls
// from event callbacks.
func (c *Client) begin() error {
	if err := c.check(); err != nil {
		return err
	}
	if c.busy {
		return ErrUnknown
	}
	c.busy = true
	return nil
}

func (c *Client) end() {
	c.busy = false
}
