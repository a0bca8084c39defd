package irecv

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"strings"
)

// maxCommandLen is the longest command the console accepts; longer input
// is truncated, and a terminating NUL is always transmitted.
const maxCommandLen = 0xFF

const receiveBufferSize = 0x1000

// sendCommandRaw transmits one console command as a vendor control
// request. Empty commands transmit nothing.
func (c *Client) sendCommandRaw(command string) error {
	if len(command) > maxCommandLen {
		command = command[:maxCommandLen]
	}
	if len(command) == 0 {
		return nil
	}

	data := make([]byte, len(command)+1)
	copy(data, command)
	_, err := c.usb.Control(0x40, 0, 0, 0, data, controlTimeout)
	return err
}

// SendCommand runs one console command through the pre/post hooks. A
// hook returning non-zero vetoes the rest of the processing and the call
// reports success. A broken pipe from the device is tolerated: some
// devices stall this endpoint harmlessly.
func (c *Client) SendCommand(command string) error {
	if err := c.check(); err != nil {
		return err
	}

	if len(command) > maxCommandLen {
		command = command[:maxCommandLen]
	}

	if veto := c.emit(&Event{
		Type: EventPrecommand,
		Data: []byte(command),
		Size: len(command),
	}); veto != 0 {
		return nil
	}

	if err := c.sendCommandRaw(command); err != nil {
		slog.Debug("failed to send command", "command", command, "err", err)
		if !errors.Is(err, ErrPipe) {
			return err
		}
	}

	if veto := c.emit(&Event{
		Type: EventPostcommand,
		Data: []byte(command),
		Size: len(command),
	}); veto != 0 {
		return nil
	}

	return nil
}

// Getenv queries one environment variable from the iBoot console. A
// stalled command endpoint yields an empty value, not an error.
func (c *Client) Getenv(variable string) (string, error) {
	if err := c.check(); err != nil {
		return "", err
	}
	if variable == "" {
		return "", ErrInvalidInput
	}

	err := c.sendCommandRaw("getenv " + variable)
	if errors.Is(err, ErrPipe) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	response := make([]byte, maxCommandLen)
	n, err := c.usb.Control(0xC0, 0, 0, 0, response, controlTimeout)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(response[:n], 0); i >= 0 {
		n = i
	}
	return string(response[:n]), nil
}

// Getret reads back the return value of the last console command.
func (c *Client) Getret() (uint32, error) {
	if err := c.check(); err != nil {
		return 0, err
	}

	response := make([]byte, maxCommandLen)
	n, err := c.usb.Control(0xC0, 0, 0, 0, response, controlTimeout)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, ErrUnknown
	}
	return uint32(response[0]), nil
}

// Setenv sets one environment variable on the device.
func (c *Client) Setenv(variable, value string) error {
	if err := c.check(); err != nil {
		return err
	}
	if variable == "" || value == "" {
		return ErrInvalidInput
	}
	return c.sendCommandRaw("setenv " + variable + " " + value)
}

// Saveenv persists the device environment to NOR.
func (c *Client) Saveenv() error {
	if err := c.check(); err != nil {
		return err
	}
	return c.sendCommandRaw("saveenv")
}

// GetStatus reads the 6-byte DFU status block and returns its state byte
// (index 4). Anything but an exact 6-byte read is ErrUsbStatus.
func (c *Client) GetStatus() (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}

	buf := make([]byte, 6)
	n, err := c.usb.Control(0xA1, 3, 0, 0, buf, controlTimeout)
	if err != nil || n != 6 {
		return 0, ErrUsbStatus
	}
	return int(buf[4]), nil
}

// Receive drains pending console output from the bulk IN endpoint,
// dispatching each chunk as a received event. A handler veto, a short
// read or a transfer failure ends the drain; all of those report
// success, since an empty console is not an error.
func (c *Client) Receive() error {
	if err := c.check(); err != nil {
		return err
	}

	buf := make([]byte, receiveBufferSize)
	for {
		n, err := c.usb.Bulk(0x81, buf, receiveTimeout)
		if err != nil || n <= 0 {
			return nil
		}
		if veto := c.emit(&Event{
			Type: EventReceived,
			Data: buf[:n],
			Size: n,
		}); veto != 0 {
			return nil
		}
		if n < receiveBufferSize {
			return nil
		}
	}
}

// ExecuteScript runs a file of newline-separated console commands,
// draining device output after every command. Lines starting with '#'
// are comments.
func (c *Client) ExecuteScript(path string) error {
	if err := c.check(); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ErrFileNotFound
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := c.SendCommand(line); err != nil {
			return err
		}
		if err := c.Receive(); err != nil {
			return err
		}
	}
	return nil
}

// SendExploit triggers the USB exploit control request.
func (c *Client) SendExploit() error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.usb.Control(0x21, 2, 0, 0, nil, controlTimeout)
	return err
}

// ResetCounters resets the device's transfer counters. Only meaningful
// in DFU-family modes; a no-op elsewhere.
func (c *Client) ResetCounters() error {
	if err := c.check(); err != nil {
		return err
	}
	if !c.mode.DFUFamily() {
		return nil
	}
	_, err := c.usb.Control(0x21, 4, 0, 0, nil, controlTimeout)
	return err
}
