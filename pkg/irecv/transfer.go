package irecv

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

const (
	uploadPacketRecovery = 0x8000
	uploadPacketDFU      = 0x800
	recvPacketRecovery   = 0x2000
	recvPacketDFU        = 0x800

	// dfuStatusReady is the state byte the device reports once it has
	// consumed a packet.
	dfuStatusReady = 5

	statusRetries = 20
)

// dfuTrailer is the fixed 12-byte magic the device expects ahead of the
// hash on the final upload packet.
var dfuTrailer = []byte{0xff, 0xff, 0xff, 0xff, 0xac, 0x05, 0x00, 0x01, 0x55, 0x46, 0x44, 0x10}

// dfuHash folds p into the rolling upload hash. The lookup table is the
// standard reflected CRC-32 one, but the state is seeded with
// 0xFFFFFFFF and never finalized: the raw running value is what goes on
// the wire.
func dfuHash(h uint32, p []byte) uint32 {
	for _, b := range p {
		h = crc32.IEEETable[byte(h)^b] ^ (h >> 8)
	}
	return h
}

// SendBuffer uploads buf to the device, chunked for the session's mode:
// bulk packets in recovery modes, control packets with the checksum
// trailer in DFU-family modes. Progress goes to the progress callback,
// or to a console progress bar when none is registered. With
// notifyFinished, a DFU upload ends with an end-of-transfer notification
// and a device reset.
func (c *Client) SendBuffer(buf []byte, notifyFinished bool) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	length := len(buf)
	recovery := !c.mode.DFUFamily()

	packetSize := uploadPacketDFU
	if recovery {
		packetSize = uploadPacketRecovery
	}
	last := length % packetSize
	packets := length / packetSize
	if last != 0 {
		packets++
	} else {
		last = packetSize
	}

	// Initiate the transfer sequence.
	if recovery {
		if _, err := c.usb.Control(0x41, 0, 0, 0, nil, controlTimeout); err != nil {
			return err
		}
	} else {
		probe := make([]byte, 1)
		n, err := c.usb.Control(0xA1, 5, 0, 0, probe, controlTimeout)
		if err != nil || n != 1 {
			return ErrUsbUpload
		}
	}

	bar := c.transferBar(length, "Uploading image")
	h := uint32(0xFFFFFFFF)
	count := 0
	for i := 0; i < packets; i++ {
		size := packetSize
		if i+1 == packets {
			size = last
		}
		chunk := buf[i*packetSize : i*packetSize+size]

		var sent int
		var err error
		want := size
		if recovery {
			sent, err = c.usb.Bulk(0x04, chunk, controlTimeout)
		} else {
			h = dfuHash(h, chunk)
			if i+1 == packets {
				// The final packet carries the trailer magic
				// plus the running hash, little-endian.
				h = dfuHash(h, dfuTrailer)
				packet := make([]byte, 0, size+16)
				packet = append(packet, chunk...)
				packet = append(packet, dfuTrailer...)
				packet = binary.LittleEndian.AppendUint32(packet, h)
				want = size + 16
				sent, err = c.usb.Control(0x21, 1, uint16(i), 0, packet, controlTimeout)
			} else {
				sent, err = c.usb.Control(0x21, 1, uint16(i), 0, chunk, controlTimeout)
			}
		}
		if err != nil || sent != want {
			return ErrUsbUpload
		}

		if !recovery {
			if err := c.waitStatus(); err != nil {
				return err
			}
		}

		count += want
		c.reportProgress(bar, "Uploading", count, length)
	}

	if notifyFinished && !recovery {
		c.usb.Control(0x21, 1, 0, 0, nil, controlTimeout)
		for i := 0; i < 3; i++ {
			if _, err := c.GetStatus(); err != nil {
				return err
			}
		}
		c.Reset()
	}

	return nil
}

// SendFile uploads the contents of path. Transparent to the transfer
// engine; only the buffer source differs from SendBuffer.
func (c *Client) SendFile(path string, notifyFinished bool) error {
	if err := c.check(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ErrFileNotFound
	}
	return c.SendBuffer(data, notifyFinished)
}

// waitStatus polls until the device reports it consumed the packet.
// Bounded retry with a fixed pause; exhausting the budget fails the
// upload.
func (c *Client) waitStatus() error {
	status, err := c.GetStatus()
	if err != nil {
		return err
	}
	if status == dfuStatusReady {
		return nil
	}
	for retry := 0; retry < statusRetries; retry++ {
		status, _ = c.GetStatus()
		if status == dfuStatusReady {
			return nil
		}
		time.Sleep(statusRetryPause)
	}
	return ErrUsbUpload
}

// RecvBuffer downloads length bytes from the device. Reads always go
// through the control path regardless of mode; only the packet size is
// mode-dependent. A short read on any packet fails the download.
func (c *Client) RecvBuffer(length int) ([]byte, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	packetSize := recvPacketDFU
	if !c.mode.DFUFamily() {
		packetSize = recvPacketRecovery
	}
	last := length % packetSize
	packets := length / packetSize
	if last != 0 {
		packets++
	} else {
		last = packetSize
	}

	bar := c.transferBar(length, "Downloading")
	buf := make([]byte, length)
	count := 0
	for i := 0; i < packets; i++ {
		size := packetSize
		if i+1 == packets {
			size = last
		}

		n, err := c.usb.Control(0xA1, 2, 0, 0, buf[i*packetSize:i*packetSize+size], controlTimeout)
		if err != nil || n != size {
			return nil, ErrUsbUpload
		}

		count += size
		c.reportProgress(bar, "Downloading", count, length)
	}

	return buf, nil
}

// FinishTransfer signals end-of-transfer to a DFU device, drains the
// status phase and resets it.
func (c *Client) FinishTransfer() error {
	if err := c.check(); err != nil {
		return err
	}

	c.usb.Control(0x21, 1, 0, 0, nil, controlTimeout)
	for i := 0; i < 3; i++ {
		c.GetStatus()
	}
	return c.Reset()
}

// transferBar builds the console fallback bar, or nil when a progress
// callback will consume the events instead.
func (c *Client) transferBar(length int, desc string) *progressbar.ProgressBar {
	if _, ok := c.callbacks[EventProgress]; ok {
		return nil
	}
	return progressbar.NewOptions(length,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)
}

func (c *Client) reportProgress(bar *progressbar.ProgressBar, verb string, count, length int) {
	pct := float64(count) / float64(length) * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	if _, ok := c.callbacks[EventProgress]; ok {
		c.emit(&Event{
			Type:     EventProgress,
			Data:     []byte(verb),
			Size:     count,
			Progress: pct,
		})
		return
	}
	if bar != nil {
		bar.Set(min(count, length))
	}
}
