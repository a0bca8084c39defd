package irecv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
	"github.com/hashicorp/go-multierror"
)

// USBBackend opens devices through libusb via gousb. One backend owns one
// gousb context; transports opened from it must be closed before the
// backend itself.
type USBBackend struct {
	ctx *gousb.Context
}

// NewUSBBackend initializes libusb. gousb panics when the library cannot
// be loaded, so creation runs on a separate goroutine with a recover.
func NewUSBBackend() (*USBBackend, error) {
	resC := make(chan *gousb.Context)
	errC := make(chan error)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errC <- fmt.Errorf("%v", r)
			}
		}()

		resC <- gousb.NewContext()
	}()

	select {
	case err := <-errC:
		return nil, fmt.Errorf("failed to initialize USB: %w", err)
	case res := <-resC:
		return &USBBackend{ctx: res}, nil
	}
}

// Close releases the libusb context.
func (b *USBBackend) Close() error {
	return b.ctx.Close()
}

// Open scans for the first attached device matching the vendor id and any
// of the product ids. Per-product open failures are aggregated; if no
// product matches at all, ErrUnableToConnect is returned bare.
func (b *USBBackend) Open(vendor uint16, products []uint16) (Transport, uint16, error) {
	var errs error
	for _, pid := range products {
		dev, err := b.ctx.OpenDeviceWithVIDPID(gousb.ID(vendor), gousb.ID(pid))
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		if dev == nil {
			continue
		}
		// Interfaces on boot-mode devices may be bound by a kernel
		// driver (usbhid on some hosts); take them over.
		if err := dev.SetAutoDetach(true); err != nil {
			dev.Close()
			errs = multierror.Append(errs, err)
			continue
		}
		return &usbDevice{
			dev:    dev,
			ifaces: make(map[int]*gousb.Interface),
			inEps:  make(map[uint8]*gousb.InEndpoint),
			outEps: make(map[uint8]*gousb.OutEndpoint),
		}, pid, nil
	}
	if errs != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnableToConnect, errs)
	}
	return nil, 0, ErrUnableToConnect
}

// usbDevice implements Transport on top of one open gousb device.
type usbDevice struct {
	dev    *gousb.Device
	cfg    *gousb.Config
	ifaces map[int]*gousb.Interface
	inEps  map[uint8]*gousb.InEndpoint
	outEps map[uint8]*gousb.OutEndpoint
}

func (d *usbDevice) SetConfiguration(n int) error {
	if d.cfg != nil && d.cfg.Desc.Number == n {
		return nil
	}
	cfg, err := d.dev.Config(n)
	if err != nil {
		return ErrUsbConfiguration
	}
	d.cfg = cfg
	return nil
}

func (d *usbDevice) ClaimInterface(iface, alt int) error {
	if d.cfg == nil {
		return ErrUsbInterface
	}
	intf, err := d.cfg.Interface(iface, alt)
	if err != nil {
		return ErrUsbInterface
	}
	if old, ok := d.ifaces[iface]; ok {
		old.Close()
	}
	d.ifaces[iface] = intf
	return nil
}

func (d *usbDevice) ReleaseInterface(iface int) error {
	intf, ok := d.ifaces[iface]
	if !ok {
		return nil
	}
	intf.Close()
	delete(d.ifaces, iface)
	return nil
}

func (d *usbDevice) Control(rType, request uint8, val, idx uint16, data []byte, timeout time.Duration) (int, error) {
	d.dev.ControlTimeout = timeout
	n, err := d.dev.Control(rType, request, val, idx, data)
	if err != nil {
		return n, translateUSBError(err)
	}
	return n, nil
}

func (d *usbDevice) Bulk(endpoint uint8, data []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var n int
	var err error
	if endpoint&0x80 != 0 {
		var ep *gousb.InEndpoint
		ep, err = d.inEndpoint(endpoint)
		if err == nil {
			n, err = ep.ReadContext(ctx, data)
		}
	} else {
		var ep *gousb.OutEndpoint
		ep, err = d.outEndpoint(endpoint)
		if err == nil {
			n, err = ep.WriteContext(ctx, data)
		}
	}
	if err != nil {
		d.clearHalt(endpoint)
		return n, translateUSBError(err)
	}
	return n, nil
}

// clearHalt recovers a stalled endpoint with a standard
// CLEAR_FEATURE(ENDPOINT_HALT) request, the equivalent of
// libusb_clear_halt.
func (d *usbDevice) clearHalt(endpoint uint8) {
	d.dev.ControlTimeout = time.Second
	d.dev.Control(0x02, reqClearFeature, featEndpointHalt, uint16(endpoint), nil)
}

func (d *usbDevice) inEndpoint(endpoint uint8) (*gousb.InEndpoint, error) {
	if ep, ok := d.inEps[endpoint]; ok {
		return ep, nil
	}
	for _, intf := range d.ifaces {
		for _, desc := range intf.Setting.Endpoints {
			if uint8(desc.Address) != endpoint {
				continue
			}
			ep, err := intf.InEndpoint(desc.Number)
			if err != nil {
				return nil, err
			}
			d.inEps[endpoint] = ep
			return ep, nil
		}
	}
	return nil, gousb.ErrorNotFound
}

func (d *usbDevice) outEndpoint(endpoint uint8) (*gousb.OutEndpoint, error) {
	if ep, ok := d.outEps[endpoint]; ok {
		return ep, nil
	}
	for _, intf := range d.ifaces {
		for _, desc := range intf.Setting.Endpoints {
			if uint8(desc.Address) != endpoint {
				continue
			}
			ep, err := intf.OutEndpoint(desc.Number)
			if err != nil {
				return nil, err
			}
			d.outEps[endpoint] = ep
			return ep, nil
		}
	}
	return nil, gousb.ErrorNotFound
}

func (d *usbDevice) GetStringDescriptorASCII(index, max int) (string, error) {
	data := make([]byte, 255)
	n, err := d.Control(0x80, reqGetDescriptor,
		uint16(descTypeString)<<8|uint16(index), 0, data, time.Second)
	if err != nil {
		return "", err
	}
	return decodeStringDescriptor(data, n, max)
}

func (d *usbDevice) Reset() error {
	if err := d.dev.Reset(); err != nil {
		return ErrNoDevice
	}
	return nil
}

func (d *usbDevice) Close() error {
	for iface, intf := range d.ifaces {
		intf.Close()
		delete(d.ifaces, iface)
	}
	if d.cfg != nil {
		d.cfg.Close()
		d.cfg = nil
	}
	return d.dev.Close()
}

// translateUSBError maps gousb/libusb failures onto the package taxonomy.
func translateUSBError(err error) error {
	if err == nil {
		return nil
	}
	var gerr gousb.Error
	if errors.As(err, &gerr) {
		switch gerr {
		case gousb.ErrorPipe:
			return ErrPipe
		case gousb.ErrorTimeout:
			return ErrTimeout
		case gousb.ErrorNoDevice:
			return ErrNoDevice
		}
	}
	var terr gousb.TransferStatus
	if errors.As(err, &terr) {
		switch terr {
		case gousb.TransferStall:
			return ErrPipe
		case gousb.TransferTimedOut:
			return ErrTimeout
		case gousb.TransferNoDevice:
			return ErrNoDevice
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrUnknown
}
