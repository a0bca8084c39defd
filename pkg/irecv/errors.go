package irecv

// Err is the closed set of errors surfaced by this package. Lower layers
// translate backend failures into the most specific member; everything is
// returned as a value, never panicked.
type Err int

const (
	ErrNoDevice Err = iota + 1
	ErrOutOfMemory
	ErrUnableToConnect
	ErrInvalidInput
	ErrFileNotFound
	ErrUsbUpload
	ErrUsbStatus
	ErrUsbInterface
	ErrUsbConfiguration
	ErrPipe
	ErrTimeout
	ErrUnknown
)

func (e Err) Error() string {
	switch e {
	case ErrNoDevice:
		return "unable to find device"
	case ErrOutOfMemory:
		return "out of memory"
	case ErrUnableToConnect:
		return "unable to connect to device"
	case ErrInvalidInput:
		return "invalid input"
	case ErrFileNotFound:
		return "file not found"
	case ErrUsbUpload:
		return "unable to upload data to device"
	case ErrUsbStatus:
		return "unable to get device status"
	case ErrUsbInterface:
		return "unable to set device interface"
	case ErrUsbConfiguration:
		return "unable to set device configuration"
	case ErrPipe:
		return "broken pipe"
	case ErrTimeout:
		return "timeout talking to device"
	}
	return "unknown error"
}
