package irecv

import (
	"time"
)

// fakeOp records one transfer issued against the fake transport.
type fakeOp struct {
	kind     string // "control" or "bulk"
	rType    uint8
	request  uint8
	val      uint16
	idx      uint16
	endpoint uint8
	data     []byte // payload copy for host-to-device transfers
	length   int
}

// fakeTransport is an in-memory Transport that records every transfer
// and plays back scripted device behavior.
type fakeTransport struct {
	ops []fakeOp

	serial   string
	envValue string

	// statusSeq feeds successive GetStatus reads; exhausted, the
	// device reports ready (5) forever.
	statusSeq   []int
	statusReads int

	// controlErr fails control transfers matching (rType, request).
	controlErr map[[2]uint8]error

	// probeFail makes the DFU upload-begin probe return a short read.
	probeFail bool
	// recvShort makes download reads come back one byte short.
	recvShort bool
	// bulkQueue feeds successive 0x81 drain reads.
	bulkQueue [][]byte

	configs  []int
	claims   [][2]int
	released []int
	resets   int
	closed   int
}

func (f *fakeTransport) SetConfiguration(n int) error {
	f.configs = append(f.configs, n)
	return nil
}

func (f *fakeTransport) ClaimInterface(iface, alt int) error {
	f.claims = append(f.claims, [2]int{iface, alt})
	return nil
}

func (f *fakeTransport) ReleaseInterface(iface int) error {
	f.released = append(f.released, iface)
	return nil
}

func (f *fakeTransport) Control(rType, request uint8, val, idx uint16, data []byte, _ time.Duration) (int, error) {
	op := fakeOp{
		kind:    "control",
		rType:   rType,
		request: request,
		val:     val,
		idx:     idx,
		length:  len(data),
	}
	if rType&0x80 == 0 && len(data) > 0 {
		op.data = append([]byte(nil), data...)
	}
	f.ops = append(f.ops, op)

	if err, ok := f.controlErr[[2]uint8{rType, request}]; ok {
		return 0, err
	}

	if rType&0x80 == 0 {
		return len(data), nil
	}

	// Device-to-host requests.
	switch {
	case rType == 0xA1 && request == 3:
		if len(data) < 6 {
			return len(data), nil
		}
		data[4] = byte(f.nextStatus())
		return 6, nil
	case rType == 0xA1 && request == 5:
		if f.probeFail {
			return 0, nil
		}
		data[0] = 2 // dfuIDLE-ish; value is not inspected
		return 1, nil
	case rType == 0xA1 && request == 2:
		n := len(data)
		if f.recvShort && n > 0 {
			n--
		}
		for i := 0; i < n; i++ {
			data[i] = byte(i)
		}
		return n, nil
	case rType == 0xC0 && request == 0:
		n := copy(data, f.envValue)
		return n, nil
	}
	return len(data), nil
}

func (f *fakeTransport) nextStatus() int {
	defer func() { f.statusReads++ }()
	if f.statusReads < len(f.statusSeq) {
		return f.statusSeq[f.statusReads]
	}
	return dfuStatusReady
}

func (f *fakeTransport) Bulk(endpoint uint8, data []byte, _ time.Duration) (int, error) {
	op := fakeOp{kind: "bulk", endpoint: endpoint, length: len(data)}
	if endpoint&0x80 == 0 {
		op.data = append([]byte(nil), data...)
		f.ops = append(f.ops, op)
		return len(data), nil
	}
	f.ops = append(f.ops, op)
	if len(f.bulkQueue) == 0 {
		return 0, ErrTimeout
	}
	chunk := f.bulkQueue[0]
	f.bulkQueue = f.bulkQueue[1:]
	return copy(data, chunk), nil
}

func (f *fakeTransport) GetStringDescriptorASCII(index, max int) (string, error) {
	if len(f.serial) > max {
		return f.serial[:max], nil
	}
	return f.serial, nil
}

func (f *fakeTransport) Reset() error {
	f.resets++
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

// controls filters recorded control transfers by request shape.
func (f *fakeTransport) controls(rType, request uint8) []fakeOp {
	var out []fakeOp
	for _, op := range f.ops {
		if op.kind == "control" && op.rType == rType && op.request == request {
			out = append(out, op)
		}
	}
	return out
}

func (f *fakeTransport) bulks(endpoint uint8) []fakeOp {
	var out []fakeOp
	for _, op := range f.ops {
		if op.kind == "bulk" && op.endpoint == endpoint {
			out = append(out, op)
		}
	}
	return out
}

type fakeBackend struct {
	tr  *fakeTransport
	pid uint16
	err error
}

func (b *fakeBackend) Open(vendor uint16, products []uint16) (Transport, uint16, error) {
	if b.err != nil {
		return nil, 0, b.err
	}
	return b.tr, b.pid, nil
}

// newTestClient opens a client over a fresh fake transport in the given
// mode, with retry pauses zeroed out.
func newTestClient(mode Mode, serial string) (*Client, *fakeTransport) {
	openRetryPause = 0
	statusRetryPause = 0

	tr := &fakeTransport{serial: serial}
	c, err := Open(&fakeBackend{tr: tr, pid: uint16(mode)})
	if err != nil {
		panic(err)
	}
	// Discovery-time ops are not interesting to the tests.
	tr.ops = nil
	return c, tr
}
