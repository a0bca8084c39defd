package irecv

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSendCommandTruncation(t *testing.T) {
	c, tr := newTestClient(ModeRecovery2, "")

	long := strings.Repeat("x", 300)
	if err := c.SendCommand(long); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	ops := tr.controls(0x40, 0)
	if len(ops) != 1 {
		t.Fatalf("got %d command transfers, want 1", len(ops))
	}
	data := ops[0].data
	if len(data) != maxCommandLen+1 {
		t.Errorf("wire length %d, want %d", len(data), maxCommandLen+1)
	}
	if data[len(data)-1] != 0 {
		t.Errorf("command not NUL-terminated")
	}
	if !bytes.Equal(data[:maxCommandLen], []byte(long[:maxCommandLen])) {
		t.Errorf("command payload mangled")
	}
}

func TestSendCommandEmpty(t *testing.T) {
	c, tr := newTestClient(ModeRecovery2, "")

	if err := c.SendCommand(""); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if ops := tr.controls(0x40, 0); len(ops) != 0 {
		t.Errorf("empty command reached the wire: %d transfers", len(ops))
	}
}

func TestSendCommandPrecommandVeto(t *testing.T) {
	c, tr := newTestClient(ModeRecovery2, "")

	post := 0
	c.Subscribe(EventPrecommand, func(_ *Client, _ *Event) int { return 1 })
	c.Subscribe(EventPostcommand, func(_ *Client, _ *Event) int {
		post++
		return 0
	})

	if err := c.SendCommand("go"); err != nil {
		t.Fatalf("vetoed SendCommand: %v", err)
	}
	if ops := tr.controls(0x40, 0); len(ops) != 0 {
		t.Errorf("vetoed command reached the wire: %d transfers", len(ops))
	}
	if post != 0 {
		t.Errorf("postcommand fired %d times after a precommand veto", post)
	}
}

func TestSendCommandHookOrder(t *testing.T) {
	c, _ := newTestClient(ModeRecovery2, "")

	var order []EventType
	hook := func(_ *Client, ev *Event) int {
		order = append(order, ev.Type)
		if string(ev.Data) != "printenv" {
			t.Errorf("hook saw command %q", ev.Data)
		}
		return 0
	}
	c.Subscribe(EventPrecommand, hook)
	c.Subscribe(EventPostcommand, hook)

	if err := c.SendCommand("printenv"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if len(order) != 2 || order[0] != EventPrecommand || order[1] != EventPostcommand {
		t.Errorf("hook order %v", order)
	}
}

func TestSendCommandBrokenPipe(t *testing.T) {
	c, tr := newTestClient(ModeRecovery2, "")
	tr.controlErr = map[[2]uint8]error{{0x40, 0}: ErrPipe}

	if err := c.SendCommand("reboot"); err != nil {
		t.Errorf("broken pipe not tolerated: %v", err)
	}

	tr.controlErr = map[[2]uint8]error{{0x40, 0}: ErrTimeout}
	if err := c.SendCommand("reboot"); !errors.Is(err, ErrTimeout) {
		t.Errorf("got %v, want ErrTimeout", err)
	}
}

func TestGetenv(t *testing.T) {
	c, tr := newTestClient(ModeRecovery2, "")
	tr.envValue = "RELEASE"

	value, err := c.Getenv("build-style")
	if err != nil {
		t.Fatalf("Getenv: %v", err)
	}
	if value != "RELEASE" {
		t.Errorf("got %q, want RELEASE", value)
	}

	ops := tr.controls(0x40, 0)
	if len(ops) != 1 || string(ops[0].data) != "getenv build-style\x00" {
		t.Errorf("bad query on the wire: %+v", ops)
	}
}

func TestGetenvEmptyVariable(t *testing.T) {
	c, _ := newTestClient(ModeRecovery2, "")
	if _, err := c.Getenv(""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
}

func TestGetenvBrokenPipe(t *testing.T) {
	c, tr := newTestClient(ModeRecovery2, "")
	tr.controlErr = map[[2]uint8]error{{0x40, 0}: ErrPipe}

	value, err := c.Getenv("build-style")
	if err != nil {
		t.Errorf("broken pipe not tolerated: %v", err)
	}
	if value != "" {
		t.Errorf("got %q, want empty value", value)
	}
}

func TestGetret(t *testing.T) {
	c, tr := newTestClient(ModeRecovery2, "")
	tr.envValue = string([]byte{0x2a, 0x00, 0x00, 0x00})

	ret, err := c.Getret()
	if err != nil {
		t.Fatalf("Getret: %v", err)
	}
	if ret != 0x2a {
		t.Errorf("got 0x%x, want 0x2a", ret)
	}
}

func TestSetenv(t *testing.T) {
	c, tr := newTestClient(ModeRecovery2, "")

	if err := c.Setenv("auto-boot", "true"); err != nil {
		t.Fatalf("Setenv: %v", err)
	}
	ops := tr.controls(0x40, 0)
	if len(ops) != 1 || string(ops[0].data) != "setenv auto-boot true\x00" {
		t.Errorf("bad command on the wire: %+v", ops)
	}

	if err := c.Setenv("", "true"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty variable: got %v, want ErrInvalidInput", err)
	}
	if err := c.Setenv("auto-boot", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty value: got %v, want ErrInvalidInput", err)
	}
}

func TestGetStatus(t *testing.T) {
	c, tr := newTestClient(ModeDFU, "")

	status, err := c.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != dfuStatusReady {
		t.Errorf("got status %d, want %d", status, dfuStatusReady)
	}

	tr.controlErr = map[[2]uint8]error{{0xA1, 3}: ErrTimeout}
	if _, err := c.GetStatus(); !errors.Is(err, ErrUsbStatus) {
		t.Errorf("got %v, want ErrUsbStatus", err)
	}
}

func TestReceive(t *testing.T) {
	c, tr := newTestClient(ModeRecovery2, "")
	tr.bulkQueue = [][]byte{[]byte("Entering recovery mode\n")}

	var got []byte
	c.Subscribe(EventReceived, func(_ *Client, ev *Event) int {
		got = append(got, ev.Data[:ev.Size]...)
		return 0
	})

	if err := c.Receive(); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != "Entering recovery mode\n" {
		t.Errorf("got %q", got)
	}
	// The short read ends the drain; the leftover queue entry would
	// only be reachable through another full-size chunk.
	if reads := tr.bulks(0x81); len(reads) != 1 {
		t.Errorf("%d drain reads, want 1", len(reads))
	}
}

func TestReceiveVeto(t *testing.T) {
	c, tr := newTestClient(ModeRecovery2, "")
	tr.bulkQueue = [][]byte{
		bytes.Repeat([]byte{'a'}, receiveBufferSize),
		bytes.Repeat([]byte{'b'}, receiveBufferSize),
	}

	c.Subscribe(EventReceived, func(_ *Client, _ *Event) int { return 1 })

	if err := c.Receive(); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if reads := tr.bulks(0x81); len(reads) != 1 {
		t.Errorf("drain kept reading past a veto: %d reads", len(reads))
	}
}

func TestExecuteScript(t *testing.T) {
	c, tr := newTestClient(ModeRecovery2, "")

	script := "# boot script\n\nsetenv auto-boot true\nsaveenv\r\n\nreboot\n"
	path := filepath.Join(t.TempDir(), "boot.cmd")
	if err := os.WriteFile(path, []byte(script), 0600); err != nil {
		t.Fatal(err)
	}

	if err := c.ExecuteScript(path); err != nil {
		t.Fatalf("ExecuteScript: %v", err)
	}

	ops := tr.controls(0x40, 0)
	want := []string{"setenv auto-boot true\x00", "saveenv\x00", "reboot\x00"}
	if len(ops) != len(want) {
		t.Fatalf("%d commands on the wire, want %d", len(ops), len(want))
	}
	for i, op := range ops {
		if string(op.data) != want[i] {
			t.Errorf("command %d: got %q, want %q", i, op.data, want[i])
		}
	}
}

func TestExecuteScriptMissing(t *testing.T) {
	c, _ := newTestClient(ModeRecovery2, "")
	err := c.ExecuteScript(filepath.Join(t.TempDir(), "nope.cmd"))
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("got %v, want ErrFileNotFound", err)
	}
}

func TestResetCounters(t *testing.T) {
	c, tr := newTestClient(ModeRecovery2, "")
	if err := c.ResetCounters(); err != nil {
		t.Fatalf("ResetCounters: %v", err)
	}
	if ops := tr.controls(0x21, 4); len(ops) != 0 {
		t.Errorf("recovery-mode reset-counters reached the wire")
	}

	c, tr = newTestClient(ModeDFU, "")
	if err := c.ResetCounters(); err != nil {
		t.Fatalf("ResetCounters: %v", err)
	}
	if ops := tr.controls(0x21, 4); len(ops) != 1 {
		t.Errorf("%d reset-counters transfers, want 1", len(ops))
	}
}
