package device

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	nxerrors "github.com/go-i2p/netext/lib/errors"
)

// testPair creates a connected datagram socket pair standing in for a host
// packet device. Returns our end and the "host" end.
func testPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestValidate(t *testing.T) {
	local, _ := testPair(t)

	if err := Validate(local); err != nil {
		t.Errorf("valid descriptor rejected: %v", err)
	}
	if err := Validate(-1); !nxerrors.IsInvalidHandle(err) {
		t.Errorf("negative descriptor should be ErrInvalidHandle, got %v", err)
	}

	// A closed descriptor must be rejected
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	unix.Close(fds[0])
	unix.Close(fds[1])
	if err := Validate(fds[0]); !nxerrors.IsInvalidHandle(err) {
		t.Errorf("closed descriptor should be ErrInvalidHandle, got %v", err)
	}
}

func TestNew_InvalidMTU(t *testing.T) {
	local, _ := testPair(t)
	if _, err := New(local, 0, "utun9"); !nxerrors.IsInvalidHandle(err) {
		t.Errorf("zero MTU should be rejected, got %v", err)
	}
}

func TestTUN_Accessors(t *testing.T) {
	local, _ := testPair(t)
	tunDev, err := New(local, 1420, "utun9")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tunDev.Close()

	if tunDev.Fd() != local {
		t.Errorf("Fd() = %d, want %d", tunDev.Fd(), local)
	}
	if mtu, _ := tunDev.MTU(); mtu != 1420 {
		t.Errorf("MTU() = %d, want 1420", mtu)
	}
	if name, _ := tunDev.Name(); name != "utun9" {
		t.Errorf("Name() = %q, want %q", name, "utun9")
	}
	if tunDev.BatchSize() != 1 {
		t.Errorf("BatchSize() = %d, want 1", tunDev.BatchSize())
	}
	if tunDev.File() != nil {
		t.Error("File() must be nil: the descriptor is host-owned")
	}
}

func TestTUN_EmitsUpEvent(t *testing.T) {
	local, _ := testPair(t)
	tunDev, err := New(local, 1420, "utun9")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tunDev.Close()

	select {
	case ev := <-tunDev.Events():
		if ev == 0 {
			t.Error("expected a non-zero event")
		}
	case <-time.After(time.Second):
		t.Error("expected an initial up event")
	}
}

func TestTUN_ReadWrite(t *testing.T) {
	local, host := testPair(t)
	tunDev, err := New(local, 1420, "utun9")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tunDev.Close()

	// Host injects a packet; Read must deliver it at the offset
	packet := []byte{0x45, 0x00, 0x00, 0x14, 0xde, 0xad}
	if _, err := unix.Write(host, packet); err != nil {
		t.Fatalf("host write: %v", err)
	}

	const offset = 16
	bufs := [][]byte{make([]byte, offset+1500)}
	sizes := make([]int, 1)
	n, err := tunDev.Read(bufs, sizes, offset)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 1 || sizes[0] != len(packet) {
		t.Fatalf("Read returned n=%d size=%d, want 1 packet of %d bytes", n, sizes[0], len(packet))
	}
	if !bytes.Equal(bufs[0][offset:offset+sizes[0]], packet) {
		t.Error("Read payload does not match injected packet")
	}

	// Write must reach the host end
	out := make([]byte, offset+len(packet))
	copy(out[offset:], packet)
	if _, err := tunDev.Write([][]byte{out}, offset); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got := make([]byte, 1500)
	gn, err := unix.Read(host, got)
	if err != nil {
		t.Fatalf("host read: %v", err)
	}
	if !bytes.Equal(got[:gn], packet) {
		t.Error("host did not receive the written packet")
	}
}

func TestTUN_CloseUnblocksRead(t *testing.T) {
	local, _ := testPair(t)
	tunDev, err := New(local, 1420, "utun9")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	readErr := make(chan error, 1)
	go func() {
		bufs := [][]byte{make([]byte, 2048)}
		sizes := make([]int, 1)
		_, err := tunDev.Read(bufs, sizes, 0)
		readErr <- err
	}()

	// Give the reader time to park in poll
	time.Sleep(50 * time.Millisecond)
	tunDev.Close()

	select {
	case err := <-readErr:
		if !errors.Is(err, os.ErrClosed) {
			t.Errorf("blocked Read should fail with os.ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock a pending Read")
	}
}

func TestTUN_CloseLeavesDescriptorOpen(t *testing.T) {
	local, _ := testPair(t)
	tunDev, err := New(local, 1420, "utun9")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tunDev.Close()
	tunDev.Close() // idempotent

	// The host descriptor must still be usable after the wrapper is gone
	if _, err := unix.FcntlInt(uintptr(local), unix.F_GETFD, 0); err != nil {
		t.Errorf("wrapper Close closed the host descriptor: %v", err)
	}
}
