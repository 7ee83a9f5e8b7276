// Package device adapts a host-owned packet device descriptor into a TUN
// device usable by an instance runtime. The host retains ownership of the
// descriptor for its whole lifetime: this package never closes or duplicates
// it, it only registers it for read/write use while the instance is alive.
package device

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-i2p/logger"
	"golang.org/x/sys/unix"
	"golang.zx2c4.com/wireguard/tun"

	nxerrors "github.com/go-i2p/netext/lib/errors"
)

var log = logger.GetGoI2PLogger()

// Validate checks that a descriptor is plausibly usable as a packet device.
// The platform performs the real type check on first read/write; this catches
// the cheap caller errors (negative or closed descriptors) up front.
func Validate(fd int) error {
	if fd < 0 {
		return fmt.Errorf("%w: negative descriptor %d", nxerrors.ErrInvalidHandle, fd)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return fmt.Errorf("%w: descriptor %d: %v", nxerrors.ErrInvalidHandle, fd, err)
	}
	return nil
}

// TUN wraps a host-owned packet device descriptor as a tun.Device.
//
// Close tears down the wrapper's own state (the wake pipe and event channel)
// and unblocks pending reads, but leaves the wrapped descriptor open: the
// host decides when the device itself dies.
type TUN struct {
	fd   int
	mtu  int
	name string

	events chan tun.Event

	// wake pipe unblocks a poll-based Read when the wrapper closes
	wakeRead  int
	wakeWrite int

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps the given descriptor. The descriptor is switched to non-blocking
// mode so that reads can be interrupted without closing it.
func New(fd, mtu int, name string) (*TUN, error) {
	if err := Validate(fd); err != nil {
		return nil, err
	}
	if mtu <= 0 {
		return nil, fmt.Errorf("%w: mtu %d", nxerrors.ErrInvalidHandle, mtu)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("%w: descriptor %d: setting non-blocking: %v", nxerrors.ErrInvalidHandle, fd, err)
	}

	var pipeFds [2]int
	if err := unix.Pipe(pipeFds[:]); err != nil {
		return nil, fmt.Errorf("creating wake pipe: %w", err)
	}
	unix.SetNonblock(pipeFds[0], true)

	t := &TUN{
		fd:        fd,
		mtu:       mtu,
		name:      name,
		events:    make(chan tun.Event, 4),
		wakeRead:  pipeFds[0],
		wakeWrite: pipeFds[1],
		closed:    make(chan struct{}),
	}
	t.events <- tun.EventUp

	log.WithField("fd", fd).WithField("mtu", mtu).WithField("name", name).Debug("wrapped host packet device")
	return t, nil
}

// Fd returns the wrapped descriptor. Used by the manager to detect
// conflicting rebinds.
func (t *TUN) Fd() int {
	return t.fd
}

// File implements tun.Device. The descriptor is not exposed as an os.File
// because an os.File would close it when garbage collected.
func (t *TUN) File() *os.File {
	return nil
}

// Read implements tun.Device. It blocks in poll until a packet arrives or
// the wrapper is closed, then reads one packet into bufs[0][offset:].
func (t *TUN) Read(bufs [][]byte, sizes []int, offset int) (int, error) {
	for {
		select {
		case <-t.closed:
			return 0, os.ErrClosed
		default:
		}

		n, err := unix.Read(t.fd, bufs[0][offset:])
		if err == nil {
			if n == 0 {
				return 0, os.ErrClosed
			}
			sizes[0] = n
			return 1, nil
		}
		if err != unix.EAGAIN && err != unix.EINTR {
			return 0, fmt.Errorf("reading packet device: %w", err)
		}

		pollFds := []unix.PollFd{
			{Fd: int32(t.fd), Events: unix.POLLIN},
			{Fd: int32(t.wakeRead), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(pollFds, -1); err != nil && err != unix.EINTR {
			return 0, fmt.Errorf("polling packet device: %w", err)
		}
		if pollFds[1].Revents != 0 {
			return 0, os.ErrClosed
		}
	}
}

// Write implements tun.Device. Each buffer is written as one packet.
func (t *TUN) Write(bufs [][]byte, offset int) (int, error) {
	written := 0
	for _, buf := range bufs {
		for {
			if _, err := unix.Write(t.fd, buf[offset:]); err != nil {
				if err == unix.EAGAIN || err == unix.EINTR {
					pollFds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLOUT}}
					if _, perr := unix.Poll(pollFds, -1); perr != nil && perr != unix.EINTR {
						return written, fmt.Errorf("polling packet device: %w", perr)
					}
					continue
				}
				return written, fmt.Errorf("writing packet device: %w", err)
			}
			break
		}
		written++
	}
	return written, nil
}

// MTU implements tun.Device.
func (t *TUN) MTU() (int, error) {
	return t.mtu, nil
}

// Name implements tun.Device.
func (t *TUN) Name() (string, error) {
	return t.name, nil
}

// Events implements tun.Device.
func (t *TUN) Events() <-chan tun.Event {
	return t.events
}

// BatchSize implements tun.Device. Packets move one at a time.
func (t *TUN) BatchSize() int {
	return 1
}

// Close implements tun.Device. It releases the wrapper's resources and wakes
// pending reads. The wrapped descriptor stays open for the host.
func (t *TUN) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		// Wake any reader parked in poll
		unix.Write(t.wakeWrite, []byte{0})
		unix.Close(t.wakeWrite)
		unix.Close(t.wakeRead)
		close(t.events)
		log.WithField("fd", t.fd).Debug("released host packet device wrapper")
	})
	return nil
}
