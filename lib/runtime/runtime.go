// Package runtime defines the instance runtime capability supervised by the
// instance manager, and a WireGuard-backed implementation of it. The manager
// treats a runtime as an opaque unit with start/stop/status operations; any
// implementation of Runtime is substitutable, which is how the manager is
// unit-tested without real networking.
package runtime

import (
	"context"

	"github.com/go-i2p/logger"
	"golang.zx2c4.com/wireguard/tun"

	"github.com/go-i2p/netext/lib/config"
)

var log = logger.GetGoI2PLogger()

// Runtime is one instance's overlay execution unit.
//
// Start and Stop may block on connectivity setup and teardown; callers own
// their timeout strategy via the context. Status must return promptly and
// never block on network activity.
type Runtime interface {
	// Start begins overlay operation. The context bounds startup, not the
	// runtime's lifetime.
	Start(ctx context.Context) error

	// Stop ceases operation and releases the runtime's resources. Safe to
	// call more than once; later calls are no-ops.
	Stop(ctx context.Context) error

	// Status reports observable runtime attributes as key-value pairs.
	Status() map[string]string

	// Done is closed when the runtime stops, expectedly or not.
	Done() <-chan struct{}
}

// Factory creates a runtime for a validated configuration. dev is the bound
// host packet device, or nil on device-less platforms (the runtime then
// provides its own userspace device).
type Factory func(cfg *config.InstanceConfig, dev tun.Device) (Runtime, error)

// DefaultFactory builds the WireGuard-backed runtime.
func DefaultFactory(cfg *config.InstanceConfig, dev tun.Device) (Runtime, error) {
	return NewWireGuard(cfg, dev)
}
