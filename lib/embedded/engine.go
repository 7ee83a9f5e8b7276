package embedded

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-i2p/logger"

	"github.com/go-i2p/netext/lib/config"
	nxerrors "github.com/go-i2p/netext/lib/errors"
	"github.com/go-i2p/netext/lib/manager"
	"github.com/go-i2p/netext/lib/runtime"
	"github.com/go-i2p/netext/lib/status"
)

var log = logger.GetGoI2PLogger()

// Engine is the host-facing overlay engine. It owns an instance manager and
// an error slot, and mirrors the narrow boundary a platform network
// extension drives: submit configurations, bind packet devices, reconcile
// the running set, and poll status.
//
// Every fallible operation writes a human-readable message to the error slot
// before returning its failure, because the boundary's failure signal alone
// carries no diagnostics. The slot persists until overwritten; see
// [status.Slot].
type Engine struct {
	mgr     *manager.Manager
	errs    *status.Slot
	emitter *eventEmitter
}

// Config configures an Engine. Zero values use sensible defaults.
type Config struct {
	// DevicePolicy controls whether instances wait for a bound host device
	// before running. Default: manager.RequireDevice.
	DevicePolicy manager.DevicePolicy

	// RuntimeFactory builds instance runtimes. Default: the WireGuard
	// runtime. Substitutable for testing.
	RuntimeFactory runtime.Factory

	// ErrorSlot receives failure messages. Default: a fresh slot. Inject a
	// shared slot only when several engines must report through one channel.
	ErrorSlot *status.Slot

	// EventBufferSize is the size of the event channel buffer. Default: 100.
	EventBufferSize int
}

// Option is a functional option for configuring an Engine.
type Option func(*Config)

// WithDevicePolicy sets the device binding policy.
func WithDevicePolicy(p manager.DevicePolicy) Option {
	return func(c *Config) {
		c.DevicePolicy = p
	}
}

// WithRuntimeFactory sets the runtime factory.
func WithRuntimeFactory(f runtime.Factory) Option {
	return func(c *Config) {
		c.RuntimeFactory = f
	}
}

// WithErrorSlot sets the error slot.
func WithErrorSlot(s *status.Slot) Option {
	return func(c *Config) {
		c.ErrorSlot = s
	}
}

// WithEventBufferSize sets the event channel buffer size.
func WithEventBufferSize(size int) Option {
	return func(c *Config) {
		c.EventBufferSize = size
	}
}

// New creates an engine with the given options.
func New(opts ...Option) *Engine {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.RuntimeFactory == nil {
		cfg.RuntimeFactory = runtime.DefaultFactory
	}
	if cfg.ErrorSlot == nil {
		cfg.ErrorSlot = status.NewSlot()
	}

	return &Engine{
		mgr: manager.New(
			manager.WithDevicePolicy(cfg.DevicePolicy),
			manager.WithRuntimeFactory(cfg.RuntimeFactory),
		),
		errs:    cfg.ErrorSlot,
		emitter: newEventEmitter(cfg.EventBufferSize),
	}
}

// ParseConfig validates a configuration document without creating an
// instance. Hosts call this to vet a document before committing to it.
func (e *Engine) ParseConfig(doc string) error {
	if _, err := config.Parse(doc); err != nil {
		return e.fail("", err)
	}
	return nil
}

// RunInstance registers and brings up an instance from a configuration
// document. Re-running a registered name is a no-op success. Under the
// RequireDevice policy the runtime starts when SetTunFd completes.
func (e *Engine) RunInstance(ctx context.Context, name, doc string) error {
	cfg, err := config.Parse(doc)
	if err != nil {
		return e.fail(name, err)
	}

	if err := e.mgr.CreateAndStart(ctx, name, cfg); err != nil {
		return e.fail(name, err)
	}

	e.emitter.emitInstance(EventInstanceCreated, name, "instance registered")
	if snap, err := e.mgr.Info(name); err == nil && snap.State == manager.StateRunning {
		e.emitter.emitInstance(EventInstanceStarted, name, "instance running")
	}
	return nil
}

// SetTunFd binds a host-owned packet device descriptor to the named
// instance. The descriptor stays owned by the host; the engine never closes
// it. Under the RequireDevice policy a successful bind starts the runtime.
func (e *Engine) SetTunFd(ctx context.Context, name string, fd int) error {
	if err := e.mgr.BindDevice(ctx, name, fd); err != nil {
		return e.fail(name, err)
	}

	e.emitter.emitInstance(EventDeviceBound, name, fmt.Sprintf("device descriptor %d bound", fd))
	if snap, err := e.mgr.Info(name); err == nil && snap.State == manager.StateRunning {
		e.emitter.emitInstance(EventInstanceStarted, name, "instance running")
	}
	return nil
}

// Stop tears down the named instance and removes it. Stopping an absent
// instance is a no-op success.
func (e *Engine) Stop(ctx context.Context, name string) error {
	if err := e.mgr.Stop(ctx, name); err != nil {
		return e.fail(name, err)
	}
	e.emitter.emitInstance(EventInstanceStopped, name, "instance stopped")
	return nil
}

// StopAll tears down every registered instance.
func (e *Engine) StopAll(ctx context.Context) error {
	if err := e.mgr.StopAll(ctx); err != nil {
		return e.fail("", err)
	}
	return nil
}

// Retain reconciles the registry to exactly the given set of names: every
// instance not listed is stopped and removed. Retain never creates.
func (e *Engine) Retain(ctx context.Context, names ...string) error {
	if err := e.mgr.Retain(ctx, names...); err != nil {
		return e.fail("", err)
	}
	return nil
}

// CollectInfo returns up to max instance snapshots in registration order.
func (e *Engine) CollectInfo(max int) ([]manager.Snapshot, error) {
	snaps, err := e.mgr.CollectInfo(max)
	if err != nil {
		return nil, e.fail("", err)
	}
	return snaps, nil
}

// RunningInfo returns one instance's status as a JSON document.
func (e *Engine) RunningInfo(name string) (string, error) {
	snap, err := e.mgr.Info(name)
	if err != nil {
		return "", e.fail(name, err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", e.fail(name, fmt.Errorf("%w: encoding snapshot: %v", nxerrors.ErrInternal, err))
	}
	return string(data), nil
}

// LastError returns the most recently recorded failure message, or the
// empty string if none. Reading does not clear the slot; only a newer
// failure overwrites it.
func (e *Engine) LastError() string {
	return e.errs.Last()
}

// ErrorSlot returns the engine's error slot.
func (e *Engine) ErrorSlot() *status.Slot {
	return e.errs
}

// Events returns a channel that receives engine events. The channel is
// buffered and drops events when not consumed; use DroppedEventCount to
// detect that.
func (e *Engine) Events() <-chan Event {
	return e.emitter.channel()
}

// DroppedEventCount returns the number of events dropped due to a full buffer.
func (e *Engine) DroppedEventCount() uint64 {
	return e.emitter.droppedEvents()
}

// Len returns the number of registered instances.
func (e *Engine) Len() int {
	return e.mgr.Len()
}

// Close stops all instances and closes the event channel.
func (e *Engine) Close(ctx context.Context) error {
	err := e.mgr.Close(ctx)
	if err != nil {
		e.errs.Record(err)
	}
	e.emitter.close()
	log.Debug("engine closed")
	return err
}

// fail records the failure in the error slot and emits an error event.
func (e *Engine) fail(instance string, err error) error {
	e.errs.Record(err)
	e.emitter.emitError(instance, err)
	if instance != "" {
		log.WithField("instance", instance).WithError(err).Debug("boundary operation failed")
	} else {
		log.WithError(err).Debug("boundary operation failed")
	}
	return err
}
