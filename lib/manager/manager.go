// Package manager owns the registry of named overlay-network instances and
// drives their lifecycle: create, bind, start, stop, and reconcile to a
// desired set. It is safe for concurrent use from multiple host threads.
//
// Operations on the same instance name observe a total order; operations on
// different names proceed concurrently. CollectInfo never blocks on a
// starting or stopping runtime.
package manager

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"golang.zx2c4.com/wireguard/tun"

	"github.com/go-i2p/netext/lib/config"
	"github.com/go-i2p/netext/lib/device"
	nxerrors "github.com/go-i2p/netext/lib/errors"
	"github.com/go-i2p/netext/lib/metrics"
	"github.com/go-i2p/netext/lib/runtime"
	"github.com/go-i2p/netext/lib/validation"
)

var log = logger.GetGoI2PLogger()

// DevicePolicy controls whether instances need a host packet device before
// their runtime may run.
type DevicePolicy int

const (
	// RequireDevice defers the runtime start until a device is bound.
	// CreateAndStart registers the instance and BindDevice brings it up.
	// This is the default: network-extension hosts own the packet device.
	RequireDevice DevicePolicy = iota

	// AllowDeviceless starts the runtime immediately on a userspace
	// netstack device; no host binding is needed.
	AllowDeviceless
)

// Manager supervises named overlay-network instances.
type Manager struct {
	mu        sync.Mutex
	instances map[string]*Instance
	order     []string
	closed    bool

	factory runtime.Factory
	policy  DevicePolicy
}

// Option configures a Manager.
type Option func(*Manager)

// WithRuntimeFactory replaces the runtime factory. Used to substitute a fake
// runtime in tests or an alternative overlay engine.
func WithRuntimeFactory(f runtime.Factory) Option {
	return func(m *Manager) {
		m.factory = f
	}
}

// WithDevicePolicy sets the device binding policy.
func WithDevicePolicy(p DevicePolicy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// New creates an empty instance manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		instances: make(map[string]*Instance),
		factory:   runtime.DefaultFactory,
		policy:    RequireDevice,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateAndStart registers a new instance under name. If the name is already
// registered this is a no-op success and the existing instance is untouched.
//
// Under AllowDeviceless the runtime starts before this call returns; a
// startup failure leaves no instance registered. Under RequireDevice the
// instance is registered awaiting BindDevice, which brings it up.
func (m *Manager) CreateAndStart(ctx context.Context, name string, cfg *config.InstanceConfig) error {
	if err := validation.InstanceName("name", name); err != nil {
		return fmt.Errorf("%w: %v", nxerrors.ErrConfiguration, err)
	}
	if cfg == nil {
		return fmt.Errorf("%w: nil configuration", nxerrors.ErrConfiguration)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nxerrors.ErrManagerClosed
	}
	if _, ok := m.instances[name]; ok {
		m.mu.Unlock()
		log.WithField("instance", name).Debug("instance already registered, create is a no-op")
		return nil
	}
	inst := newInstance(name, cfg)
	// Under AllowDeviceless the entry reserves the name but stays invisible
	// to snapshots until the start outcome is settled, so a create that
	// fails and rolls back is never observed.
	inst.pending = m.policy == AllowDeviceless
	m.instances[name] = inst
	m.order = append(m.order, name)
	m.mu.Unlock()

	metrics.InstancesRegistered.Inc()
	log.WithField("instance", name).WithField("id", inst.id).Info("instance registered")

	if m.policy == RequireDevice {
		// Runtime comes up when the host binds its packet device.
		return nil
	}

	if err := m.startInstance(ctx, inst, nil); err != nil {
		m.removeEntry(name)
		metrics.InstanceErrors.Inc()
		return err
	}
	return nil
}

// BindDevice attaches a host-owned packet device descriptor to the named
// instance. Rebinding the same descriptor is a no-op success; binding a
// different one while bound fails with ErrAlreadyBound. The descriptor is
// never closed or duplicated; the host retains its lifetime.
//
// Under RequireDevice a successful bind starts the instance runtime.
func (m *Manager) BindDevice(ctx context.Context, name string, fd int) error {
	if err := device.Validate(fd); err != nil {
		metrics.DeviceBindErrors.Inc()
		return fmt.Errorf("instance %q: %w", name, err)
	}

	inst, err := m.lookup(name)
	if err != nil {
		metrics.DeviceBindErrors.Inc()
		return err
	}

	inst.mu.Lock()
	switch {
	case inst.fd == fd:
		// Same handle twice is a no-op in any state.
		inst.mu.Unlock()
		return nil
	case inst.fd >= 0:
		inst.mu.Unlock()
		metrics.DeviceBindErrors.Inc()
		return fmt.Errorf("instance %q: %w: descriptor %d is attached", name, nxerrors.ErrAlreadyBound, fd)
	case inst.state != StateCreated:
		inst.mu.Unlock()
		metrics.DeviceBindErrors.Inc()
		return fmt.Errorf("instance %q: %w: cannot bind in state %s", name, nxerrors.ErrInvalidState, inst.state)
	}
	inst.mu.Unlock()

	tunDev, err := device.New(fd, inst.cfg.MTU(), name)
	if err != nil {
		metrics.DeviceBindErrors.Inc()
		return fmt.Errorf("instance %q: %w", name, err)
	}

	inst.mu.Lock()
	if inst.fd >= 0 {
		// Lost a race with another bind.
		same := inst.fd == fd
		inst.mu.Unlock()
		tunDev.Close()
		if same {
			return nil
		}
		metrics.DeviceBindErrors.Inc()
		return fmt.Errorf("instance %q: %w", name, nxerrors.ErrAlreadyBound)
	}
	if inst.stopping || inst.state != StateCreated {
		// Lost a race with a stop; a runtime started now would outlive its
		// registry entry.
		state := inst.state
		inst.mu.Unlock()
		tunDev.Close()
		metrics.DeviceBindErrors.Inc()
		return fmt.Errorf("instance %q: %w: bind raced a stop (state %s)", name, nxerrors.ErrInvalidState, state)
	}
	inst.fd = fd
	inst.dev = tunDev
	inst.state = StateBound
	inst.mu.Unlock()

	metrics.DeviceBinds.Inc()
	log.WithField("instance", name).WithField("fd", fd).Info("device bound")

	if m.policy != RequireDevice {
		return nil
	}

	if err := m.startInstance(ctx, inst, tunDev); err != nil {
		// Unwind the binding so the host may retry; the instance stays
		// registered and unbound. A stop that won the race has already torn
		// the binding down, so only a still-Bound instance is reset.
		inst.mu.Lock()
		if inst.state == StateBound {
			inst.dev = nil
			inst.fd = -1
			inst.state = StateCreated
		}
		inst.mu.Unlock()
		tunDev.Close()
		metrics.InstanceErrors.Inc()
		return err
	}
	return nil
}

// Stop signals the named instance's runtime to cease, releases its runtime
// handle and device binding, and removes the registry entry. Stopping an
// absent or already-stopping instance is a no-op success, so duplicate stop
// calls collapse into one effective teardown.
func (m *Manager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	inst, ok := m.instances[name]
	m.mu.Unlock()
	if !ok {
		log.WithField("instance", name).Debug("stop of unregistered instance is a no-op")
		return nil
	}

	inst.mu.Lock()
	if inst.stopping {
		inst.mu.Unlock()
		return nil
	}
	inst.stopping = true
	inst.mu.Unlock()

	inst.opMu.Lock()
	defer inst.opMu.Unlock()

	inst.mu.Lock()
	rt := inst.rt
	inst.mu.Unlock()

	if rt != nil {
		if err := rt.Stop(ctx); err != nil {
			// Teardown did not complete; leave the entry in place so the
			// host can retry.
			inst.mu.Lock()
			inst.stopping = false
			inst.mu.Unlock()
			metrics.InstanceErrors.Inc()
			return fmt.Errorf("instance %q: %w", name, err)
		}
	}

	inst.mu.Lock()
	if inst.dev != nil {
		inst.dev.Close()
		inst.dev = nil
	}
	inst.fd = -1
	inst.rt = nil
	inst.markStoppedLocked()
	inst.mu.Unlock()

	m.removeEntry(name)
	metrics.InstanceStops.Inc()
	log.WithField("instance", name).Info("instance stopped")
	return nil
}

// StopAll stops every registered instance. Each teardown is independent;
// one failure does not roll back the others.
func (m *Manager) StopAll(ctx context.Context) error {
	return m.Retain(ctx)
}

// Retain reconciles the registry to exactly the given set: every registered
// instance whose name is not listed is stopped and removed. It never creates
// instances; names in the set that are not registered stay absent.
func (m *Manager) Retain(ctx context.Context, names ...string) error {
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}

	var errs []error
	for _, name := range m.Names() {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := m.Stop(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return nxerrors.Join(errs...)
}

// CollectInfo produces at most max snapshots, one per registered instance,
// in registration order. Excess instances are silently omitted. A
// non-positive max while instances exist is a precondition violation.
func (m *Manager) CollectInfo(max int) ([]Snapshot, error) {
	m.mu.Lock()
	insts := make([]*Instance, 0, len(m.order))
	for _, name := range m.order {
		inst := m.instances[name]
		inst.mu.Lock()
		pending := inst.pending
		inst.mu.Unlock()
		if !pending {
			insts = append(insts, inst)
		}
	}
	m.mu.Unlock()

	if max <= 0 {
		if len(insts) > 0 {
			return nil, fmt.Errorf("%w: capacity %d with %d instances registered", nxerrors.ErrInvalidBuffer, max, len(insts))
		}
		return nil, nil
	}
	if len(insts) > max {
		insts = insts[:max]
	}

	snaps := make([]Snapshot, 0, len(insts))
	for _, inst := range insts {
		snaps = append(snaps, inst.snapshot())
	}
	return snaps, nil
}

// Info returns a snapshot of one instance.
func (m *Manager) Info(name string) (Snapshot, error) {
	inst, err := m.lookup(name)
	if err != nil {
		return Snapshot{}, err
	}
	inst.mu.Lock()
	pending := inst.pending
	inst.mu.Unlock()
	if pending {
		return Snapshot{}, fmt.Errorf("%w: %q", nxerrors.ErrUnknownInstance, name)
	}
	return inst.snapshot(), nil
}

// Names returns the registered instance names in registration order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.order)
}

// Len returns the number of registered instances.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

// Close stops all instances and rejects further registrations.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.StopAll(ctx)
}

// lookup finds a registered instance.
func (m *Manager) lookup(name string) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", nxerrors.ErrUnknownInstance, name)
	}
	return inst, nil
}

// removeEntry drops a registry entry. The caller has already released the
// instance's runtime handle and device binding.
func (m *Manager) removeEntry(name string) {
	m.mu.Lock()
	if _, ok := m.instances[name]; ok {
		delete(m.instances, name)
		m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
		metrics.InstancesRegistered.Dec()
	}
	m.mu.Unlock()
}

// startInstance builds and starts the instance runtime. dev is nil for
// device-less operation. Serialized per instance via opMu.
func (m *Manager) startInstance(ctx context.Context, inst *Instance, dev *device.TUN) error {
	inst.opMu.Lock()
	defer inst.opMu.Unlock()

	inst.mu.Lock()
	if inst.stopping || inst.state == StateRunning || inst.state == StateStopped {
		state := inst.state
		inst.mu.Unlock()
		return fmt.Errorf("instance %q: %w: cannot start in state %s", inst.name, nxerrors.ErrInvalidState, state)
	}
	inst.mu.Unlock()

	rt, err := m.factory(inst.cfg, devOrNil(dev))
	if err != nil {
		return fmt.Errorf("instance %q: %w: %v", inst.name, nxerrors.ErrRuntimeStart, err)
	}

	began := time.Now()
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("instance %q: %w", inst.name, err)
	}
	metrics.StartDuration.Observe(time.Since(began).Seconds())

	inst.mu.Lock()
	inst.rt = rt
	inst.state = StateRunning
	inst.startedAt = time.Now()
	inst.counted = true
	inst.pending = false
	inst.mu.Unlock()

	metrics.InstanceStarts.Inc()
	metrics.InstancesRunning.Inc()
	go inst.watchRuntime(rt)

	log.WithField("instance", inst.name).Info("instance running")
	return nil
}

// devOrNil converts a possibly-nil *device.TUN to the runtime factory's
// interface argument without producing a non-nil interface holding nil.
func devOrNil(dev *device.TUN) tun.Device {
	if dev == nil {
		return nil
	}
	return dev
}
