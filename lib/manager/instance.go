package manager

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-i2p/netext/lib/config"
	"github.com/go-i2p/netext/lib/device"
	"github.com/go-i2p/netext/lib/metrics"
	"github.com/go-i2p/netext/lib/runtime"
	"github.com/go-i2p/netext/version"
)

// State represents an instance's lifecycle state.
type State string

const (
	// StateCreated means the instance is registered but not yet bound or running.
	StateCreated State = "created"
	// StateBound means a host device is attached but the runtime is not up yet.
	StateBound State = "bound"
	// StateRunning means the instance runtime is operating.
	StateRunning State = "running"
	// StateStopped means the runtime has ceased; the instance cannot restart
	// and must be recreated.
	StateStopped State = "stopped"
)

// Instance is one managed overlay-network session. It is owned exclusively
// by the manager's registry; its runtime handle is released before the
// registry entry disappears.
type Instance struct {
	name string
	id   string
	cfg  *config.InstanceConfig

	// opMu serializes lifecycle operations (start, stop) which may block on
	// the runtime. mu guards field access and is never held across blocking
	// calls, so snapshots stay prompt while a start or stop is in flight.
	opMu sync.Mutex
	mu   sync.Mutex

	state     State
	fd        int
	dev       *device.TUN
	rt        runtime.Runtime
	stopping  bool
	pending   bool // hidden from snapshots until the initial start settles
	createdAt time.Time
	startedAt time.Time

	// tracks the running gauge so unexpected death and explicit stop
	// never decrement twice
	counted bool
}

func newInstance(name string, cfg *config.InstanceConfig) *Instance {
	return &Instance{
		name:      name,
		id:        uuid.NewString(),
		cfg:       cfg,
		state:     StateCreated,
		fd:        -1,
		createdAt: time.Now(),
	}
}

// markStoppedLocked transitions to Stopped and settles the running gauge.
// Caller holds inst.mu.
func (inst *Instance) markStoppedLocked() {
	inst.state = StateStopped
	if inst.counted {
		inst.counted = false
		metrics.InstancesRunning.Dec()
	}
}

// watchRuntime transitions the instance to Stopped if its runtime dies
// without an explicit stop.
func (inst *Instance) watchRuntime(rt runtime.Runtime) {
	<-rt.Done()

	inst.mu.Lock()
	unexpected := inst.state == StateRunning && !inst.stopping
	if unexpected {
		inst.markStoppedLocked()
	}
	inst.mu.Unlock()

	if unexpected {
		log.WithField("instance", inst.name).Warn("instance runtime stopped unexpectedly")
	}
}

// snapshot produces a point-in-time view of the instance. Computed fresh per
// request and never stored.
func (inst *Instance) snapshot() Snapshot {
	inst.mu.Lock()
	rt := inst.rt
	snap := Snapshot{
		Name:      inst.name,
		ID:        inst.id,
		State:     inst.state,
		CreatedAt: inst.createdAt,
		StartedAt: inst.startedAt,
		Version:   version.Version,
	}
	inst.mu.Unlock()

	// Status is prompt by contract; taken outside inst.mu anyway so a
	// misbehaving runtime cannot stall other snapshots.
	if rt != nil {
		snap.Attrs = rt.Status()
	}
	return snap
}
