package manager

import "time"

// Snapshot is a read-only export of one instance's observable status.
type Snapshot struct {
	// Name is the registry name of the instance.
	Name string `json:"name"`
	// ID is the unique registration identifier assigned at creation.
	ID string `json:"id"`
	// State is the lifecycle state at snapshot time.
	State State `json:"state"`
	// CreatedAt is when the instance was registered.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the runtime started; zero if it never ran.
	StartedAt time.Time `json:"started_at,omitzero"`
	// Attrs are runtime-reported key-value attributes.
	Attrs map[string]string `json:"attrs,omitempty"`
	// Version is the engine version that produced the snapshot.
	Version string `json:"version"`
}

// Uptime returns how long the instance has been running, or zero if it
// never started.
func (s Snapshot) Uptime() time.Duration {
	if s.StartedAt.IsZero() || s.State != StateRunning {
		return 0
	}
	return time.Since(s.StartedAt)
}
