package embedded

import (
	"encoding/json"
	"fmt"

	nxerrors "github.com/go-i2p/netext/lib/errors"
)

// KeyValue is one instance's status flattened for a fixed-capacity export:
// the key is the instance name and the value its status as JSON.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CollectInfoInto fills dst with one entry per registered instance, in
// registration order, and returns the number of entries written. Instances
// beyond dst's capacity are silently omitted; hosts size the buffer to the
// expected instance count or accept truncation.
//
// A nil or zero-capacity dst while instances are registered is a
// precondition violation. This variant exists for hosts that preserve a
// fixed-capacity boundary; Go callers should prefer CollectInfo.
func (e *Engine) CollectInfoInto(dst []KeyValue) (int, error) {
	snaps, err := e.mgr.CollectInfo(len(dst))
	if err != nil {
		return -1, e.fail("", err)
	}

	for i, snap := range snaps {
		data, err := json.Marshal(snap)
		if err != nil {
			return -1, e.fail(snap.Name, fmt.Errorf("%w: encoding snapshot: %v", nxerrors.ErrInternal, err))
		}
		dst[i] = KeyValue{Key: snap.Name, Value: string(data)}
	}
	return len(snaps), nil
}
