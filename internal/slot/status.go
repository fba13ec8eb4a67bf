package slot

import (
	"github.com/quartzite-io/quartzite-go/pkg/cmap"
)

// Status is the catch-up state of one slot.
type Status uint8

const (
	// StatusNull means the slot is fully served locally; no special handling.
	StatusNull Status = iota

	// StatusPulling means the slot's data is being replicated in; reads and
	// writes of this slot must be deferred or forwarded to the remote owner.
	StatusPulling

	// StatusPullingWritable means partition version floors have been advanced
	// so new local writes can interleave safely with the ongoing pull; reads
	// may still need the remote owner until the status returns to Null.
	StatusPullingWritable
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusNull:
		return "null"
	case StatusPulling:
		return "pulling"
	case StatusPullingWritable:
		return "pulling_writable"
	default:
		return "unknown"
	}
}

// StatusStore is the shared per-slot status table. All operations are
// slot-scoped; there is no global lock across unrelated slots.
type StatusStore struct {
	statuses *cmap.Map[uint32, Status]
}

// NewStatusStore creates an empty status table. Absent slots are Null.
func NewStatusStore() *StatusStore {
	return &StatusStore{
		statuses: cmap.New[uint32, Status](),
	}
}

// Get returns the status of a slot.
func (s *StatusStore) Get(slot uint32) Status {
	status, ok := s.statuses.Get(slot)
	if !ok {
		return StatusNull
	}
	return status
}

// SetPulling marks a slot as being pulled from a remote owner.
func (s *StatusStore) SetPulling(slot uint32) {
	s.statuses.Set(slot, StatusPulling)
}

// SetPullingWritable transitions a slot from Pulling to PullingWritable.
// Any other current status is left unchanged and an absent slot stays
// absent, so racing installers and repeated calls are harmless.
func (s *StatusStore) SetPullingWritable(slot uint32) {
	s.statuses.Update(slot, func(cur Status, exists bool) (Status, bool) {
		if exists && cur == StatusPulling {
			return StatusPullingWritable, true
		}
		return cur, false
	})
}

// Clear resets a slot to Null. Valid from any state.
func (s *StatusStore) Clear(slot uint32) {
	s.statuses.Delete(slot)
}

// Counts returns the number of slots currently in each non-Null status.
func (s *StatusStore) Counts() (pulling, pullingWritable int) {
	s.statuses.Range(func(_ uint32, status Status) bool {
		switch status {
		case StatusPulling:
			pulling++
		case StatusPullingWritable:
			pullingWritable++
		}
		return true
	})
	return pulling, pullingWritable
}
