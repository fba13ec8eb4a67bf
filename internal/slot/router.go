package slot

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// DefaultSlotCount is the default number of slots the keyspace is divided
// into. All nodes in a cluster must agree on this value.
const DefaultSlotCount = 10000

// Router maps storage-group/partition pairs to slots.
//
// Uses MurmurHash3 so that every node derives the same slot for the same
// data independently.
type Router struct {
	slotCount uint32
}

// NewRouter creates a router over the given slot count. Non-positive counts
// fall back to DefaultSlotCount.
func NewRouter(slotCount int) *Router {
	if slotCount <= 0 {
		slotCount = DefaultSlotCount
	}
	return &Router{slotCount: uint32(slotCount)}
}

// SlotCount returns the number of slots.
func (r *Router) SlotCount() uint32 {
	return r.slotCount
}

// SlotOf computes the slot for a storage group and partition number.
func (r *Router) SlotOf(storageGroup string, partition int64) uint32 {
	h := murmur3.New32()
	h.Write([]byte(storageGroup))

	var partBytes [8]byte
	binary.BigEndian.PutUint64(partBytes[:], uint64(partition))
	h.Write(partBytes[:])

	return h.Sum32() % r.slotCount
}
