// Package puller implements the outbound Puller collaborator of §6: a
// synchronous pull(atom_tag, deadline_ns) -> [atom] call plus a
// receiver-registration side channel, and its default gRPC-backed
// implementation.
package puller

import (
	"context"
	"fmt"
	"sync"

	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

// Receiver is notified whenever a puller registered for atomTag should be
// invoked on a fixed schedule (registerReceiver's counterpart in §6).
type Receiver interface {
	OnPullNeeded(atomTag int32, deadlineNs int64)
}

// Registry tracks which atom tags have a receiver registered against which
// bucket size, mirroring registerReceiver/its inverse from §6. It is not
// itself a Puller; it only records registrations for callers to query.
type Registry struct {
	mu        sync.Mutex
	receivers map[int32]registration
}

type registration struct {
	bucketSizeNs int64
	receiver     Receiver
}

func NewRegistry() *Registry {
	return &Registry{receivers: map[int32]registration{}}
}

// RegisterReceiver records that receiver wants OnPullNeeded calls for
// atomTag every bucketSizeNs. A second registration for the same tag
// replaces the first (single active puller per tag, matching the original's
// one-puller-per-atom-tag model).
func (r *Registry) RegisterReceiver(atomTag int32, bucketSizeNs int64, receiver Receiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[atomTag] = registration{bucketSizeNs: bucketSizeNs, receiver: receiver}
}

// UnregisterReceiver removes atomTag's registration, if any.
func (r *Registry) UnregisterReceiver(atomTag int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.receivers, atomTag)
}

// BucketSizeFor returns the registered bucket size for atomTag, or false if
// no receiver is registered.
func (r *Registry) BucketSizeFor(atomTag int32) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.receivers[atomTag]
	return reg.bucketSizeNs, ok
}

// ErrDeadlineExceeded is returned by an implementation's Pull when the
// caller's deadline has already passed before a result could be produced.
var ErrDeadlineExceeded = fmt.Errorf("puller: deadline exceeded")

// Static is a fixed-response Puller useful for tests and for atom tags whose
// current value is computed in-process rather than fetched remotely.
type Static struct {
	Atoms []field.Atom
}

func (s Static) Pull(ctx context.Context, tag int32, deadlineNs int64) ([]field.Atom, error) {
	return s.Atoms, nil
}
