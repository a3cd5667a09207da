package producer

import (
	"context"

	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

// Puller is the outbound collaborator a pull-sampled Gauge producer invokes
// to fetch the current value of a designated atom tag (§6 "Puller
// interface"). A default gRPC-backed implementation lives in package
// puller; tests substitute a fake.
type Puller interface {
	// Pull synchronously fetches the atoms currently available for tag,
	// blocking until either a result arrives or deadlineNs (wall-clock ns)
	// passes. A result that arrives after the deadline must not be
	// returned; callers additionally re-check the deadline themselves
	// since a slow Puller implementation may return late.
	Pull(ctx context.Context, tag int32, deadlineNs int64) ([]field.Atom, error)
}
