package anomaly

import (
	"context"
	"strconv"

	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
)

// Scheduler is the outbound collaborator an AlarmTracker uses to schedule a
// wall-clock wakeup and be told when it fires (§4.9 "Alarm variant", §6
// "AlarmScheduler"). Handles are caller-chosen and stable so CancelAlarm can
// address a previously-set alarm.
type Scheduler interface {
	SetAlarm(ctx context.Context, handle string, atWallNs int64, onFire func(firedAtNs int64)) error
	CancelAlarm(handle string)
}

// AlarmTracker adds the duration-metric alarm variant on top of a Tracker:
// when the linked duration is actively accumulating, it schedules an alarm
// for the wall-clock time at which the threshold would be breached if the
// accumulation continues uninterrupted, so a breach is still detected even
// if no further atoms arrive to trigger re-evaluation.
type AlarmTracker struct {
	*Tracker
	Scheduler Scheduler

	handles map[uint64]string
}

func NewAlarmTracker(t *Tracker, s Scheduler) *AlarmTracker {
	return &AlarmTracker{Tracker: t, Scheduler: s, handles: map[uint64]string{}}
}

func handleFor(metricID int64, key dimension.Key) string {
	return strconv.FormatInt(metricID, 16) + ":" + strconv.FormatUint(key.Hash(), 16)
}

// StartAlarm schedules (or replaces) an alarm for key projected to breach at
// projectedBreachNs. The alarm's onFire re-runs DetectAndDeclare with the
// value it would have reached at that instant.
func (a *AlarmTracker) StartAlarm(ctx context.Context, metricID int64, key dimension.Key, projectedBreachNs int64, valueAtBreach int64, currBucketNum int64) {
	if a.Scheduler == nil {
		return
	}
	handle := handleFor(metricID, key)
	a.handles[key.Hash()] = handle
	a.Scheduler.SetAlarm(ctx, handle, projectedBreachNs, func(firedAtNs int64) {
		a.DetectAndDeclare(firedAtNs, firedAtNs/1e9, currBucketNum, key, valueAtBreach)
	})
}

// StopAlarm cancels key's outstanding alarm, if any. It does not check for
// or declare an anomaly itself.
func (a *AlarmTracker) StopAlarm(ctx context.Context, key dimension.Key) {
	handle, ok := a.handles[key.Hash()]
	if !ok {
		return
	}
	delete(a.handles, key.Hash())
	if a.Scheduler != nil {
		a.Scheduler.CancelAlarm(handle)
	}
}

// CancelAllAlarms stops every alarm this tracker owns, e.g. on configuration
// removal.
func (a *AlarmTracker) CancelAllAlarms() {
	if a.Scheduler == nil {
		a.handles = map[uint64]string{}
		return
	}
	for _, h := range a.handles {
		a.Scheduler.CancelAlarm(h)
	}
	a.handles = map[uint64]string{}
}
