package anomaly

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
)

type fakeScheduler struct {
	set   map[string]func(int64)
	fired []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{set: map[string]func(int64){}}
}

func (f *fakeScheduler) SetAlarm(ctx context.Context, handle string, atWallNs int64, onFire func(firedAtNs int64)) error {
	f.set[handle] = onFire
	return nil
}

func (f *fakeScheduler) CancelAlarm(handle string) {
	delete(f.set, handle)
	f.fired = append(f.fired, "cancel:"+handle)
}

func (f *fakeScheduler) fire(handle string, atNs int64) {
	if cb, ok := f.set[handle]; ok {
		cb(atNs)
	}
}

func TestAlarmTrackerStartFireDeclares(t *testing.T) {
	sched := newFakeScheduler()
	at := NewAlarmTracker(NewTracker(2, 10, 60), sched)
	k := condKey("app1")
	at.StartAlarm(context.Background(), 1, k, 5000, 20, 1)

	handle := handleFor(1, k)
	require.Contains(t, sched.set, handle)

	fired := false
	at.Subscribe(func(_ dimension.Key, mv int64, _ int64, _ Score, _ bool) {
		fired = true
		assert.Equal(t, int64(20), mv)
	})
	sched.fire(handle, 5000)
	assert.True(t, fired)
}

func TestAlarmTrackerStopCancelsScheduler(t *testing.T) {
	sched := newFakeScheduler()
	at := NewAlarmTracker(NewTracker(2, 10, 60), sched)
	k := condKey("app1")
	at.StartAlarm(context.Background(), 1, k, 5000, 20, 1)
	at.StopAlarm(context.Background(), k)
	assert.Contains(t, sched.fired, "cancel:"+handleFor(1, k))
}

func TestAlarmTrackerCancelAll(t *testing.T) {
	sched := newFakeScheduler()
	at := NewAlarmTracker(NewTracker(2, 10, 60), sched)
	k1, k2 := condKey("a"), condKey("b")
	at.StartAlarm(context.Background(), 1, k1, 5000, 20, 1)
	at.StartAlarm(context.Background(), 1, k2, 5000, 20, 1)
	at.CancelAllAlarms()
	assert.Len(t, sched.fired, 2)
}
