// Package alarmsvc implements the outbound Alarm collaborator of §6:
// setAlarm(deadline_ns)/cancelAlarm(handle) plus a fired-alarm callback,
// default-implemented on top of robfig/cron/v3, with a remote gRPC
// implementation for out-of-process schedulers.
package alarmsvc

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// onceSchedule is a cron.Schedule that fires exactly once at At, then never
// again. robfig/cron has no built-in one-shot schedule; every alarm here —
// both the anomaly-detection deadline alarms and the periodic report-dump
// alarms named in the configuration's periodic_alarms list — is expressed
// as a cron.Schedule so both ride the same scheduler loop.
type onceSchedule struct {
	at    time.Time
	fired bool
}

func (o *onceSchedule) Next(t time.Time) time.Time {
	if o.fired || t.After(o.at) {
		return farFuture
	}
	return o.at
}

var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// CronScheduler is the default in-process Scheduler backed by
// robfig/cron/v3. It serves both one-shot anomaly alarms (via onceSchedule)
// and true recurring periodic dump alarms (via a standard cron spec).
type CronScheduler struct {
	c *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewCronScheduler() *CronScheduler {
	s := &CronScheduler{
		c:       cron.New(cron.WithSeconds()),
		entries: map[string]cron.EntryID{},
	}
	s.c.Start()
	return s
}

func (s *CronScheduler) Stop() { s.c.Stop() }

// SetAlarm schedules handle to fire once at atWallNs (elapsed-time
// nanoseconds converted to the process's wall-clock via time.Unix). A
// previous alarm under the same handle is replaced.
func (s *CronScheduler) SetAlarm(ctx context.Context, handle string, atWallNs int64, onFire func(firedAtNs int64)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[handle]; ok {
		s.c.Remove(id)
	}
	sched := &onceSchedule{at: time.Unix(0, atWallNs)}
	id := s.c.Schedule(sched, cron.FuncJob(func() {
		sched.fired = true
		s.mu.Lock()
		delete(s.entries, handle)
		s.mu.Unlock()
		onFire(time.Now().UnixNano())
	}))
	s.entries[handle] = id
	return nil
}

// CancelAlarm removes handle's scheduled alarm, if any.
func (s *CronScheduler) CancelAlarm(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[handle]; ok {
		s.c.Remove(id)
		delete(s.entries, handle)
	}
}

// SchedulePeriodic registers a true recurring alarm using a standard cron
// spec, for the configuration's periodic_alarms list (report-dump
// scheduling) rather than the one-shot anomaly path.
func (s *CronScheduler) SchedulePeriodic(handle, cronSpec string, onFire func(firedAtNs int64)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[handle]; ok {
		s.c.Remove(id)
	}
	id, err := s.c.AddFunc(cronSpec, func() { onFire(time.Now().UnixNano()) })
	if err != nil {
		return err
	}
	s.entries[handle] = id
	return nil
}
