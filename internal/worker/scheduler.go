package worker

import "time"

// Scheduler defers a function call, used to republish retry tasks after the
// backoff delay without holding a worker slot. Tests substitute a
// deterministic implementation.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

// TimerScheduler schedules on real timers.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}
