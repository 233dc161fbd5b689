package service

import (
	"time"
)

// RealScheduler runs callbacks on their own goroutine via time.AfterFunc.
type RealScheduler struct{}

// AfterFunc schedules f to run once after d.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
