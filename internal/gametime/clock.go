// Package gametime converts between the server-relative clock used for
// cooldowns, buffs and cast timers and the remaining durations kept in storage.
package gametime

import (
	"sync"
	"time"
)

// Clock reports time elapsed since the server process started. It only moves
// forward and starts at zero again after a restart.
type Clock interface {
	Now() time.Duration
}

// ServerClock measures uptime from the moment it was created.
type ServerClock struct {
	start time.Time
}

func NewServerClock() *ServerClock {
	return &ServerClock{start: time.Now()}
}

func (c *ServerClock) Now() time.Duration {
	return time.Since(c.start)
}

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

func NewManualClock(now time.Duration) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to an absolute value. Setting zero simulates a restart.
func (c *ManualClock) Set(now time.Duration) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}
