package sdspi

import "time"

// Clock is the millisecond time source Card's init FSM uses to bound its
// waits (ACMD41 retry delay, data-token and busy-release polling),
// grounded on the injected-timer pattern usbarmory-tamago's usdhc driver
// uses (time.Now/time.Since/time.Sleep) rather than this module's source
// material's raw tick counter, which has no analogue on a hosted Go target.
type Clock interface {
	Sleep(d time.Duration)
	Now() time.Time
}

// realClock is the default Clock, backed by the time package.
type realClock struct{}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
func (realClock) Now() time.Time        { return time.Now() }
