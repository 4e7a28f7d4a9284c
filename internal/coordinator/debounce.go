package coordinator

import "time"

// Debouncer fires once after a quiet period. Arming it again before it fires
// restarts the period.
type Debouncer struct {
	delay time.Duration
	timer *time.Timer
}

// NewDebouncer returns a stopped debouncer.
func NewDebouncer(delay time.Duration) *Debouncer {
	t := time.NewTimer(delay)
	t.Stop()
	return &Debouncer{delay: delay, timer: t}
}

// Arm starts or restarts the quiet period.
func (d *Debouncer) Arm() {
	d.timer.Reset(d.delay)
}

// C delivers one tick per completed quiet period.
func (d *Debouncer) C() <-chan time.Time {
	return d.timer.C
}

// Stop cancels a pending tick.
func (d *Debouncer) Stop() {
	d.timer.Stop()
}
