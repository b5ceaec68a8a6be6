package session

import "time"

// watchdog is a single-shot, single-owner abortable timer (design note
// §9: "the Session never leaks timers past a state transition"). Arm
// replaces any previously running timer; Stop cancels it without firing.
// Not safe for concurrent use — like every other piece of Session
// state, it is touched only while the Session's mutex is held.
type watchdog struct {
	timer *time.Timer
}

// Arm (re)starts the watchdog so fire is invoked after d elapses, unless
// Stop or another Arm call happens first.
func (w *watchdog) Arm(d time.Duration, fire func()) {
	w.Stop()
	w.timer = time.AfterFunc(d, fire)
}

// Stop cancels the watchdog if armed. Safe to call when already
// disarmed.
func (w *watchdog) Stop() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
