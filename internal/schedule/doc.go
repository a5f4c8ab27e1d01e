// Package schedule drives the recurring collector cycle:
//
//	Idle -> Running -> Waiting -> Running -> ... -> Stopped
//
// A single loop goroutine owns the cycle. The next run is armed only after the
// previous Launch returned, so at most one collector process is managed at a time,
// however long a run takes. The delay is measured from the end of one run to the
// start of the next; wall-clock drift equal to each run's duration is expected.
package schedule
