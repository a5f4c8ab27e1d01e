package schedule

import "fmt"

type State int32

const (
	Idle State = iota
	Running
	Waiting
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Waiting:
		return "waiting"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// event drives the state machine. runCompleted and delayExpired come from the
// loop itself; start and stop come from the owner.
type event int

const (
	evStart event = iota
	evRunCompleted
	evDelayExpired
	evStop
)

func (e event) String() string {
	switch e {
	case evStart:
		return "start"
	case evRunCompleted:
		return "run_completed"
	case evDelayExpired:
		return "delay_expired"
	case evStop:
		return "stop"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// next is the transition table. ok is false when ev is not valid in from.
func next(from State, ev event) (to State, ok bool) {
	switch {
	case ev == evStop:
		return Stopped, from != Stopped
	case from == Idle && ev == evStart:
		return Running, true
	case from == Running && ev == evRunCompleted:
		return Waiting, true
	case from == Waiting && ev == evDelayExpired:
		return Running, true
	default:
		return from, false
	}
}
