package eventbus

// Event types published by the recurring scheduler.
const (
	TypeStateChanged = "schedule.state_changed"
	TypeRunStarted   = "schedule.run_started"
	TypeRunFinished  = "schedule.run_finished"
	TypeReconfigured = "schedule.reconfigured"
)
