package app

// StopReason is logged when the app shuts down.
type StopReason string

const (
	StopSignal       StopReason = "signal"
	StopFatal        StopReason = "fatal_error"
	StopStartFailure StopReason = "start_failure"
)
