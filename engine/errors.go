package engine

import "fmt"

// Stage names the part of a cycle that failed.
type Stage string

const (
	StageLoad       Stage = "load"
	StageFetch      Stage = "fetch"
	StageCompute    Stage = "compute"
	StageTransition Stage = "transition"
	StageLedger     Stage = "ledger"
	StagePersist    Stage = "persist"
)

// CycleError is returned by RunCycle. Whatever the stage, the stored state
// is unchanged by the failed cycle.
type CycleError struct {
	Stage Stage
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle %s: %v", e.Stage, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	return &CycleError{Stage: stage, Err: err}
}
