package pipeline

import "fmt"

// Stage names, in execution order.
const (
	StageConfig    = "config"
	StageLoad      = "load"
	StageSeed      = "seed"
	StageSegment   = "segment"
	StageDedupe    = "dedupe"
	StageValidate  = "validate"
	StageNeighbor  = "neighbor"
	StageSmooth    = "smooth"
	StageExport    = "export"
	StageReport    = "report"
	StageInventory = "inventory"
)

// StageError labels a failure with the stage that raised it and, where one
// candidate was at fault, that candidate's id.
type StageError struct {
	Stage  string
	PondID string
	Err    error
}

func (e *StageError) Error() string {
	if e.PondID != "" {
		return fmt.Sprintf("%s stage failed on pond %s: %v", e.Stage, e.PondID, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
