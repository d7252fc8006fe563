package pipeline

import (
	"errors"
	"fmt"
)

// Phase is the state of an orchestrator run.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePreparing  Phase = "preparing"
	PhaseOutline    Phase = "outline"
	PhaseExtracting Phase = "extracting"
	PhaseReviewing  Phase = "reviewing"
	PhaseGenerating Phase = "generating"
	PhaseComplete   Phase = "complete"
	PhaseError      Phase = "error"
	PhaseCancelled  Phase = "cancelled"
)

// Terminal reports whether p ends a run.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError || p == PhaseCancelled
}

var (
	// ErrBusy is returned when a run is already in progress or awaiting review.
	ErrBusy = errors.New("pipeline: a run is already in progress")
	// ErrNotReviewing is returned by Confirm and Discard outside the reviewing phase.
	ErrNotReviewing = errors.New("pipeline: no run is awaiting review")
	// ErrNoCommands is returned when extraction yields no generation commands.
	ErrNoCommands = errors.New("could not identify processing commands, please check input quality")
	// ErrEmptySelection is returned when no command is selected for generation.
	ErrEmptySelection = errors.New("select at least one section to generate")
	// ErrInvalidSelection is returned for selection indices outside the command list.
	ErrInvalidSelection = errors.New("selection is out of range")
)

// ValidationError reports a missing or invalid input before a run starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
