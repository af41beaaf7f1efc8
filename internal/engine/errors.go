package engine

import (
	"errors"
	"fmt"
)

// Structural errors abort a whole pass.
var (
	ErrInvalidOptions    = errors.New("invalid scheduling options")
	ErrEmptySlotUniverse = errors.New("slot universe is empty")
	ErrPassInProgress    = errors.New("a scheduling pass is already running")
)

// Errors returned by manual assignment and ledger commits.
var (
	ErrSlotOccupied        = errors.New("slot occupied")
	ErrUnknownSession      = errors.New("unknown session")
	ErrUnknownMachine      = errors.New("unknown machine")
	ErrPastSlot            = errors.New("slot is not in the future")
	ErrOutsideHorizon      = errors.New("slot is outside the scheduling horizon")
	ErrIncompatibleMachine = errors.New("machine cannot run session")
	ErrInvalidTransition   = errors.New("invalid session status transition")
)

// FailureKind classifies why a session could not be placed.
type FailureKind string

const (
	NoAvailableSlot      FailureKind = "NoAvailableSlot"
	HardwareConflict     FailureKind = "HardwareConflict"
	MachineUnavailable   FailureKind = "MachineUnavailable"
	NoCompatibleHardware FailureKind = "NoCompatibleHardware"
)

// Reasons reported on queued and conflicted sessions.
const (
	ReasonNoAvailableSlots     = "no_available_slots"
	ReasonHardwareConflict     = "hardware_conflict"
	ReasonNoMachineAvailable   = "no_machine_available"
	ReasonNoCompatibleHardware = "no_compatible_hardware"
	ReasonPassCancelled        = "pass_cancelled"
)

// AllocationError is the per-session failure produced by the allocator.
type AllocationError struct {
	Kind   FailureKind
	Reason string
	Detail string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// Structural reports whether the failure signals a resourcing gap
// (conflicted) rather than timing contention (queued).
func (e *AllocationError) Structural() bool {
	return e.Kind == MachineUnavailable || e.Kind == NoCompatibleHardware
}
