package orchestrator

// Phase is a state of the reconciliation state machine. Failed is an
// absorbing state reachable from any step.
type Phase string

const (
	PhaseInit                Phase = "init"
	PhaseDesiredLoaded       Phase = "desired-loaded"
	PhaseDiffed              Phase = "diffed"
	PhaseAwaitingDestroy     Phase = "awaiting-destroy-confirmation"
	PhaseAwaitingApply       Phase = "awaiting-apply-confirmation"
	PhaseNoChanges           Phase = "no-changes"
	PhaseProvisioning        Phase = "provisioning"
	PhaseProbing             Phase = "probing"
	PhaseConfiguring         Phase = "configuring"
	PhasePersisted           Phase = "persisted"
	PhaseDone                Phase = "done"
	PhaseFailed              Phase = "failed"
)

// Mode selects which path through the state machine a run takes.
type Mode int

const (
	// ModeDeploy runs the full pass: provision, probe, configure.
	ModeDeploy Mode = iota
	// ModeApply provisions only, skipping the configuring state.
	ModeApply
	// ModeReboot runs the configure-all path without any provisioning.
	ModeReboot
	// ModeDestroy tears down the full current fleet.
	ModeDestroy
)

func (m Mode) String() string {
	switch m {
	case ModeDeploy:
		return "deploy"
	case ModeApply:
		return "apply"
	case ModeReboot:
		return "reboot"
	case ModeDestroy:
		return "destroy"
	}
	return "unknown"
}

// Status is the terminal outcome of a run.
type Status int

const (
	// StatusApplied means changes were made and persisted.
	StatusApplied Status = iota
	// StatusNoChanges means the fleet already matched the declared state.
	StatusNoChanges
	// StatusCanceled means the operator declined a confirmation gate.
	// Cancellation is a first-class exit path, not a failure.
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusNoChanges:
		return "no-changes"
	case StatusCanceled:
		return "canceled"
	}
	return "unknown"
}
