package model

import "fmt"

// Role names one of the reasoning agents.
type Role string

const (
	RoleSupervisor Role = "supervisor"
	RoleResearch   Role = "research"
	RoleGeneration Role = "generation"
)

// Roles lists every agent role.
func Roles() []Role {
	return []Role{RoleSupervisor, RoleResearch, RoleGeneration}
}

func (r Role) Valid() bool {
	switch r {
	case RoleSupervisor, RoleResearch, RoleGeneration:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown agent role %q", s)
	}
	return r, nil
}

// Stage is a state of the pipeline state machine.
type Stage string

const (
	StageIntakeReceived        Stage = "INTAKE_RECEIVED"
	StageValidating            Stage = "VALIDATING"
	StageAwaitingClarification Stage = "AWAITING_CLARIFICATION"
	StageValidated             Stage = "VALIDATED"
	StageResearching           Stage = "RESEARCHING"
	StageGenerating            Stage = "GENERATING"
	StageComplete              Stage = "COMPLETE"
	StageFailed                Stage = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}
