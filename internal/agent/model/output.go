package model

import (
	"github.com/intakeflow/server/internal/clarify"
	"github.com/intakeflow/server/internal/intake"
)

// SupervisorOutput is the boundary object of validation: exactly these two keys.
type SupervisorOutput struct {
	ValidatedIntake        intake.Record      `json:"validated_intake"`
	ClarificationQuestions []clarify.Question `json:"clarification_questions"`
}

// ResearchSummary is the research agent's synthesis of the intake.
type ResearchSummary struct {
	ClientProfile   any `json:"ClientProfile,omitempty"`
	Highlights      any `json:"Highlights"`
	PainPoints      any `json:"PainPoints"`
	CriticalRisks   any `json:"CriticalRisks"`
	SolutionSummary any `json:"SolutionSummary"`
	WorkflowOutline any `json:"WorkflowOutline"`
	AgentMap        any `json:"AgentMap"`
	ToolHooks       any `json:"ToolHooks"`
	HAF             any `json:"HAF,omitempty"`
	CII             any `json:"CII,omitempty"`
}

// GenerationOutput carries the two final artifacts.
type GenerationOutput struct {
	ClientReport    any `json:"client_report"`
	DeveloperReport any `json:"developer_report"`
}

// AgentOutput is a role-tagged result: exactly one of the variant fields is
// set, matching Role.
type AgentOutput struct {
	Role       Role              `json:"role"`
	Supervisor *SupervisorOutput `json:"supervisor,omitempty"`
	Research   *ResearchSummary  `json:"research,omitempty"`
	Generation *GenerationOutput `json:"generation,omitempty"`
	Raw        string            `json:"raw,omitempty"`
}

// Payload returns the variant matching Role.
func (o AgentOutput) Payload() any {
	switch o.Role {
	case RoleSupervisor:
		return o.Supervisor
	case RoleResearch:
		return o.Research
	case RoleGeneration:
		return o.Generation
	}
	return nil
}
