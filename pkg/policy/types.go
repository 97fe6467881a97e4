package policy

import (
	"time"

	"github.com/edgewarden/edgewarden/pkg/contracts"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block reconciliation.
	SeverityError Severity = "error"

	// SeverityCritical is for severe violations that must be addressed
	// immediately. Blocks reconciliation like SeverityError.
	SeverityCritical Severity = "critical"
)

// Mode selects how the agent reacts to policy engine failures.
// Blocking violations stop reconciliation in either mode.
type Mode string

const (
	// ModeEnforce surfaces engine failures as evaluation errors, which
	// block reconciliation. The resolution-validity builtin only fires
	// in this mode.
	ModeEnforce Mode = "enforce"

	// ModePermissive logs engine failures and continues with whatever
	// violations were gathered before the failure.
	ModePermissive Mode = "permissive"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Rule identifies the rule within the policy, when the policy
	// reports one.
	Rule string `json:"rule,omitempty"`

	// Level is the violation severity level.
	Level Severity `json:"level"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Service names the service the violation concerns, when the
	// policy reports one.
	Service string `json:"service,omitempty"`
}

// Blocking reports whether the violation is severe enough to stop the
// agent from acting on the resolution.
func (v Violation) Blocking() bool {
	return v.Level == SeverityError || v.Level == SeverityCritical
}

// Blocks reports whether any violation in the list is blocking.
func Blocks(violations []Violation) bool {
	for i := range violations {
		if violations[i].Blocking() {
			return true
		}
	}
	return false
}

// Input is the document handed to policy evaluation.
type Input struct {
	// Resolution is the resolution being gated.
	Resolution *contracts.Resolution `json:"resolution"`

	// Services describes the resolved services by name.
	Services map[string]ServiceFact `json:"services"`

	// Context provides additional evaluation context.
	Context *Context `json:"context"`
}

// ServiceFact is the per-service view policies evaluate against.
// Version stays present even when empty so rules can test it directly.
type ServiceFact struct {
	// Slug is the service's contract slug.
	Slug string `json:"slug"`

	// Version is the contract's own version.
	Version string `json:"version"`

	// Optional marks the service as elidable.
	Optional bool `json:"optional"`

	// Fulfilled reports whether the resolution admitted the service.
	Fulfilled bool `json:"fulfilled"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Mode is the configured enforcement mode.
	Mode Mode `json:"mode"`

	// Device is the device name.
	Device string `json:"device,omitempty"`

	// Environment is the environment (e.g. "production", "staging").
	Environment string `json:"environment,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

// NewInput assembles the policy input for a resolution. services is the
// batch the resolution was computed from.
func NewInput(resolution *contracts.Resolution, services map[string]contracts.Service, evalCtx *Context) *Input {
	fulfilled := make(map[string]bool, len(resolution.Fulfilled))
	for _, name := range resolution.Fulfilled {
		fulfilled[name] = true
	}

	facts := make(map[string]ServiceFact, len(services))
	for name, svc := range services {
		facts[name] = ServiceFact{
			Slug:      svc.Contract.Slug,
			Version:   svc.Contract.Version,
			Optional:  svc.Optional,
			Fulfilled: fulfilled[name],
		}
	}

	return &Input{
		Resolution: resolution,
		Services:   facts,
		Context:    evalCtx,
	}
}
