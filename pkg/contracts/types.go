package contracts

import (
	"time"
)

// Requirement type constants. The type names a fact source or sibling
// capability class; anything else fails closed during matching.
const (
	// RequirementTypeAgent is satisfied by the agent's own version.
	RequirementTypeAgent = "sw.agent"

	// RequirementTypeOS is satisfied by the host operating system version.
	RequirementTypeOS = "sw.os"

	// RequirementTypeL4T is satisfied by the L4T platform revision embedded
	// in the kernel release string. Devices not running an L4T kernel have
	// no revision, which leaves the requirement unmet.
	RequirementTypeL4T = "sw.l4t"

	// RequirementTypeContainer is satisfied by a sibling service in the same
	// resolution batch whose contract slug matches the requirement's slug.
	RequirementTypeContainer = "sw.container"
)

// ContractTypeContainer tags a contract as describing a containerized service.
const ContractTypeContainer = "sw.container"

// Contract describes the identity and compatibility requirements of one
// deployable unit. Unknown fields in source documents are ignored.
type Contract struct {
	// Slug is the unique identifier for the unit. Required.
	Slug string `json:"slug" yaml:"slug"`

	// Type is an optional capability-class tag (e.g. "sw.container").
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Name is the human-readable name. Defaults to Slug when absent.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Version is the unit's own semantic version. Optional; a versionless
	// contract cannot satisfy version-ranged sibling requirements.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Requires lists the unit's requirements. Optional, default empty.
	Requires []Requirement `json:"requires,omitempty" yaml:"requires,omitempty"`
}

// DisplayName returns Name, falling back to Slug.
func (c *Contract) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Slug
}

// Requirement is a single dependency declaration inside a Contract.
type Requirement struct {
	// Type identifies which fact source or sibling capability class
	// satisfies this requirement. Required.
	Type string `json:"type" yaml:"type"`

	// Slug is the target contract slug for sibling-container requirements.
	Slug string `json:"slug,omitempty" yaml:"slug,omitempty"`

	// Version is a semantic-version range expression. Absent means any
	// version satisfies (presence of the fact or sibling is enough).
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// Service is a named contract plus an optionality flag, as presented to one
// resolution call. Services are constructed fresh per call and consumed
// read-only by the engine.
type Service struct {
	// Contract is the service's declared contract.
	Contract Contract `json:"contract"`

	// Optional services that come up unmet are elided from the sibling set
	// instead of invalidating the whole resolution.
	Optional bool `json:"optional"`
}

// Facts is the snapshot of device version facts one resolution evaluates
// against. It is probed once per Resolve call and immutable afterwards.
type Facts struct {
	// AgentVersion is the agent's own compiled-in semantic version.
	// Always present.
	AgentVersion string `json:"agent_version"`

	// OSVersion is the host operating system version read from the
	// release descriptor.
	OSVersion string `json:"os_version"`

	// L4T is the platform kernel revision ("<major>.<minor>") extracted
	// from the kernel release string. Empty when the kernel carries no
	// platform marker, which is a valid state, not a failure.
	L4T string `json:"l4t,omitempty"`
}

// HasL4T reports whether the device exposes an L4T platform revision.
func (f Facts) HasL4T() bool {
	return f.L4T != ""
}

// Resolution is the engine's verdict for one service batch. Fulfilled and
// Unmet partition the input service names exactly: no name in both, none
// dropped. Both lists are sorted for deterministic output.
type Resolution struct {
	// ID is a unique identifier for this resolution run.
	ID string `json:"id"`

	// Valid is true unless at least one non-optional service is unmet.
	Valid bool `json:"valid"`

	// Fulfilled lists the service names whose requirements all hold.
	Fulfilled []string `json:"fulfilled"`

	// Unmet lists the service names that failed, including elided
	// optional services.
	Unmet []string `json:"unmet"`

	// Reasons maps each unmet service name to the requirement verdicts
	// that failed in the final stable pass.
	Reasons map[string][]string `json:"reasons,omitempty"`

	// Facts is the device snapshot the resolution was computed from.
	Facts Facts `json:"facts"`

	// StartedAt is when the resolution began.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the resolution took, probing included.
	Duration time.Duration `json:"duration"`

	// Passes is the number of evaluation passes the fixed-point loop ran.
	Passes int `json:"passes"`
}

// IsFulfilled reports whether the named service ended up fulfilled.
func (r *Resolution) IsFulfilled(name string) bool {
	for _, n := range r.Fulfilled {
		if n == name {
			return true
		}
	}
	return false
}
