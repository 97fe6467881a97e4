package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		reservedSlugsPolicy(),
		contractVersionsPolicy(),
		resolutionValidityPolicy(),
	}
}

// reservedSlugsPolicy rejects fulfilled services whose contract slug
// collides with the agent's own names.
func reservedSlugsPolicy() Policy {
	return Policy{
		Name:        "reserved-slugs",
		Description: "Denies fulfilled services whose contract slug collides with reserved agent names",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "builtin"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package warden.policies.slugs

import rego.v1

reserved_slugs := {"warden", "edgewarden"}

deny contains violation if {
	some name, svc in input.services
	svc.fulfilled
	svc.slug in reserved_slugs
	violation := {
		"message": sprintf("service '%s' uses reserved contract slug '%s'", [name, svc.slug]),
		"severity": "error",
		"rule": "reserved-slug",
		"service": name,
	}
}`,
	}
}

// contractVersionsPolicy flags fulfilled services whose contract does
// not declare its own version.
func contractVersionsPolicy() Policy {
	return Policy{
		Name:        "contract-versions",
		Description: "Warns when a fulfilled service's contract declares no version",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"versioning", "builtin"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package warden.policies.versions

import rego.v1

deny contains violation if {
	some name, svc in input.services
	svc.fulfilled
	svc.version == ""
	violation := {
		"message": sprintf("service '%s' contract '%s' declares no version", [name, svc.slug]),
		"severity": "warning",
		"rule": "versionless-contract",
		"service": name,
	}
}`,
	}
}

// resolutionValidityPolicy keeps invalid resolutions from being applied
// in enforce mode.
func resolutionValidityPolicy() Policy {
	return Policy{
		Name:        "resolution-validity",
		Description: "Denies applying an invalid resolution in enforce mode",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"resolution", "builtin"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package warden.policies.resolution

import rego.v1

deny contains violation if {
	input.resolution.valid == false
	input.context.mode == "enforce"
	violation := {
		"message": sprintf("resolution %s is not valid and must not be applied in enforce mode", [input.resolution.id]),
		"severity": "error",
		"rule": "invalid-resolution",
	}
}`,
	}
}
