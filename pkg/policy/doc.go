// Package policy gates resolutions with Open Policy Agent (OPA).
//
// Before the agent acts on a resolution, the policy engine evaluates it
// against built-in policies plus any operator policies loaded from the
// policy directory. Policies are written in Rego; each enabled policy's
// deny rule contributes violations.
//
// # Usage
//
// Creating an engine and evaluating a resolution:
//
//	engine, err := policy.NewEngine(policy.ModeEnforce, logger)
//	if err != nil {
//	    return err
//	}
//
//	input := policy.NewInput(resolution, batch, &policy.Context{
//	    Mode:      engine.Mode(),
//	    Device:    "jetson-lab-04",
//	    Timestamp: time.Now(),
//	})
//
//	violations, err := engine.Evaluate(ctx, input)
//	if err != nil {
//	    // enforce mode: engine failure blocks reconciliation
//	    return err
//	}
//	if policy.Blocks(violations) {
//	    // error-level violations block reconciliation
//	}
//
// Loading operator policies:
//
//	err = engine.LoadPolicies(ctx, []string{"/etc/edgewarden/policies"})
//
// # Built-in Policies
//
// The following policies are always loaded:
//
//  1. reserved-slugs - Denies fulfilled services whose contract slug is
//     a reserved agent name (warden, edgewarden)
//  2. contract-versions - Warns when a fulfilled service's contract
//     declares no version
//  3. resolution-validity - Denies applying an invalid resolution in
//     enforce mode
//
// # Custom Policies
//
// Operator policies are .rego or .json files in the policy directory.
// A Rego policy reports violations through a deny rule:
//
//	package custom.policies.images
//
//	import rego.v1
//
//	deny contains violation if {
//	    some name, svc in input.services
//	    svc.fulfilled
//	    not svc.slug
//	    violation := {
//	        "message": sprintf("service '%s' has no contract slug", [name]),
//	        "severity": "error",
//	        "service": name,
//	    }
//	}
//
// The input document carries the resolution, a per-service fact map
// (slug, version, optional, fulfilled) and an evaluation context with
// the enforcement mode, device name and environment.
//
// # Enforcement Modes
//
// In enforce mode a policy engine failure blocks reconciliation. In
// permissive mode failures are logged and evaluation continues; only
// the returned violations matter, and callers typically log them
// without blocking.
//
// # Severity Levels
//
// Violations have four severity levels:
//
//   - info: Informational messages
//   - warning: Issues that should be reviewed but don't block
//   - error: Issues that block reconciliation
//   - critical: Severe issues requiring immediate attention
//
// # Performance
//
// Policies are compiled once and their deny queries are prepared with
// OPA's PreparedEvalQuery, so per-resolution evaluation is cheap.
package policy
