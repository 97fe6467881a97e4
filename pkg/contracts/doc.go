// Package contracts implements the compatibility-contract engine at the heart
// of the edgewarden agent.
//
// # Overview
//
// Before a containerized service is started on a device, the agent must decide
// whether the device and the other services scheduled alongside it satisfy the
// requirements the service declares. The engine answers that question through
// four components:
//
//  1. Validator - structural validation of a contract document (Validate)
//  2. Matcher - evaluation of one requirement against facts and siblings
//  3. Resolver - fixed-point resolution of a whole service batch (Resolve)
//  4. SchemaRegistry - CUE schemas for operator-authored documents
//
// # Core Domain Types
//
//   - Contract: a service's declared identity and requirements
//   - Requirement: one typed, optionally version-ranged dependency
//   - Service: a named contract plus an optionality flag, as presented to
//     one resolution call
//   - Facts: the device version facts a resolution evaluates against
//   - Resolution: the verdict, partitioning services into fulfilled and unmet
//
// # Resolution Semantics
//
// Resolve validates every contract, evaluates every requirement against the
// probed facts and the current sibling set, then repeatedly elides optional
// services that came up unmet and re-evaluates until the partition is stable.
// Non-optional unmet services make the resolution invalid but stay visible as
// sibling candidates throughout. Unmet requirements are values, never errors:
//
//	res, err := resolver.Resolve(ctx, services)
//	if err != nil {
//	    // environment failure (a probe could not run), not an unmet contract
//	}
//	for _, name := range res.Unmet {
//	    fmt.Println(name, res.Reasons[name])
//	}
//
// # Error Classification
//
// Errors carry a class for caller decisions:
//
//   - validation: a contract document is structurally unusable
//   - probe: a device probe failed (I/O, command, timeout); retryable
//   - internal: engine invariant violations
//
// Use IsValidation, IsProbe and IsRetryable to classify, and errors.As to
// reach the underlying *ContractError.
//
// # Determinism
//
// Given identical inputs and facts, Resolve produces identical results: the
// engine iterates services in sorted name order, rebuilds the sibling index
// each pass, and never caches between calls.
package contracts
