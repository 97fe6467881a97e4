package contracts

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// VersionRange is a parsed semantic-version range expression. Supported
// syntax: bare versions (exact equality), the comparison operators
// >, >=, <, <= and =, and space- or comma-joined AND lists.
type VersionRange struct {
	raw        string
	constraint *semver.Constraints
}

// ParseVersionRange parses a range expression. A syntactically invalid
// expression is a validation error so it is caught before matching.
func ParseVersionRange(expr string) (*VersionRange, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, NewValidationError("empty version range", nil).WithCode(ErrCodeBadRange)
	}

	c, err := semver.NewConstraint(trimmed)
	if err != nil {
		return nil, NewValidationError("invalid version range", err).
			WithCode(ErrCodeBadRange).
			WithDetail("range", expr)
	}

	return &VersionRange{raw: trimmed, constraint: c}, nil
}

// String returns the original range expression.
func (r *VersionRange) String() string {
	return r.raw
}

// SatisfiedBy reports whether the given version falls inside the range.
func (r *VersionRange) SatisfiedBy(v *semver.Version) bool {
	if v == nil {
		return false
	}
	return r.constraint.Check(v)
}

// ParseVersion parses a version string leniently: a leading "v", missing
// patch segments ("32.2") and build metadata are all accepted.
func ParseVersion(s string) (*semver.Version, error) {
	v, err := semver.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil, NewValidationError("invalid version", err).
			WithCode(ErrCodeBadRange).
			WithDetail("version", s)
	}
	return v, nil
}

// rangeSatisfied evaluates a range expression against a version string.
// An absent range always satisfies. A version that cannot be parsed never
// satisfies a present range, and a malformed range never satisfies; both
// are reported as reasons by the matcher rather than errors, since range
// syntax is rejected at validation time.
func rangeSatisfied(rangeExpr, version string) (bool, string) {
	if strings.TrimSpace(rangeExpr) == "" {
		return true, ""
	}

	r, err := ParseVersionRange(rangeExpr)
	if err != nil {
		return false, fmt.Sprintf("invalid version range %q", rangeExpr)
	}

	v, err := ParseVersion(version)
	if err != nil {
		return false, fmt.Sprintf("version %q is not a semantic version", version)
	}

	if !r.SatisfiedBy(v) {
		return false, fmt.Sprintf("version %s does not satisfy %s", version, rangeExpr)
	}
	return true, ""
}
