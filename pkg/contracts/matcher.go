package contracts

import (
	"fmt"

	"github.com/rs/zerolog"
)

// MatchContext bundles everything one requirement is evaluated against: the
// device facts snapshot and the sibling contracts currently under
// consideration, indexed by contract slug. The index is rebuilt by the
// resolver each pass, so elided services are genuinely absent from it.
type MatchContext struct {
	Facts    Facts
	Siblings map[string]Contract
}

// Verdict is the outcome of matching one requirement. Unsatisfied
// requirements are data, not errors; Reason explains the failure.
type Verdict struct {
	Satisfied bool
	Reason    string
}

// Matcher evaluates single requirements against a MatchContext.
type Matcher struct {
	logger zerolog.Logger
}

// NewMatcher creates a requirement matcher.
func NewMatcher(logger zerolog.Logger) *Matcher {
	return &Matcher{
		logger: logger.With().Str("component", "matcher").Logger(),
	}
}

// Match evaluates one requirement. Dispatch is on the requirement type; an
// unrecognized type is never satisfied, since an unknown requirement class
// cannot be assumed met. An absent version range satisfies as long as the
// fact or sibling the type names is present.
func (m *Matcher) Match(req Requirement, mc MatchContext) Verdict {
	switch req.Type {
	case RequirementTypeAgent:
		return m.matchVersionFact(req, "agent", mc.Facts.AgentVersion)

	case RequirementTypeOS:
		return m.matchVersionFact(req, "host OS", mc.Facts.OSVersion)

	case RequirementTypeL4T:
		if !mc.Facts.HasL4T() {
			return Verdict{Satisfied: false, Reason: "device kernel has no L4T platform revision"}
		}
		return m.matchVersionFact(req, "L4T", mc.Facts.L4T)

	case RequirementTypeContainer:
		return m.matchSibling(req, mc)

	default:
		m.logger.Debug().Str("type", req.Type).Msg("unknown requirement type")
		return Verdict{
			Satisfied: false,
			Reason:    fmt.Sprintf("unknown requirement type %q", req.Type),
		}
	}
}

// matchSibling checks for a sibling contract with the required slug, and,
// when a range is given, that the sibling's version falls inside it. A
// sibling that declares no version cannot satisfy a version-ranged
// requirement.
func (m *Matcher) matchSibling(req Requirement, mc MatchContext) Verdict {
	sibling, ok := mc.Siblings[req.Slug]
	if !ok {
		return Verdict{
			Satisfied: false,
			Reason:    fmt.Sprintf("no sibling service provides %q", req.Slug),
		}
	}

	if req.Version == "" {
		return Verdict{Satisfied: true}
	}

	if sibling.Version == "" {
		return Verdict{
			Satisfied: false,
			Reason:    fmt.Sprintf("sibling %q declares no version, requirement wants %s", req.Slug, req.Version),
		}
	}

	ok, reason := rangeSatisfied(req.Version, sibling.Version)
	if !ok {
		return Verdict{
			Satisfied: false,
			Reason:    fmt.Sprintf("sibling %q: %s", req.Slug, reason),
		}
	}
	return Verdict{Satisfied: true}
}

func (m *Matcher) matchVersionFact(req Requirement, subject, version string) Verdict {
	ok, reason := rangeSatisfied(req.Version, version)
	if !ok {
		return Verdict{
			Satisfied: false,
			Reason:    fmt.Sprintf("%s %s", subject, reason),
		}
	}
	return Verdict{Satisfied: true}
}
