package contracts

import (
	"fmt"
	"strings"
)

// Validate checks a contract document against the minimum structural schema.
// Validation is structural only and never inspects the device: it rejects a
// missing or empty slug, a requirement without a type, and a requirement
// whose version range does not parse. Extra fields in source documents are
// ignored rather than rejected, and satisfiability is not evaluated here.
func Validate(c *Contract) error {
	if c == nil {
		return NewValidationError("contract is nil", nil).WithCode(ErrCodeBadDocument)
	}

	var causes []string
	code := ""

	if strings.TrimSpace(c.Slug) == "" {
		causes = append(causes, "slug is required")
		code = ErrCodeMissingSlug
	}

	for i, req := range c.Requires {
		if strings.TrimSpace(req.Type) == "" {
			causes = append(causes, fmt.Sprintf("requires[%d]: type is required", i))
			if code == "" {
				code = ErrCodeMissingType
			}
			continue
		}
		if strings.TrimSpace(req.Version) != "" {
			if _, err := ParseVersionRange(req.Version); err != nil {
				causes = append(causes, fmt.Sprintf("requires[%d]: invalid version range %q", i, req.Version))
				if code == "" {
					code = ErrCodeBadRange
				}
			}
		}
	}

	if len(causes) == 0 {
		return nil
	}

	return NewValidationError("contract failed validation", nil).
		WithSubject(c.Slug).
		WithCode(code).
		WithDetail("causes", causes)
}
