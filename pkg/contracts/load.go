package contracts

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseContract parses a YAML contract document and checks its shape against
// the contract schema. Semantic completeness (required slug, requirement
// types, range syntax) is not checked here: parsed contracts go through
// Validate at resolution time, so an incomplete document still loads and
// surfaces as an unmet service rather than a hard load failure.
func ParseContract(ctx context.Context, registry *SchemaRegistry, data []byte) (*Contract, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, NewValidationError("contract document is not valid YAML", err).
			WithCode(ErrCodeBadDocument)
	}

	if registry != nil {
		if err := registry.ValidateContractDocument(ctx, raw); err != nil {
			return nil, NewValidationError("contract document does not match schema", err).
				WithCode(ErrCodeBadDocument)
		}
	}

	var c Contract
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, NewValidationError("contract document does not decode", err).
			WithCode(ErrCodeBadDocument)
	}

	return &c, nil
}

// LoadContract reads and parses a contract document from path.
func LoadContract(ctx context.Context, registry *SchemaRegistry, path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("failed to read contract file %s", path), err).
			WithCode(ErrCodeBadDocument).
			WithSubject(path)
	}

	c, err := ParseContract(ctx, registry, data)
	if err != nil {
		var cerr *ContractError
		if errors.As(err, &cerr) {
			return nil, cerr.WithSubject(path)
		}
		return nil, err
	}
	return c, nil
}
