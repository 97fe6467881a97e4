package target

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/edgewarden/edgewarden/pkg/contracts"
)

// Loader reads and validates target state documents.
type Loader struct {
	registry *contracts.SchemaRegistry
	logger   zerolog.Logger
}

// NewLoader creates a state loader validating documents against the
// given schema registry. A nil registry skips the schema shape check.
func NewLoader(registry *contracts.SchemaRegistry, logger zerolog.Logger) *Loader {
	return &Loader{
		registry: registry,
		logger:   logger.With().Str("component", "state-loader").Logger(),
	}
}

// Load reads the state document at path. Referenced contract files are
// resolved relative to the state file's directory.
func (l *Loader) Load(ctx context.Context, path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, contracts.NewValidationError("state document is not readable", err).
			WithSubject(path).
			WithCode(contracts.ErrCodeBadDocument)
	}

	state, err := l.Parse(ctx, data, filepath.Dir(path))
	if err != nil {
		var cerr *contracts.ContractError
		if errors.As(err, &cerr) && cerr.Subject == "" {
			return nil, cerr.WithSubject(path)
		}
		return nil, err
	}

	l.logger.Debug().
		Str("path", path).
		Int("services", len(state.Services)).
		Msg("target state loaded")

	return state, nil
}

// Parse validates and decodes a state document. baseDir anchors
// relative contractFile references.
func (l *Loader) Parse(ctx context.Context, data []byte, baseDir string) (*State, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, contracts.NewValidationError("state document is not valid YAML", err).
			WithCode(contracts.ErrCodeBadDocument)
	}

	if l.registry != nil {
		if err := l.registry.ValidateStateDocument(ctx, doc); err != nil {
			return nil, contracts.NewValidationError("state document does not match schema", err).
				WithCode(contracts.ErrCodeBadDocument)
		}
	}

	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, contracts.NewValidationError("state document does not decode", err).
			WithCode(contracts.ErrCodeBadDocument)
	}

	if err := l.hydrate(ctx, &state, baseDir); err != nil {
		return nil, err
	}

	if err := checkSlugs(&state); err != nil {
		return nil, err
	}

	return &state, nil
}

// hydrate resolves contractFile references so every service carries an
// inline contract afterwards.
func (l *Loader) hydrate(ctx context.Context, state *State, baseDir string) error {
	for _, name := range state.Names() {
		spec := state.Services[name]

		if name == "" {
			return contracts.NewValidationError("state declares a service with an empty name", nil).
				WithCode(contracts.ErrCodeBadDocument)
		}

		switch {
		case spec.Contract != nil && spec.ContractFile != "":
			return contracts.NewValidationError(
				fmt.Sprintf("service %q declares both an inline contract and a contract file", name), nil).
				WithCode(contracts.ErrCodeBadDocument)

		case spec.Contract == nil && spec.ContractFile == "":
			return contracts.NewValidationError(
				fmt.Sprintf("service %q declares no contract", name), nil).
				WithCode(contracts.ErrCodeBadDocument)

		case spec.ContractFile != "":
			path := spec.ContractFile
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			contract, err := contracts.LoadContract(ctx, l.registry, path)
			if err != nil {
				return contracts.NewValidationError(
					fmt.Sprintf("service %q contract file failed to load", name), err).
					WithCode(contracts.ErrCodeBadDocument)
			}
			spec.Contract = contract
			spec.ContractFile = ""
			state.Services[name] = spec

			l.logger.Debug().
				Str("service", name).
				Str("path", path).
				Msg("contract hydrated from file")
		}
	}

	return nil
}

// checkSlugs rejects states where two services provide the same
// contract slug: the sibling index would be ambiguous.
func checkSlugs(state *State) error {
	bySlug := make(map[string]string)
	for _, name := range state.Names() {
		slug := state.Services[name].Contract.Slug
		if slug == "" {
			// Missing slugs surface as per-service validation failures
			// at resolution time, not load failures.
			continue
		}
		if other, dup := bySlug[slug]; dup {
			return contracts.NewValidationError(
				fmt.Sprintf("services %q and %q both provide contract slug %q", other, name, slug), nil).
				WithCode(contracts.ErrCodeBadDocument)
		}
		bySlug[slug] = name
	}
	return nil
}
