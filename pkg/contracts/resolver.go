package contracts

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Prober supplies the device facts snapshot a resolution evaluates against.
// Implementations probe fresh on every call; the engine never caches facts
// between resolutions.
type Prober interface {
	Probe(ctx context.Context) (Facts, error)
}

// Resolver computes which services of a batch are fulfilled on this device.
// Resolvers hold no mutable state, so concurrent Resolve calls need no
// coordination.
type Resolver struct {
	prober  Prober
	matcher *Matcher
	logger  zerolog.Logger
}

// NewResolver creates a resolver that probes device facts through prober.
func NewResolver(prober Prober, logger zerolog.Logger) *Resolver {
	return &Resolver{
		prober:  prober,
		matcher: NewMatcher(logger),
		logger:  logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve probes the device facts once, then resolves the service batch
// against that snapshot. A probe failure aborts the call with the error;
// unmet requirements never do.
func (r *Resolver) Resolve(ctx context.Context, services map[string]Service) (*Resolution, error) {
	facts, err := r.prober.Probe(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("device probe failed, aborting resolution")
		return nil, err
	}
	return r.ResolveWithFacts(ctx, services, facts)
}

// ResolveWithFacts resolves the service batch against an already-probed
// facts snapshot. The computation is pure: identical inputs produce an
// identical resolution, reason strings included.
//
// The fixed-point loop validates every contract, evaluates every requirement
// against the current sibling set, elides the optional services that came up
// unmet, and repeats on the reduced set until a pass elides nothing. The
// loop is bounded by the service count, since a continuing pass removes at
// least one service. Non-optional unmet services invalidate the result but
// remain visible as sibling candidates: their presence in the requested
// deployment is still a fact, and removing them is the operator's call.
func (r *Resolver) ResolveWithFacts(_ context.Context, services map[string]Service, facts Facts) (*Resolution, error) {
	started := time.Now()

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	r.logger.Debug().
		Int("services", len(services)).
		Str("agent_version", facts.AgentVersion).
		Str("os_version", facts.OSVersion).
		Str("l4t", facts.L4T).
		Msg("resolving service batch")

	// Structural validation happens once; the verdict holds for every pass.
	invalid := make(map[string]string)
	for _, name := range names {
		svc := services[name]
		if err := Validate(&svc.Contract); err != nil {
			invalid[name] = err.Error()
			r.logger.Warn().Str("service", name).Err(err).Msg("contract failed validation")
		}
	}

	considered := make(map[string]bool, len(services))
	for _, name := range names {
		considered[name] = true
	}

	finalReasons := make(map[string][]string)
	satisfied := make(map[string]bool)
	passes := 0

	maxPasses := len(services) + 1
	for pass := 1; pass <= maxPasses; pass++ {
		passes = pass
		siblings := r.siblingIndex(names, services, considered)
		satisfied = make(map[string]bool)
		reasons := make(map[string][]string)

		for _, name := range names {
			if !considered[name] {
				continue
			}
			if cause, bad := invalid[name]; bad {
				reasons[name] = []string{cause}
				continue
			}

			svc := services[name]
			ok := true
			for _, req := range svc.Contract.Requires {
				verdict := r.matcher.Match(req, MatchContext{Facts: facts, Siblings: siblings})
				if !verdict.Satisfied {
					ok = false
					reasons[name] = append(reasons[name], verdict.Reason)
				}
			}
			satisfied[name] = ok
		}

		// Elide failing optional services as a batch, then re-evaluate:
		// a removed sibling may invalidate container requirements that
		// held this pass.
		removed := 0
		for _, name := range names {
			if !considered[name] || satisfied[name] {
				continue
			}
			if services[name].Optional {
				considered[name] = false
				finalReasons[name] = reasons[name]
				removed++
				r.logger.Info().
					Str("service", name).
					Strs("unmet", reasons[name]).
					Msg("optional service elided")
			}
		}

		if removed == 0 {
			for name, rs := range reasons {
				if !satisfied[name] {
					finalReasons[name] = rs
				}
			}
			break
		}
	}

	res := &Resolution{
		ID:        uuid.New().String(),
		Valid:     true,
		Fulfilled: []string{},
		Unmet:     []string{},
		Reasons:   finalReasons,
		Facts:     facts,
		StartedAt: started,
		Passes:    passes,
	}

	for _, name := range names {
		if considered[name] && satisfied[name] {
			res.Fulfilled = append(res.Fulfilled, name)
			continue
		}
		res.Unmet = append(res.Unmet, name)
		if !services[name].Optional {
			res.Valid = false
		}
	}
	res.Duration = time.Since(started)

	r.logger.Info().
		Str("resolution_id", res.ID).
		Bool("valid", res.Valid).
		Int("fulfilled", len(res.Fulfilled)).
		Int("unmet", len(res.Unmet)).
		Int("passes", res.Passes).
		Dur("duration", res.Duration).
		Msg("resolution completed")

	return res, nil
}

// siblingIndex builds the slug -> contract lookup for one pass from the
// services still under consideration. Services reference each other only by
// slug, never by object, so the index is rebuilt fresh each pass.
func (r *Resolver) siblingIndex(names []string, services map[string]Service, considered map[string]bool) map[string]Contract {
	idx := make(map[string]Contract)
	for _, name := range names {
		if !considered[name] {
			continue
		}
		c := services[name].Contract
		if c.Slug == "" {
			continue
		}
		idx[c.Slug] = c
	}
	return idx
}
