package target

import (
	"sort"

	"github.com/edgewarden/edgewarden/pkg/contracts"
)

// State is the operator-declared desired state of the device: which
// services should run and under what compatibility contracts.
type State struct {
	// Device optionally names the device this state is intended for.
	// Informational; the agent does not refuse foreign state files.
	Device string `json:"device,omitempty" yaml:"device,omitempty"`

	// Services maps service names to their specifications.
	Services map[string]ServiceSpec `json:"services" yaml:"services"`
}

// ServiceSpec describes one service the agent should run.
type ServiceSpec struct {
	// Image is the container image reference handed to the runtime.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// Optional marks the service as elidable: when its contract is
	// unmet the service is dropped from the resolution instead of
	// invalidating it.
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty"`

	// Contract is the inline compatibility contract.
	Contract *contracts.Contract `json:"contract,omitempty" yaml:"contract,omitempty"`

	// ContractFile references a contract document, relative to the
	// state file. Exactly one of Contract and ContractFile must be set.
	ContractFile string `json:"contractFile,omitempty" yaml:"contractFile,omitempty"`
}

// Names returns the service names in sorted order.
func (s *State) Names() []string {
	names := make([]string, 0, len(s.Services))
	for name := range s.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Batch converts the state into a resolver input set. Specs without a
// hydrated contract are skipped; the loader guarantees hydration for
// states it produces.
func (s *State) Batch() map[string]contracts.Service {
	services := make(map[string]contracts.Service, len(s.Services))
	for name, spec := range s.Services {
		if spec.Contract == nil {
			continue
		}
		services[name] = contracts.Service{
			Contract: *spec.Contract,
			Optional: spec.Optional,
		}
	}
	return services
}

// Spec returns the service spec for a name.
func (s *State) Spec(name string) (ServiceSpec, bool) {
	spec, ok := s.Services[name]
	return spec, ok
}
