package api

import (
	"context"
	"time"

	"github.com/edgewarden/edgewarden/pkg/contracts"
)

// Controller is the agent surface the API serves. The daemon implements
// it; tests substitute stubs.
type Controller interface {
	// Status reports the agent's identity and the last resolution
	// summary.
	Status() Status

	// LastResolution returns the most recent resolution, or nil before
	// the first cycle completes.
	LastResolution() *contracts.Resolution

	// Facts probes the device fresh.
	Facts(ctx context.Context) (contracts.Facts, error)

	// TriggerResolve runs an immediate reconciliation cycle and returns
	// its resolution.
	TriggerResolve(ctx context.Context) (*contracts.Resolution, error)
}

// Status is the agent status document served at /v1/status.
type Status struct {
	Version        string             `json:"version"`
	Device         string             `json:"device"`
	Mode           string             `json:"mode"`
	StartedAt      time.Time          `json:"started_at"`
	UptimeSeconds  float64            `json:"uptime_seconds"`
	Resolutions    uint64             `json:"resolutions"`
	LastResolution *ResolutionSummary `json:"last_resolution,omitempty"`
}

// ResolutionSummary is the condensed resolution view embedded in Status.
type ResolutionSummary struct {
	ID        string    `json:"id"`
	Valid     bool      `json:"valid"`
	Fulfilled int       `json:"fulfilled"`
	Unmet     int       `json:"unmet"`
	StartedAt time.Time `json:"started_at"`
}

// Summarize reduces a resolution to the counts the status endpoint
// reports. Returns nil for a nil resolution.
func Summarize(resolution *contracts.Resolution) *ResolutionSummary {
	if resolution == nil {
		return nil
	}
	return &ResolutionSummary{
		ID:        resolution.ID,
		Valid:     resolution.Valid,
		Fulfilled: len(resolution.Fulfilled),
		Unmet:     len(resolution.Unmet),
		StartedAt: resolution.StartedAt,
	}
}
