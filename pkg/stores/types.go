package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/edgewarden/edgewarden/pkg/contracts"
)

// ResolutionRecord is a stored resolution
type ResolutionRecord struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	Valid          bool            `json:"valid"`
	FulfilledCount int             `json:"fulfilled_count"`
	UnmetCount     int             `json:"unmet_count"`
	Detail         string          `json:"detail"` // JSON blob: the full Resolution
	Services       []ServiceResult `json:"services"`
}

// ServiceResult is one service's outcome within a stored resolution
type ServiceResult struct {
	ResolutionID string `json:"resolution_id"`
	Slug         string `json:"slug"` // service name from the target state
	Optional     bool   `json:"optional"`
	Fulfilled    bool   `json:"fulfilled"`
	Reasons      string `json:"reasons"` // JSON array of strings
}

// NewResolutionRecord builds a record from a resolution and the batch
// it was computed from. Service rows are emitted in sorted order and
// cover every service the resolution saw, elided optionals included.
func NewResolutionRecord(resolution *contracts.Resolution, services map[string]contracts.Service) (*ResolutionRecord, error) {
	detail, err := json.Marshal(resolution)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resolution: %w", err)
	}

	fulfilled := make(map[string]bool, len(resolution.Fulfilled))
	for _, name := range resolution.Fulfilled {
		fulfilled[name] = true
	}

	names := make([]string, 0, len(resolution.Fulfilled)+len(resolution.Unmet))
	names = append(names, resolution.Fulfilled...)
	names = append(names, resolution.Unmet...)
	sort.Strings(names)

	record := &ResolutionRecord{
		ID:             resolution.ID,
		CreatedAt:      resolution.StartedAt,
		Valid:          resolution.Valid,
		FulfilledCount: len(resolution.Fulfilled),
		UnmetCount:     len(resolution.Unmet),
		Detail:         string(detail),
		Services:       make([]ServiceResult, 0, len(names)),
	}

	for _, name := range names {
		reasons := resolution.Reasons[name]
		if reasons == nil {
			reasons = []string{}
		}
		reasonsJSON, err := json.Marshal(reasons)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal reasons for %s: %w", name, err)
		}

		record.Services = append(record.Services, ServiceResult{
			ResolutionID: resolution.ID,
			Slug:         name,
			Optional:     services[name].Optional,
			Fulfilled:    fulfilled[name],
			Reasons:      string(reasonsJSON),
		})
	}

	return record, nil
}

// Resolution decodes the stored resolution detail.
func (r *ResolutionRecord) Resolution() (*contracts.Resolution, error) {
	var resolution contracts.Resolution
	if err := json.Unmarshal([]byte(r.Detail), &resolution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resolution detail: %w", err)
	}
	return &resolution, nil
}

// ServiceReasons decodes the stored reasons list.
func (s *ServiceResult) ServiceReasons() ([]string, error) {
	var reasons []string
	if err := json.Unmarshal([]byte(s.Reasons), &reasons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reasons: %w", err)
	}
	return reasons, nil
}

// Store defines the interface for the resolution history layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	// Resolution history
	SaveResolution(ctx context.Context, record *ResolutionRecord) error
	GetResolution(ctx context.Context, id string) (*ResolutionRecord, error)
	ListResolutions(ctx context.Context, limit int) ([]*ResolutionRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
