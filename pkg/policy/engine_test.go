package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgewarden/edgewarden/pkg/contracts"
)

func testEngine(t *testing.T, mode Mode) *Engine {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(mode, logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func testInput(mode Mode, valid bool, services map[string]ServiceFact) *Input {
	return &Input{
		Resolution: &contracts.Resolution{
			ID:    "11111111-2222-3333-4444-555555555555",
			Valid: valid,
		},
		Services: services,
		Context: &Context{
			Mode:      mode,
			Device:    "jetson-lab-04",
			Timestamp: time.Now(),
		},
	}
}

func TestNewEngine(t *testing.T) {
	eng := testEngine(t, ModePermissive)

	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("No built-in policies loaded")
	}

	expectedPolicies := []string{
		"reserved-slugs",
		"contract-versions",
		"resolution-validity",
	}

	for _, expected := range expectedPolicies {
		found := false
		for _, p := range policies {
			if p.Name == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}
}

func TestNewEngine_DefaultMode(t *testing.T) {
	eng := testEngine(t, "")
	if eng.Mode() != ModePermissive {
		t.Errorf("Expected default mode %s, got %s", ModePermissive, eng.Mode())
	}
}

func TestEvaluate_ReservedSlugs(t *testing.T) {
	eng := testEngine(t, ModeEnforce)

	tests := []struct {
		name            string
		services        map[string]ServiceFact
		expectViolation bool
	}{
		{
			name: "fulfilled service with reserved slug",
			services: map[string]ServiceFact{
				"sidecar": {Slug: "warden", Version: "1.0.0", Fulfilled: true},
			},
			expectViolation: true,
		},
		{
			name: "fulfilled service with reserved edgewarden slug",
			services: map[string]ServiceFact{
				"sidecar": {Slug: "edgewarden", Version: "1.0.0", Fulfilled: true},
			},
			expectViolation: true,
		},
		{
			name: "unfulfilled service with reserved slug",
			services: map[string]ServiceFact{
				"sidecar": {Slug: "warden", Version: "1.0.0", Fulfilled: false},
			},
			expectViolation: false,
		},
		{
			name: "ordinary slug",
			services: map[string]ServiceFact{
				"camera": {Slug: "camera", Version: "2.1.0", Fulfilled: true},
			},
			expectViolation: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations, err := eng.Evaluate(context.Background(), testInput(ModeEnforce, true, tt.services))
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			found := false
			for _, v := range violations {
				if v.Policy == "reserved-slugs" {
					found = true
					if !v.Blocking() {
						t.Errorf("Reserved slug violation should block, got level %s", v.Level)
					}
					if v.Service != "sidecar" {
						t.Errorf("Expected violation service 'sidecar', got '%s'", v.Service)
					}
				}
			}

			if found != tt.expectViolation {
				t.Errorf("Expected violation=%v, got %v. Violations: %+v",
					tt.expectViolation, found, violations)
			}
		})
	}
}

func TestEvaluate_ContractVersions(t *testing.T) {
	eng := testEngine(t, ModePermissive)

	input := testInput(ModePermissive, true, map[string]ServiceFact{
		"camera":  {Slug: "camera", Version: "", Fulfilled: true},
		"overlay": {Slug: "overlay", Version: "1.0.0", Fulfilled: true},
	})

	violations, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if len(violations) != 1 {
		t.Fatalf("Expected 1 violation, got %d: %+v", len(violations), violations)
	}

	v := violations[0]
	if v.Policy != "contract-versions" {
		t.Errorf("Expected policy 'contract-versions', got '%s'", v.Policy)
	}
	if v.Level != SeverityWarning {
		t.Errorf("Expected warning level, got '%s'", v.Level)
	}
	if v.Service != "camera" {
		t.Errorf("Expected service 'camera', got '%s'", v.Service)
	}
	if v.Blocking() {
		t.Error("Versionless contract warning should not block")
	}
	if Blocks(violations) {
		t.Error("A warning alone should not block reconciliation")
	}
}

func TestEvaluate_ResolutionValidity(t *testing.T) {
	tests := []struct {
		name            string
		mode            Mode
		valid           bool
		expectViolation bool
	}{
		{
			name:            "invalid resolution in enforce mode",
			mode:            ModeEnforce,
			valid:           false,
			expectViolation: true,
		},
		{
			name:            "invalid resolution in permissive mode",
			mode:            ModePermissive,
			valid:           false,
			expectViolation: false,
		},
		{
			name:            "valid resolution in enforce mode",
			mode:            ModeEnforce,
			valid:           true,
			expectViolation: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := testEngine(t, tt.mode)

			violations, err := eng.Evaluate(context.Background(), testInput(tt.mode, tt.valid, nil))
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			found := false
			for _, v := range violations {
				if v.Policy == "resolution-validity" {
					found = true
					if !v.Blocking() {
						t.Errorf("Validity violation should block, got level %s", v.Level)
					}
				}
			}

			if found != tt.expectViolation {
				t.Errorf("Expected violation=%v, got %v. Violations: %+v",
					tt.expectViolation, found, violations)
			}
		})
	}
}

func TestEvaluate_CleanInput(t *testing.T) {
	eng := testEngine(t, ModeEnforce)

	input := testInput(ModeEnforce, true, map[string]ServiceFact{
		"camera":  {Slug: "camera", Version: "2.1.0", Fulfilled: true},
		"overlay": {Slug: "overlay", Version: "1.0.0", Optional: true, Fulfilled: false},
	})

	violations, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if len(violations) != 0 {
		t.Errorf("Expected no violations, got %+v", violations)
	}
}

func TestLoadPolicies_OperatorPolicy(t *testing.T) {
	eng := testEngine(t, ModeEnforce)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "no-legacy.rego")

	regoContent := `package custom.policies.legacy

# Rejects the deprecated legacy-camera contract

import rego.v1

deny contains violation if {
	some name, svc in input.services
	svc.fulfilled
	svc.slug == "legacy-camera"
	violation := {
		"message": sprintf("service '%s' uses deprecated contract 'legacy-camera'", [name]),
		"severity": "error",
		"service": name,
	}
}`

	if err := os.WriteFile(policyFile, []byte(regoContent), 0644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{tmpDir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	input := testInput(ModeEnforce, true, map[string]ServiceFact{
		"camera": {Slug: "legacy-camera", Version: "0.9.0", Fulfilled: true},
	})

	violations, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	found := false
	for _, v := range violations {
		if v.Policy == "no-legacy" {
			found = true
			if v.Level != SeverityError {
				t.Errorf("Expected error level from violation object, got '%s'", v.Level)
			}
		}
	}
	if !found {
		t.Errorf("Expected a no-legacy violation, got %+v", violations)
	}
}

func TestEvaluate_StringViolations(t *testing.T) {
	eng := testEngine(t, ModePermissive)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "plain-messages.rego")

	// A deny rule may yield bare strings; such violations take the
	// policy's default severity.
	regoContent := `package custom.policies.plain

import rego.v1

deny contains msg if {
	input.resolution.valid == false
	msg := "resolution is not valid"
}`

	if err := os.WriteFile(policyFile, []byte(regoContent), 0644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{policyFile}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	violations, err := eng.Evaluate(context.Background(), testInput(ModePermissive, false, nil))
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	found := false
	for _, v := range violations {
		if v.Policy == "plain-messages" {
			found = true
			if v.Message != "resolution is not valid" {
				t.Errorf("Unexpected message: %s", v.Message)
			}
			if v.Level != SeverityWarning {
				t.Errorf("Expected loader default severity, got '%s'", v.Level)
			}
		}
	}
	if !found {
		t.Errorf("Expected a plain-messages violation, got %+v", violations)
	}
}

func TestReloadPolicies(t *testing.T) {
	eng := testEngine(t, ModePermissive)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "extra.rego")
	regoContent := `package custom.policies.extra

import rego.v1

deny contains msg if {
	false
	msg := "never"
}`
	if err := os.WriteFile(policyFile, []byte(regoContent), 0644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	builtinCount := len(eng.ListPolicies())

	if err := eng.LoadPolicies(context.Background(), []string{policyFile}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}
	if got := len(eng.ListPolicies()); got != builtinCount+1 {
		t.Errorf("Expected %d policies after load, got %d", builtinCount+1, got)
	}

	if err := eng.ReloadPolicies(context.Background()); err != nil {
		t.Fatalf("Failed to reload policies: %v", err)
	}
	if got := len(eng.ListPolicies()); got != builtinCount {
		t.Errorf("Expected %d policies after reload, got %d", builtinCount, got)
	}
}

func TestGetPolicy(t *testing.T) {
	eng := testEngine(t, ModePermissive)

	policy, err := eng.GetPolicy("reserved-slugs")
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}
	if policy.Severity != SeverityError {
		t.Errorf("Expected error severity, got '%s'", policy.Severity)
	}

	if _, err := eng.GetPolicy("does-not-exist"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestBlocks(t *testing.T) {
	tests := []struct {
		name       string
		violations []Violation
		want       bool
	}{
		{
			name: "no violations",
			want: false,
		},
		{
			name: "warning only",
			violations: []Violation{
				{Policy: "contract-versions", Level: SeverityWarning},
			},
			want: false,
		},
		{
			name: "error",
			violations: []Violation{
				{Policy: "contract-versions", Level: SeverityWarning},
				{Policy: "reserved-slugs", Level: SeverityError},
			},
			want: true,
		},
		{
			name: "critical",
			violations: []Violation{
				{Policy: "custom", Level: SeverityCritical},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Blocks(tt.violations); got != tt.want {
				t.Errorf("Blocks() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewInput(t *testing.T) {
	resolution := &contracts.Resolution{
		ID:        "res-1",
		Valid:     true,
		Fulfilled: []string{"camera"},
		Unmet:     []string{"overlay"},
	}

	services := map[string]contracts.Service{
		"camera": {
			Contract: contracts.Contract{Slug: "camera", Version: "2.1.0"},
		},
		"overlay": {
			Contract: contracts.Contract{Slug: "overlay", Version: "1.0.0"},
			Optional: true,
		},
	}

	input := NewInput(resolution, services, &Context{Mode: ModeEnforce, Timestamp: time.Now()})

	if input.Resolution != resolution {
		t.Error("Input should carry the resolution")
	}

	camera := input.Services["camera"]
	if !camera.Fulfilled {
		t.Error("Camera should be marked fulfilled")
	}
	if camera.Slug != "camera" || camera.Version != "2.1.0" {
		t.Errorf("Unexpected camera fact: %+v", camera)
	}

	overlay := input.Services["overlay"]
	if overlay.Fulfilled {
		t.Error("Overlay should not be marked fulfilled")
	}
	if !overlay.Optional {
		t.Error("Overlay should be optional")
	}
}
