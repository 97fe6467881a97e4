package target

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/edgewarden/edgewarden/pkg/contracts"
)

func testLoader() *Loader {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	return NewLoader(contracts.NewSchemaRegistry(), logger)
}

func writeState(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "state.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write state file: %v", err)
	}
	return path
}

func TestLoad_InlineContracts(t *testing.T) {
	loader := testLoader()
	tmpDir := t.TempDir()

	path := writeState(t, tmpDir, `
device: bench-01
services:
  camera:
    image: registry.local/camera:2.1.0
    contract:
      slug: camera
      version: 2.1.0
      type: vision.capture
      requires:
        - type: sw.l4t
          version: ">=35.4"
  overlay:
    image: registry.local/overlay:1.0.0
    optional: true
    contract:
      slug: overlay
      version: 1.0.0
      requires:
        - type: sw.container
          slug: camera
          version: "^2.0.0"
`)

	state, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if state.Device != "bench-01" {
		t.Errorf("Expected device 'bench-01', got '%s'", state.Device)
	}

	if len(state.Services) != 2 {
		t.Fatalf("Expected 2 services, got %d", len(state.Services))
	}

	camera := state.Services["camera"]
	if camera.Contract == nil {
		t.Fatal("Camera contract not parsed")
	}
	if camera.Contract.Slug != "camera" {
		t.Errorf("Expected slug 'camera', got '%s'", camera.Contract.Slug)
	}
	if camera.Contract.Type != "vision.capture" {
		t.Errorf("Expected type 'vision.capture', got '%s'", camera.Contract.Type)
	}
	if camera.Optional {
		t.Error("Camera should not be optional")
	}

	overlay := state.Services["overlay"]
	if !overlay.Optional {
		t.Error("Overlay should be optional")
	}
	if overlay.Contract == nil || len(overlay.Contract.Requires) != 1 {
		t.Fatal("Overlay requirements not parsed")
	}

	req := overlay.Contract.Requires[0]
	if req.Type != contracts.RequirementTypeContainer {
		t.Errorf("Expected requirement type '%s', got '%s'", contracts.RequirementTypeContainer, req.Type)
	}
	if req.Slug != "camera" {
		t.Errorf("Expected requirement slug 'camera', got '%s'", req.Slug)
	}
	if req.Version != "^2.0.0" {
		t.Errorf("Expected requirement version '^2.0.0', got '%s'", req.Version)
	}
}

func TestLoad_ContractFileHydration(t *testing.T) {
	loader := testLoader()
	tmpDir := t.TempDir()

	contractDir := filepath.Join(tmpDir, "contracts")
	if err := os.MkdirAll(contractDir, 0755); err != nil {
		t.Fatalf("Failed to create contract dir: %v", err)
	}

	contractContent := `
slug: inference
name: Inference Engine
version: 3.2.0
requires:
  - type: sw.agent
    version: ">=1.0.0"
`
	if err := os.WriteFile(filepath.Join(contractDir, "inference.yaml"), []byte(contractContent), 0644); err != nil {
		t.Fatalf("Failed to write contract file: %v", err)
	}

	path := writeState(t, tmpDir, `
services:
  inference:
    image: registry.local/inference:3.2.0
    contractFile: contracts/inference.yaml
`)

	state, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	spec := state.Services["inference"]
	if spec.Contract == nil {
		t.Fatal("Contract was not hydrated from file")
	}
	if spec.ContractFile != "" {
		t.Errorf("ContractFile should be cleared after hydration, got '%s'", spec.ContractFile)
	}
	if spec.Contract.Slug != "inference" {
		t.Errorf("Expected slug 'inference', got '%s'", spec.Contract.Slug)
	}
	if spec.Contract.Name != "Inference Engine" {
		t.Errorf("Expected name 'Inference Engine', got '%s'", spec.Contract.Name)
	}
	if len(spec.Contract.Requires) != 1 {
		t.Fatalf("Expected 1 requirement, got %d", len(spec.Contract.Requires))
	}
}

func TestLoad_AbsoluteContractFile(t *testing.T) {
	loader := testLoader()
	stateDir := t.TempDir()
	contractDir := t.TempDir()

	contractPath := filepath.Join(contractDir, "telemetry.yaml")
	if err := os.WriteFile(contractPath, []byte("slug: telemetry\nversion: 1.0.0\n"), 0644); err != nil {
		t.Fatalf("Failed to write contract file: %v", err)
	}

	path := writeState(t, stateDir, `
services:
  telemetry:
    contractFile: `+contractPath+`
`)

	state, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if state.Services["telemetry"].Contract == nil {
		t.Fatal("Contract was not hydrated from absolute path")
	}
}

func TestLoad_MissingStateFile(t *testing.T) {
	loader := testLoader()

	_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing state file")
	}

	var cerr *contracts.ContractError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected ContractError, got %T", err)
	}
	if cerr.Code != contracts.ErrCodeBadDocument {
		t.Errorf("Expected code %s, got %s", contracts.ErrCodeBadDocument, cerr.Code)
	}
	if !contracts.IsValidation(err) {
		t.Error("Missing state file should classify as a validation error")
	}
}

func TestLoad_MissingContractFile(t *testing.T) {
	loader := testLoader()
	tmpDir := t.TempDir()

	path := writeState(t, tmpDir, `
services:
  ghost:
    contractFile: contracts/ghost.yaml
`)

	_, err := loader.Load(context.Background(), path)
	if err == nil {
		t.Fatal("Expected error for missing contract file")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("Error should name the service, got: %v", err)
	}
}

func TestParse_Errors(t *testing.T) {
	loader := testLoader()

	tests := []struct {
		name     string
		document string
		contains string
	}{
		{
			name:     "malformed yaml",
			document: "services: [unclosed",
			contains: "not valid YAML",
		},
		{
			name: "services as list",
			document: `
services:
  - name: camera
`,
			contains: "does not match schema",
		},
		{
			name: "contract version wrong type",
			document: `
services:
  camera:
    contract:
      slug: camera
      version: 2
`,
			contains: "does not match schema",
		},
		{
			name: "both inline and file",
			document: `
services:
  camera:
    contract:
      slug: camera
    contractFile: contracts/camera.yaml
`,
			contains: "both an inline contract and a contract file",
		},
		{
			name: "neither inline nor file",
			document: `
services:
  camera:
    image: registry.local/camera:2.1.0
`,
			contains: "declares no contract",
		},
		{
			name: "duplicate contract slug",
			document: `
services:
  camera-front:
    contract:
      slug: camera
      version: 1.0.0
  camera-rear:
    contract:
      slug: camera
      version: 1.0.0
`,
			contains: "both provide contract slug",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Parse(context.Background(), []byte(tt.document), t.TempDir())
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Expected error containing %q, got: %v", tt.contains, err)
			}
			if !contracts.IsValidation(err) {
				t.Errorf("Expected a validation error, got: %v", err)
			}
		})
	}
}

func TestParse_EmptySlugNotDuplicate(t *testing.T) {
	loader := testLoader()

	// Two services without slugs load fine; the missing slugs become
	// per-service failures at resolution time instead.
	document := `
services:
  first:
    contract:
      version: 1.0.0
  second:
    contract:
      version: 2.0.0
`

	state, err := loader.Parse(context.Background(), []byte(document), t.TempDir())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(state.Services) != 2 {
		t.Errorf("Expected 2 services, got %d", len(state.Services))
	}
}

func TestLoad_NilRegistrySkipsSchemaCheck(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(nil, logger)
	tmpDir := t.TempDir()

	// The extra field would fail schema validation; without a registry
	// it decodes anyway.
	path := writeState(t, tmpDir, `
services:
  camera:
    unknownField: true
    contract:
      slug: camera
`)

	state, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state.Services["camera"].Contract == nil {
		t.Error("Contract should still decode without a registry")
	}
}
