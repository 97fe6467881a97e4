package contracts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestParseContract(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	doc := []byte(`
slug: cuda-runtime
name: CUDA Runtime
version: 11.4.0
type: sw.container
requires:
  - type: sw.l4t
    version: ">=32.0"
  - type: sw.agent
    version: ">=1.2.0"
`)

	c, err := ParseContract(ctx, sr, doc)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if c.Slug != "cuda-runtime" {
		t.Errorf("expected slug cuda-runtime, got %q", c.Slug)
	}
	if c.Version != "11.4.0" {
		t.Errorf("expected version 11.4.0, got %q", c.Version)
	}
	if len(c.Requires) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(c.Requires))
	}
	if c.Requires[0].Type != RequirementTypeL4T || c.Requires[0].Version != ">=32.0" {
		t.Errorf("unexpected first requirement: %+v", c.Requires[0])
	}
}

func TestParseContract_IncompleteStillParses(t *testing.T) {
	sr := NewSchemaRegistry()

	// No slug: the document has a valid shape, so it parses. Completeness
	// is Validate's job and surfaces as an unmet service at resolution.
	c, err := ParseContract(context.Background(), sr, []byte(`name: unnamed`))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if c.Slug != "" {
		t.Errorf("expected empty slug, got %q", c.Slug)
	}
	if err := Validate(c); err == nil {
		t.Error("expected the parsed contract to fail validation")
	}
}

func TestParseContract_BadDocuments(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name string
		doc  string
	}{
		{name: "not yaml", doc: "slug: [unclosed"},
		{name: "unknown field", doc: "slug: x\nimage: registry.example.com/x:1"},
		{name: "mistyped requires", doc: "slug: x\nrequires: sw.l4t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseContract(ctx, sr, []byte(tt.doc))
			if err == nil {
				t.Fatal("expected parse error, got nil")
			}
			if !IsValidation(err) {
				t.Errorf("expected a validation-class error, got: %v", err)
			}
		})
	}
}

func TestLoadContract(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "inference.yaml")
	doc := []byte("slug: inference\nversion: 2.1.0\n")
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		t.Fatalf("failed to write contract file: %v", err)
	}

	c, err := LoadContract(ctx, sr, path)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if c.Slug != "inference" {
		t.Errorf("expected slug inference, got %q", c.Slug)
	}
}

func TestLoadContract_MissingFile(t *testing.T) {
	sr := NewSchemaRegistry()

	_, err := LoadContract(context.Background(), sr, filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !IsValidation(err) {
		t.Errorf("expected a validation-class error, got: %v", err)
	}
}
