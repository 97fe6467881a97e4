package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testPolicyLoader() *Loader {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	return NewLoader(logger)
}

const testRegoPolicy = `package custom.policies.pinned

# Requires fulfilled contracts to pin a version

import rego.v1

deny contains violation if {
	some name, svc in input.services
	svc.fulfilled
	svc.version == ""
	violation := {
		"message": sprintf("service '%s' must pin a contract version", [name]),
		"severity": "error",
		"service": name,
	}
}`

func TestLoadFromFile_Rego(t *testing.T) {
	loader := testPolicyLoader()

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "pinned-versions.rego")

	if err := os.WriteFile(policyFile, []byte(testRegoPolicy), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policy, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "pinned-versions" {
		t.Errorf("Expected name 'pinned-versions', got '%s'", policy.Name)
	}

	if policy.Rego != testRegoPolicy {
		t.Error("Rego content doesn't match")
	}

	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}

	if policy.Severity != SeverityWarning {
		t.Errorf("Expected default severity '%s', got '%s'", SeverityWarning, policy.Severity)
	}

	if policy.Description != "Requires fulfilled contracts to pin a version" {
		t.Errorf("Unexpected description: '%s'", policy.Description)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := testPolicyLoader()

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "no-legacy.json")

	policy := Policy{
		Name:        "no-legacy",
		Description: "Rejects deprecated contracts",
		Rego:        testRegoPolicy,
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"deprecation"},
	}

	data, err := json.Marshal(policy)
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}

	if err := os.WriteFile(policyFile, data, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if loaded.Name != policy.Name {
		t.Errorf("Expected name '%s', got '%s'", policy.Name, loaded.Name)
	}

	if loaded.Severity != policy.Severity {
		t.Errorf("Expected severity '%s', got '%s'", policy.Severity, loaded.Severity)
	}

	if loaded.CreatedAt.IsZero() {
		t.Error("CreatedAt should be defaulted for JSON policies")
	}
}

func TestLoadFromDirectory(t *testing.T) {
	loader := testPolicyLoader()

	tmpDir := t.TempDir()

	policies := map[string]string{
		"rule1.rego": testRegoPolicy,
		"rule2.rego": testRegoPolicy,
		"rule3.rego": testRegoPolicy,
	}

	for filename, content := range policies {
		path := filepath.Join(tmpDir, filename)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write test file: %v", err)
		}
	}

	// Non-policy files are ignored
	if err := os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("# Policies"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.loadFromDirectory(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}

	if len(loaded) != len(policies) {
		t.Errorf("Expected %d policies, got %d", len(policies), len(loaded))
	}
}

func TestLoadFromDirectory_Recursive(t *testing.T) {
	loader := testPolicyLoader()

	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "site")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "rule1.rego"), []byte(testRegoPolicy), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(subDir, "rule2.rego"), []byte(testRegoPolicy), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.loadFromDirectory(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}

	if len(loaded) != 2 {
		t.Errorf("Expected 2 policies (including subdirectory), got %d", len(loaded))
	}
}

func TestLoadFromDirectory_SkipsBadFiles(t *testing.T) {
	loader := testPolicyLoader()

	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "good.rego"), []byte(testRegoPolicy), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "bad.json"), []byte("not json"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.loadFromDirectory(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}

	if len(loaded) != 1 {
		t.Errorf("Expected 1 policy with the bad file skipped, got %d", len(loaded))
	}
}

func TestLoadFromPaths(t *testing.T) {
	loader := testPolicyLoader()

	tmpDir := t.TempDir()

	dir1 := filepath.Join(tmpDir, "dir1")
	if err := os.Mkdir(dir1, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir1, "rule1.rego"), []byte(testRegoPolicy), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	file1 := filepath.Join(tmpDir, "rule2.rego")
	if err := os.WriteFile(file1, []byte(testRegoPolicy), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.LoadFromPaths(context.Background(), []string{dir1, file1})
	if err != nil {
		t.Fatalf("Failed to load paths: %v", err)
	}

	if len(loaded) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(loaded))
	}
}

func TestExtractDescription(t *testing.T) {
	loader := testPolicyLoader()

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name: "single line comment",
			content: `# Gates camera deployments
package test`,
			expected: "Gates camera deployments",
		},
		{
			name: "multi line comments",
			content: `# Gates camera deployments
# on L4T revision checks
package test`,
			expected: "Gates camera deployments on L4T revision checks",
		},
		{
			name: "no comments",
			content: `package test
deny contains msg if { false; msg := "never" }`,
			expected: "",
		},
		{
			name: "comments with empty lines",
			content: `# First line
#
# Second line
package test`,
			expected: "First line Second line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := loader.extractDescription(tt.content)
			if result != tt.expected {
				t.Errorf("Expected description '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestClearCache(t *testing.T) {
	loader := testPolicyLoader()

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "cached.rego")
	if err := os.WriteFile(policyFile, []byte(testRegoPolicy), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := loader.loadFromFile(context.Background(), policyFile); err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if len(loader.cache) != 1 {
		t.Errorf("Expected 1 cache entry, got %d", len(loader.cache))
	}

	loader.ClearCache()

	if len(loader.cache) != 0 {
		t.Errorf("Expected 0 cache entries after clear, got %d", len(loader.cache))
	}
}

func TestLoadFromFile_UnsupportedType(t *testing.T) {
	loader := testPolicyLoader()

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "policy.txt")
	if err := os.WriteFile(policyFile, []byte("not a policy"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := loader.loadFromFile(context.Background(), policyFile); err == nil {
		t.Error("Expected error for unsupported file type")
	}
}

func TestLoadFromFile_InvalidJSON(t *testing.T) {
	loader := testPolicyLoader()

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "broken.json")
	if err := os.WriteFile(policyFile, []byte("invalid json"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := loader.loadFromFile(context.Background(), policyFile); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestLoadFromPath_NonExistent(t *testing.T) {
	loader := testPolicyLoader()

	if _, err := loader.loadFromPath(context.Background(), "/nonexistent/path"); err == nil {
		t.Error("Expected error for non-existent path")
	}
}
