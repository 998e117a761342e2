package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const denyEverythingRego = `# Blocks every run.
# Used to freeze deployments during incidents.
package openhoist.policies.freeze

import rego.v1

deny contains violation if {
	violation := {"message": "deployments are frozen"}
}
`

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "freeze.rego"), []byte(denyEverythingRego), 0644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0644); err != nil {
		t.Fatalf("write readme: %v", err)
	}

	policies, err := NewLoader(zerolog.Nop()).LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(policies))
	}
	p := policies[0]
	if p.Name != "freeze" {
		t.Errorf("name = %q", p.Name)
	}
	if !p.Enabled || p.Severity != SeverityError {
		t.Errorf("defaults not applied: %+v", p)
	}
	if p.Description == "" {
		t.Error("expected description from leading comments")
	}
}

func TestLoadDirRecursive(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "security")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "freeze.rego"), []byte(denyEverythingRego), 0644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	policies, err := NewLoader(zerolog.Nop()).LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(policies))
	}
}

func TestLoadDirRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "policy.rego")
	if err := os.WriteFile(file, []byte(denyEverythingRego), 0644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	if _, err := NewLoader(zerolog.Nop()).LoadDir(file); err == nil {
		t.Fatal("expected error for non-directory path")
	}
}

func TestExtractDescriptionStopsAtCode(t *testing.T) {
	src := "# First line.\n# Second line.\npackage x\n# not part of the description\n"
	got := extractDescription(src)
	if got != "First line. Second line." {
		t.Errorf("got %q", got)
	}
}
