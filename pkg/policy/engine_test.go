package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openhoist/openhoist/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestCleanInputPasses(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Evaluate(context.Background(), &Input{
		Stack: "prod",
		Mode:  "apply",
		Rules: []engine.AddressRule{
			{ID: "allow-1-2-3-4", Scope: "sql-main", StartAddress: "1.2.3.4", EndAddress: "1.2.3.4"},
		},
		SigningTTLSeconds: 7200,
		Endpoints:         map[string]string{"endpoint": "https://api.example.com"},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected allowed, got violations: %+v", result.Violations)
	}
	if len(result.EvaluatedPolicies) != 3 {
		t.Errorf("expected 3 builtin policies evaluated, got %v", result.EvaluatedPolicies)
	}
}

func TestAddressRangeBlocked(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Evaluate(context.Background(), &Input{
		Stack: "prod",
		Mode:  "apply",
		Rules: []engine.AddressRule{
			{ID: "allow-1-2-3-4", Scope: "sql-main", StartAddress: "1.2.3.4", EndAddress: "1.2.3.9"},
		},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected range rule to be blocked")
	}
	if len(result.Errors()) == 0 {
		t.Fatal("expected error-severity violation")
	}
}

func TestExcessiveSigningTTLBlocked(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Evaluate(context.Background(), &Input{
		Stack:             "prod",
		Mode:              "apply",
		SigningTTLSeconds: 700000,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected excessive ttl to be blocked")
	}
}

func TestPlainHTTPEndpointBlocked(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Evaluate(context.Background(), &Input{
		Stack:     "prod",
		Mode:      "apply",
		Endpoints: map[string]string{"endpoint": "http://api.example.com"},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected plain http endpoint to be blocked")
	}
}

func TestEmptyEndpointIgnored(t *testing.T) {
	e := newTestEngine(t)

	// Preview leaves endpoints unresolved; an empty value is not a finding.
	result, err := e.Evaluate(context.Background(), &Input{
		Stack:     "prod",
		Mode:      "preview",
		Endpoints: map[string]string{"endpoint": ""},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected empty endpoint to pass, got %+v", result.Violations)
	}
}

func TestCustomPolicy(t *testing.T) {
	e := newTestEngine(t)

	custom := Policy{
		Name:     "no-staging-applies",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package openhoist.policies.custom

import rego.v1

deny contains violation if {
	input.environment == "staging"
	input.mode == "apply"
	violation := {"message": "applies to staging are frozen"}
}
`,
	}
	if err := e.AddPolicies(context.Background(), []Policy{custom}); err != nil {
		t.Fatalf("AddPolicies: %v", err)
	}

	result, err := e.Evaluate(context.Background(), &Input{
		Stack:       "web",
		Environment: "staging",
		Mode:        "apply",
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected custom policy to block")
	}
	if result.Violations[0].Policy != "no-staging-applies" {
		t.Errorf("violation attributed to %q", result.Violations[0].Policy)
	}
}

func TestDisabledPolicySkipped(t *testing.T) {
	e := newTestEngine(t)

	disabled := Policy{
		Name:     "always-deny",
		Severity: SeverityError,
		Enabled:  false,
		Rego: `package openhoist.policies.alwaysdeny

import rego.v1

deny contains violation if {
	violation := {"message": "nothing is allowed"}
}
`,
	}
	if err := e.AddPolicies(context.Background(), []Policy{disabled}); err != nil {
		t.Fatalf("AddPolicies: %v", err)
	}

	result, err := e.Evaluate(context.Background(), &Input{Stack: "prod", Mode: "apply"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Allowed {
		t.Errorf("disabled policy should not block: %+v", result.Violations)
	}
	for _, name := range result.EvaluatedPolicies {
		if name == "always-deny" {
			t.Error("disabled policy should not be evaluated")
		}
	}
}

func TestInvalidRegoRejected(t *testing.T) {
	e := newTestEngine(t)
	err := e.AddPolicies(context.Background(), []Policy{{
		Name:    "broken",
		Enabled: true,
		Rego:    "this is not rego",
	}})
	if err == nil {
		t.Fatal("expected compile error")
	}
}
