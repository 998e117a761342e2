package policy

import (
	"time"

	"github.com/openhoist/openhoist/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not
	// block a run.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block a run.
	SeverityError Severity = "error"
)

// Policy is one named Rego policy.
type Policy struct {
	// Name is the unique policy name.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego source.
	Rego string `json:"rego"`

	// Severity is the default severity for violations the policy emits.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`
}

// Violation is one policy finding.
type Violation struct {
	// Policy is the name of the violated policy.
	Policy string `json:"policy"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity.
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating all policies against one input.
type Result struct {
	// Allowed is false when any violation is at error severity.
	Allowed bool `json:"allowed"`

	// Violations lists all findings, including warnings.
	Violations []Violation `json:"violations,omitempty"`

	// EvaluatedPolicies lists the policies that ran.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation happened.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Errors returns only the blocking violations.
func (r *Result) Errors() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			out = append(out, v)
		}
	}
	return out
}

// Input is the deployment snapshot policies evaluate against.
type Input struct {
	// Stack is the stack name.
	Stack string `json:"stack"`

	// Environment tags the deployment.
	Environment string `json:"environment,omitempty"`

	// Mode is "preview" or "apply".
	Mode string `json:"mode"`

	// Rules are the synthesized firewall rules.
	Rules []engine.AddressRule `json:"rules,omitempty"`

	// SigningTTLSeconds is the signed-URL validity in seconds, zero when
	// signing is disabled.
	SigningTTLSeconds int64 `json:"signing_ttl_seconds,omitempty"`

	// Endpoints maps export names to resolved endpoint values.
	Endpoints map[string]string `json:"endpoints,omitempty"`
}
