package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Engine compiles policies and evaluates them against deployment inputs.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	log      zerolog.Logger
}

type compiledPolicy struct {
	policy Policy
	query  rego.PreparedEvalQuery
}

// NewEngine creates an engine preloaded with the builtin policies.
func NewEngine(log zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		log:      log.With().Str("component", "policy").Logger(),
	}
	for _, p := range BuiltinPolicies() {
		if err := e.add(context.Background(), p); err != nil {
			return nil, fmt.Errorf("failed to compile builtin policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// AddPolicies compiles and registers policies, replacing same-named ones.
func (e *Engine) AddPolicies(ctx context.Context, policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range policies {
		if err := e.add(ctx, p); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
	}
	return nil
}

// ReplacePolicies swaps the entire user-loaded policy set while keeping
// builtins. Used by the hot-reload watcher.
func (e *Engine) ReplacePolicies(ctx context.Context, policies []Policy) error {
	fresh := make(map[string]*compiledPolicy)
	for _, p := range BuiltinPolicies() {
		cp, err := compile(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to compile builtin policy %s: %w", p.Name, err)
		}
		fresh[p.Name] = cp
	}
	for _, p := range policies {
		cp, err := compile(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
		fresh[p.Name] = cp
	}

	e.mu.Lock()
	e.policies = fresh
	e.mu.Unlock()

	e.log.Info().Int("count", len(fresh)).Msg("policy set replaced")
	return nil
}

func (e *Engine) add(ctx context.Context, p Policy) error {
	cp, err := compile(ctx, p)
	if err != nil {
		return err
	}
	e.policies[p.Name] = cp
	return nil
}

func compile(ctx context.Context, p Policy) (*compiledPolicy, error) {
	query := fmt.Sprintf("data.%s.deny", packageName(p.Rego))
	prepared, err := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &compiledPolicy{policy: p, query: prepared}, nil
}

// Evaluate runs every enabled policy against the input.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{
		Allowed:     true,
		EvaluatedAt: time.Now(),
	}

	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		violations, err := evaluateOne(ctx, cp, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation failed: %w", name, err)
		}
		result.Violations = append(result.Violations, violations...)
	}

	for _, v := range result.Violations {
		if v.Severity == SeverityError {
			result.Allowed = false
			break
		}
	}

	e.log.Debug().
		Int("policies", len(result.EvaluatedPolicies)).
		Int("violations", len(result.Violations)).
		Bool("allowed", result.Allowed).
		Msg("policy evaluation completed")

	return result, nil
}

func evaluateOne(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, r := range results {
		for _, expr := range r.Expressions {
			set, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, entry := range set {
				violations = append(violations, toViolation(cp.policy, entry))
			}
		}
	}
	return violations, nil
}

func toViolation(p Policy, entry interface{}) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}
	switch val := entry.(type) {
	case string:
		v.Message = val
	case map[string]interface{}:
		if msg, ok := val["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := val["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", entry)
	}
	return v
}

// ListPolicies returns the registered policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		out = append(out, cp.policy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// packageName extracts the package path from Rego source.
func packageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			return strings.Fields(trimmed)[1]
		}
	}
	return "openhoist.policies"
}
