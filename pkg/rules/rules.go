// Package rules expands a platform-assigned outbound address list into
// single-address access rules and keeps the applied rule set converged across
// runs.
package rules

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openhoist/openhoist/pkg/engine"
)

// rulePrefix namespaces synthesized rule identifiers on the target scope.
const rulePrefix = "allow-"

// RuleID derives the deterministic rule identifier for an address: the
// address with dots and colons mapped to dashes, under the "allow-" prefix.
// The same address always yields the same identifier, which is the stability
// contract that makes reapplication update rather than duplicate rules.
func RuleID(address string) string {
	mapped := strings.Map(func(r rune) rune {
		if r == '.' || r == ':' {
			return '-'
		}
		return r
	}, address)
	return rulePrefix + mapped
}

// Expand splits a comma-separated address list into one AddressRule per
// distinct non-empty address, preserving first-occurrence order. Empty and
// whitespace-only entries are dropped silently; they are never fatal. Each
// rule's enabled range starts and ends at its address.
func Expand(scope, addressList string) []engine.AddressRule {
	seen := make(map[string]struct{})
	var out []engine.AddressRule
	for _, entry := range strings.Split(addressList, ",") {
		addr := strings.TrimSpace(entry)
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, engine.AddressRule{
			ID:           RuleID(addr),
			Scope:        scope,
			StartAddress: addr,
			EndAddress:   addr,
		})
	}
	return out
}

// StateStore records which rule identifiers are currently applied to a
// scope, so a later run can retire rules whose address disappeared.
type StateStore interface {
	// AppliedRuleIDs returns the identifiers recorded for the scope.
	AppliedRuleIDs(ctx context.Context, scope string) ([]string, error)

	// RecordRules replaces the recorded rule set for the scope.
	RecordRules(ctx context.Context, scope string, rules []engine.AddressRule) error
}

// Synthesizer converges the applied access rules of a database server with
// the address list its compute host reports. Rule application and retirement
// are side effects and run only in apply mode; the expansion itself is pure
// and evaluated in preview too.
type Synthesizer struct {
	platform engine.Platform
	state    StateStore
	effects  *engine.EffectRunner
	log      zerolog.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(platform engine.Platform, state StateStore, effects *engine.EffectRunner, log zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		platform: platform,
		state:    state,
		effects:  effects,
		log:      log.With().Str("component", "rules").Logger(),
	}
}

// Sync expands the address list and, in apply mode, applies every resulting
// rule to the server, retires recorded rules whose address is gone, and
// records the new set. It returns the expanded rules in both modes.
func (s *Synthesizer) Sync(ctx context.Context, server engine.SQLServer, addressList string) ([]engine.AddressRule, error) {
	desired := Expand(server.Name, addressList)

	_, err := s.effects.Run(ctx, "firewall-sync "+server.Name, func(ctx context.Context) error {
		previous, err := s.state.AppliedRuleIDs(ctx, server.Name)
		if err != nil {
			return engine.NewStateError("reading applied rules", err)
		}

		keep := make(map[string]struct{}, len(desired))
		for _, rule := range desired {
			keep[rule.ID] = struct{}{}
			if err := s.platform.ApplyAddressRule(ctx, server, rule); err != nil {
				return err
			}
			s.log.Debug().
				Str("rule", rule.ID).
				Str("address", rule.StartAddress).
				Msg("access rule applied")
		}

		for _, id := range previous {
			if _, ok := keep[id]; ok {
				continue
			}
			if err := s.platform.RetireAddressRule(ctx, server, id); err != nil {
				return err
			}
			s.log.Info().Str("rule", id).Msg("stale access rule retired")
		}

		if err := s.state.RecordRules(ctx, server.Name, desired); err != nil {
			return engine.NewStateError("recording applied rules", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return desired, nil
}
