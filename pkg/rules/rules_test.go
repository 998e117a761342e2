package rules

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openhoist/openhoist/pkg/deferred"
	"github.com/openhoist/openhoist/pkg/engine"
)

func TestExpand_TrailingDelimiterDropped(t *testing.T) {
	rules := Expand("todo-sql", "1.2.3.4,5.6.7.8,")

	if len(rules) != 2 {
		t.Fatalf("Expected exactly 2 rules, got %d", len(rules))
	}
	for i, addr := range []string{"1.2.3.4", "5.6.7.8"} {
		if rules[i].StartAddress != addr || rules[i].EndAddress != addr {
			t.Errorf("Rule %d: expected start == end == %s, got (%s, %s)",
				i, addr, rules[i].StartAddress, rules[i].EndAddress)
		}
		if rules[i].Scope != "todo-sql" {
			t.Errorf("Rule %d: expected scope todo-sql, got %s", i, rules[i].Scope)
		}
	}
}

func TestExpand_EmptyListYieldsNoRules(t *testing.T) {
	if got := Expand("s", ""); len(got) != 0 {
		t.Errorf("Expected zero rules for empty list, got %d", len(got))
	}
	if got := Expand("s", " , ,,"); len(got) != 0 {
		t.Errorf("Expected zero rules for blank entries, got %d", len(got))
	}
}

func TestExpand_DistinctAddressesOnly(t *testing.T) {
	rules := Expand("s", "1.2.3.4,1.2.3.4,5.6.7.8")
	if len(rules) != 2 {
		t.Errorf("Expected duplicates collapsed to 2 rules, got %d", len(rules))
	}
}

func TestRuleID_StableAndDeterministic(t *testing.T) {
	first := Expand("s", "1.2.3.4,5.6.7.8,")
	second := Expand("s", "1.2.3.4,5.6.7.8,")

	var a, b []string
	for _, r := range first {
		a = append(a, r.ID)
	}
	for _, r := range second {
		b = append(b, r.ID)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Rule identifiers must be stable across runs: %v vs %v", a, b)
	}
}

func TestRuleID_DerivedFromAddressNotPosition(t *testing.T) {
	forward := Expand("s", "1.2.3.4,5.6.7.8")
	reversed := Expand("s", "5.6.7.8,1.2.3.4")

	byAddr := func(rs []engine.AddressRule) map[string]string {
		m := make(map[string]string)
		for _, r := range rs {
			m[r.StartAddress] = r.ID
		}
		return m
	}

	f, r := byAddr(forward), byAddr(reversed)
	for addr, id := range f {
		if r[addr] != id {
			t.Errorf("Identifier for %s changed with position: %s vs %s", addr, id, r[addr])
		}
	}
}

func TestRuleID_CollisionFreeMapping(t *testing.T) {
	if RuleID("1.2.3.4") != "allow-1-2-3-4" {
		t.Errorf("Unexpected identifier: %s", RuleID("1.2.3.4"))
	}
	if RuleID("2001:db8::1") != "allow-2001-db8--1" {
		t.Errorf("Unexpected identifier: %s", RuleID("2001:db8::1"))
	}
}

// fakePlatform records rule operations; declarations are unused here.
type fakePlatform struct {
	engine.Platform
	applied []engine.AddressRule
	retired []string
}

func (p *fakePlatform) ApplyAddressRule(_ context.Context, _ engine.SQLServer, r engine.AddressRule) error {
	p.applied = append(p.applied, r)
	return nil
}

func (p *fakePlatform) RetireAddressRule(_ context.Context, _ engine.SQLServer, id string) error {
	p.retired = append(p.retired, id)
	return nil
}

type memState struct {
	rules map[string][]string
}

func (s *memState) AppliedRuleIDs(_ context.Context, scope string) ([]string, error) {
	return s.rules[scope], nil
}

func (s *memState) RecordRules(_ context.Context, scope string, rules []engine.AddressRule) error {
	if s.rules == nil {
		s.rules = make(map[string][]string)
	}
	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	s.rules[scope] = ids
	return nil
}

func TestSync_AppliesRulesAndRetiresStale(t *testing.T) {
	platform := &fakePlatform{}
	state := &memState{}
	effects := engine.NewEffectRunner(engine.ModeApply, zerolog.Nop(), nil)
	syn := NewSynthesizer(platform, state, effects, zerolog.Nop())

	server := engine.SQLServer{Name: "todo-sql"}
	ctx := context.Background()

	if _, err := syn.Sync(ctx, server, "1.2.3.4,5.6.7.8"); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}
	if len(platform.applied) != 2 || len(platform.retired) != 0 {
		t.Fatalf("Expected 2 applied, 0 retired; got %d, %d", len(platform.applied), len(platform.retired))
	}

	// The first address disappears and a new one appears.
	platform.applied = nil
	if _, err := syn.Sync(ctx, server, "5.6.7.8,9.9.9.9"); err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}
	if len(platform.applied) != 2 {
		t.Errorf("Expected 2 applied on second sync, got %d", len(platform.applied))
	}
	if !reflect.DeepEqual(platform.retired, []string{RuleID("1.2.3.4")}) {
		t.Errorf("Expected 1.2.3.4 retired, got %v", platform.retired)
	}

	sort.Strings(state.rules["todo-sql"])
	want := []string{RuleID("5.6.7.8"), RuleID("9.9.9.9")}
	sort.Strings(want)
	if !reflect.DeepEqual(state.rules["todo-sql"], want) {
		t.Errorf("Recorded state %v, want %v", state.rules["todo-sql"], want)
	}
}

func TestSync_PreviewTouchesNothing(t *testing.T) {
	platform := &fakePlatform{}
	state := &memState{rules: map[string][]string{"todo-sql": {RuleID("1.1.1.1")}}}
	effects := engine.NewEffectRunner(engine.ModePreview, zerolog.Nop(), nil)
	syn := NewSynthesizer(platform, state, effects, zerolog.Nop())

	rules, err := syn.Sync(context.Background(), engine.SQLServer{Name: "todo-sql"}, "2.2.2.2")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(rules) != 1 {
		t.Errorf("Expansion must still run in preview; got %d rules", len(rules))
	}
	if len(platform.applied) != 0 || len(platform.retired) != 0 {
		t.Error("Preview must not apply or retire rules")
	}
	if !reflect.DeepEqual(state.rules["todo-sql"], []string{RuleID("1.1.1.1")}) {
		t.Error("Preview must not modify recorded state")
	}
}

func TestSync_ChainedFromDeferredAddressList(t *testing.T) {
	platform := &fakePlatform{}
	state := &memState{}
	effects := engine.NewEffectRunner(engine.ModeApply, zerolog.Nop(), nil)
	syn := NewSynthesizer(platform, state, effects, zerolog.Nop())

	server := engine.SQLServer{Name: "todo-sql"}
	addresses := deferred.Pending[string]()

	synced := deferred.Map(addresses, func(list string) ([]engine.AddressRule, error) {
		return syn.Sync(context.Background(), server, list)
	})

	if len(platform.applied) != 0 {
		t.Fatal("Rules must not be applied before the address list resolves")
	}

	addresses.Resolve("1.2.3.4,5.6.7.8,")

	got, err := synced.Wait(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(got) != 2 || len(platform.applied) != 2 {
		t.Errorf("Expected 2 rules after resolution, got %d (applied %d)", len(got), len(platform.applied))
	}
}
