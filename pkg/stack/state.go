package stack

import (
	"context"
	"sync"

	"github.com/openhoist/openhoist/pkg/engine"
)

// memoryRuleState keeps rule identifiers in memory. It is the fallback when
// no state store is configured: retirement then only sees rules applied
// within the same process lifetime.
type memoryRuleState struct {
	mu    sync.Mutex
	rules map[string][]string
}

func newMemoryRuleState() *memoryRuleState {
	return &memoryRuleState{rules: make(map[string][]string)}
}

func (s *memoryRuleState) AppliedRuleIDs(_ context.Context, scope string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.rules[scope]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

func (s *memoryRuleState) RecordRules(_ context.Context, scope string, rules []engine.AddressRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	s.rules[scope] = ids
	return nil
}
