package validity

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository keeps rules in process. Writes to a scope are serialized
// through a ScopeLocker and only become visible when the transaction succeeds.
type MemoryRepository[P Payload] struct {
	mu     sync.RWMutex
	rules  map[uuid.UUID]Rule[P]
	events []Event[P]
	locker ScopeLocker
}

func NewMemoryRepository[P Payload]() *MemoryRepository[P] {
	return &MemoryRepository[P]{
		rules:  make(map[uuid.UUID]Rule[P]),
		locker: NewKeyedLocker(),
	}
}

// Seed stores rules as-is, without any validation.
func (m *MemoryRepository[P]) Seed(rules ...Rule[P]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rules {
		m.rules[r.ID] = r
	}
}

func (m *MemoryRepository[P]) Events() []Event[P] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event[P], len(m.events))
	copy(out, m.events)
	return out
}

func (m *MemoryRepository[P]) Get(_ context.Context, id uuid.UUID) (Rule[P], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return Rule[P]{}, &NotFoundError{RuleID: id}
	}
	return r, nil
}

func (m *MemoryRepository[P]) ListByScope(_ context.Context, scope ScopeKey) ([]Rule[P], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Rule[P]
	for _, r := range m.rules {
		if r.Scope.Equal(scope) {
			out = append(out, r)
		}
	}
	sortRules(out)
	return out, nil
}

func (m *MemoryRepository[P]) Transact(ctx context.Context, scope ScopeKey, fn func(ctx context.Context, tx Tx[P]) error) error {
	release, err := m.locker.Lock(ctx, scope)
	if err != nil {
		return err
	}
	defer release()

	tx := &memoryTx[P]{repo: m, scope: scope, staged: make(map[uuid.UUID]Rule[P])}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range tx.staged {
		m.rules[id] = r
	}
	m.events = append(m.events, tx.events...)
	return nil
}

type memoryTx[P Payload] struct {
	repo   *MemoryRepository[P]
	scope  ScopeKey
	staged map[uuid.UUID]Rule[P]
	events []Event[P]
}

func (t *memoryTx[P]) Get(ctx context.Context, id uuid.UUID) (Rule[P], error) {
	if r, ok := t.staged[id]; ok {
		return r, nil
	}
	return t.repo.Get(ctx, id)
}

func (t *memoryTx[P]) ListByScope(ctx context.Context, scope ScopeKey) ([]Rule[P], error) {
	committed, err := t.repo.ListByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := make([]Rule[P], 0, len(committed)+len(t.staged))
	for _, r := range committed {
		if _, ok := t.staged[r.ID]; !ok {
			out = append(out, r)
		}
	}
	for _, r := range t.staged {
		if r.Scope.Equal(scope) {
			out = append(out, r)
		}
	}
	sortRules(out)
	return out, nil
}

func (t *memoryTx[P]) Insert(ctx context.Context, rule Rule[P]) error {
	if err := t.bound(rule); err != nil {
		return err
	}
	if _, err := t.Get(ctx, rule.ID); err == nil {
		return fmt.Errorf("rule %s already exists", rule.ID)
	}
	t.staged[rule.ID] = rule
	return nil
}

func (t *memoryTx[P]) Update(ctx context.Context, rule Rule[P]) error {
	if err := t.bound(rule); err != nil {
		return err
	}
	if _, err := t.Get(ctx, rule.ID); err != nil {
		return err
	}
	t.staged[rule.ID] = rule
	return nil
}

func (t *memoryTx[P]) RecordEvent(_ context.Context, event Event[P]) error {
	t.events = append(t.events, event)
	return nil
}

func (t *memoryTx[P]) bound(rule Rule[P]) error {
	if !rule.Scope.Equal(t.scope) {
		return fmt.Errorf("rule %s is in scope %s, transaction holds %s", rule.ID, rule.Scope, t.scope)
	}
	return nil
}
