package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Stockpipe/internal/engine"
	"github.com/shaiso/Stockpipe/internal/stage"
)

// Registry — реестр реализаций stages по типу. Потокобезопасен.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]stage.Stage
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]stage.Stage)}
}

// Register регистрирует stage для типа. Существующая регистрация перезаписывается.
func (r *Registry) Register(stageType string, st stage.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[stageType] = st
}

// Get возвращает stage по типу.
func (r *Registry) Get(stageType string) (stage.Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.stages[stageType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStageNotFound, stageType)
	}
	return st, nil
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(stageType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.stages[stageType]
	return ok
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.stages))
	for t := range r.stages {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Known возвращает множество типов для engine.Validate.
func (r *Registry) Known() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	known := make(map[string]bool, len(r.stages))
	for t := range r.stages {
		known[t] = true
	}
	return known
}

// Bind сопоставляет каждому узлу pipeline реализацию по типу.
// Результат индексирован именем stage.
func (r *Registry) Bind(p *engine.Pipeline) (map[string]stage.Stage, error) {
	set := make(map[string]stage.Stage, p.Size())
	for _, n := range p.Nodes {
		st, err := r.Get(n.Def.Type)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", n.Name(), err)
		}
		set[n.Name()] = st
	}
	return set, nil
}
