package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/presslens/presslens/internal/domain"
)

// Registry holds the named analysis stages a graph definition can refer
// to. Registration happens at startup; lookups are read-mostly and safe
// for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]domain.Stage
}

func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]domain.Stage)}
}

// Register adds a stage under its name. Registering the same name twice
// is an error.
func (r *Registry) Register(s domain.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := s.Name()
	if name == "" {
		return fmt.Errorf("stage has empty name")
	}
	if _, dup := r.stages[name]; dup {
		return fmt.Errorf("stage %s already registered", name)
	}
	r.stages[name] = s
	return nil
}

// MustRegister registers the stages and panics on conflict; intended for
// startup wiring where a duplicate is a programming error.
func (r *Registry) MustRegister(stages ...domain.Stage) {
	for _, s := range stages {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// Get returns the stage registered under name.
func (r *Registry) Get(name string) (domain.Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stages[name]
	return s, ok
}

// Names returns the registered stage names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stages))
	for n := range r.stages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
