// Package registry is the single source of truth for which
// (service, command) operations exist: their handler function, input
// schema, required/optional parameters, and plan-mode eligibility.
// The scheduler never switches on service/command strings directly —
// it always consults the Registry.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rparedes/taskgraph/internal/model"
)

// Handler is the async function implementing the effect of one
// (service, command) pair. It is the only point where the core
// crosses into external, effectful code.
type Handler func(ctx context.Context, task model.Task, jobCtx JobContext) (model.HandlerResult, error)

// JobContext is the read-only view of the running job exposed to
// handlers: lookup of any task by id, its output, its status, and
// ambient flags. It is the only channel through which a handler
// observes the state of other tasks.
type JobContext interface {
	GetTask(id string) (model.TaskSnapshot, bool)
	GetTaskOutput(id string) (map[string]interface{}, bool)
	GetTaskStatus(id string) (model.Status, bool)
	Verbose() bool
}

// Definition is the full capability record for one (service, command) pair.
type Definition struct {
	Service         string
	Command         string
	Description     string
	RequiredParams  []string
	OptionalParams  []string
	InputSchema     string // JSON-Schema document, or "" if unchecked beyond required params
	AllowInPlanMode bool
	Examples        []string
	Handler         Handler
}

func key(service, command string) string { return service + "/" + command }

// Registry is the two-level (service, command) -> Definition lookup.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	order []string // insertion order, for stable Catalog/enumeration output
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// ErrAlreadyRegistered is returned by Register when (service, command) exists.
var ErrAlreadyRegistered = fmt.Errorf("service/command already registered")

// Register adds a definition. It fails with ErrAlreadyRegistered if
// the (service, command) pair already exists — adding a new operation
// is meant to be a single, unambiguous insertion point.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(def.Service, def.Command)
	if _, exists := r.defs[k]; exists {
		return fmt.Errorf("%w: %s/%s", ErrAlreadyRegistered, def.Service, def.Command)
	}
	r.defs[k] = def
	r.order = append(r.order, k)
	return nil
}

// Has reports whether (service, command) is registered.
func (r *Registry) Has(service, command string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[key(service, command)]
	return ok
}

// Get returns the handler for (service, command), if registered.
func (r *Registry) Get(service, command string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[key(service, command)]
	if !ok {
		return nil, false
	}
	return def.Handler, true
}

// GetDefinition returns the full definition for (service, command).
func (r *Registry) GetDefinition(service, command string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[key(service, command)]
	return def, ok
}

// AvailableServices enumerates distinct service names, sorted.
func (r *Registry) AvailableServices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, def := range r.defs {
		seen[def.Service] = struct{}{}
	}
	services := make([]string, 0, len(seen))
	for s := range seen {
		services = append(services, s)
	}
	sort.Strings(services)
	return services
}

// Commands enumerates the commands registered under service, sorted.
func (r *Registry) Commands(service string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var commands []string
	for _, def := range r.defs {
		if def.Service == service {
			commands = append(commands, def.Command)
		}
	}
	sort.Strings(commands)
	return commands
}

// CatalogEntry is the derived, handler-free capability view of a
// Definition used for AI prompt construction and the registry CLI
// listing.
type CatalogEntry struct {
	Service         string   `json:"service"`
	Command         string   `json:"command"`
	Description     string   `json:"description"`
	RequiredParams  []string `json:"requiredParams,omitempty"`
	OptionalParams  []string `json:"optionalParams,omitempty"`
	AllowInPlanMode bool     `json:"allowInPlanMode"`
	Examples        []string `json:"examples,omitempty"`
}

// Catalog returns every registered (service, command) mapped to its
// capability metadata, in registration order. Catalog entries and
// registry entries are always in 1:1 correspondence by construction —
// Catalog is a pure projection, never an independent store.
func (r *Registry) Catalog() []CatalogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]CatalogEntry, 0, len(r.order))
	for _, k := range r.order {
		def := r.defs[k]
		entries = append(entries, CatalogEntry{
			Service:         def.Service,
			Command:         def.Command,
			Description:     def.Description,
			RequiredParams:  def.RequiredParams,
			OptionalParams:  def.OptionalParams,
			AllowInPlanMode: def.AllowInPlanMode,
			Examples:        def.Examples,
		})
	}
	return entries
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
