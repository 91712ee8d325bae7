// Package registry holds the one mapping the whole runtime is built
// around: actor name to its actor.Definition. There is deliberately no
// package-level global here (spec §9's "no implicit global registry"
// design note) — every component that needs to resolve a name takes a
// *Registry through its constructor, the same constructor-injected shape
// as the teacher's agentmanager.Manager.
package registry

import "github.com/statedge/actorhost/actor"

// Registry is a read-mostly table of registered actor types, built once
// at process startup and shared (read-only after that point) by the
// Manager and every Actor Driver.
type Registry struct {
	defs map[string]*actor.Definition
}

// New builds a Registry from a set of definitions, indexed by their Name.
func New(defs ...*actor.Definition) *Registry {
	r := &Registry{defs: make(map[string]*actor.Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.Name] = d
	}
	return r
}

// Lookup returns the Definition registered under name, or false if no
// actor type with that name was registered.
func (r *Registry) Lookup(name string) (*actor.Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns every registered actor name, for diagnostics.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for n := range r.defs {
		out = append(out, n)
	}
	return out
}
