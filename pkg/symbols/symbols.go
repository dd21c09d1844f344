// Package symbols keeps one table entry per declared symbol, holding every
// reference that names it, and performs the renames.
//
// Registries nest Module > Namespace > Type > {Method, Field, Property}.
// Entries are created on first touch, either while a module scans its own
// declarations or when another module's instruction refers to them, and
// are looked up by declaration so that the order of first touch does not
// matter.
package symbols

import (
	"fmt"
	"strings"

	"github.com/odvcencio/shroud/pkg/module"
	"github.com/odvcencio/shroud/pkg/names"
	"github.com/odvcencio/shroud/pkg/report"
	"github.com/odvcencio/shroud/pkg/skip"
)

// Registrar routes references to the registry owning their declaration.
// The project implements it over the whole set of loaded modules.
type Registrar interface {
	RegisterType(ref *module.TypeRef)
	RegisterMethod(ref *module.MethodRef)
	RegisterField(ref *module.FieldRef)
	RegisterProperty(ref *module.PropertyRef)
	RegisterInstruction(ins *module.Instruction)

	ResolveType(ref *module.TypeRef) *module.TypeDef
	ResolveMethod(ref *module.MethodRef) *module.MethodDef

	// Method returns the entry for a declaration in any loaded module, or
	// nil when no loaded module owns it.
	Method(def *module.MethodDef) *Method
	// Related returns td with all of its ancestors and descendants.
	Related(td *module.TypeDef) []*module.TypeDef
	Groups() *GroupArena
	Warnf(format string, args ...any)
}

// MatchMode controls how strictly override candidates are compared.
type MatchMode int

const (
	// MatchName groups methods that share a name.
	MatchName MatchMode = iota
	// MatchSignature also requires equal parameter lists, treating generic
	// parameters as wildcards.
	MatchSignature
)

func (m MatchMode) String() string {
	if m == MatchSignature {
		return "signature"
	}
	return "name"
}

// ParseMatchMode parses "name" or "signature". The empty string is
// MatchName.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "name":
		return MatchName, nil
	case "signature":
		return MatchSignature, nil
	}
	return MatchName, fmt.Errorf("symbols: unknown override match %q (want name or signature)", s)
}

// Options tune the rename passes.
type Options struct {
	Names  names.Factory
	Policy names.Policy
	Match  MatchMode
}

func (o Options) iterator() names.Iterator {
	if o.Names == nil {
		return names.Default()
	}
	return o.Names()
}

// Change is the audit record of one rename.
type Change struct {
	Old string
	New string
}

// renamable is the part of an entry the scope loop needs.
type renamable interface {
	CanChange() bool
	Collides(name string) bool
	ChangeName(name string) bool
}

// assign gives s the next free name of its scope. Under ConsumeOnSkip a
// symbol that stays unchanged still uses up a name.
func (o Options) assign(it names.Iterator, s renamable) bool {
	if !s.CanChange() {
		if o.Policy == names.ConsumeOnSkip {
			it.Next()
		}
		return false
	}
	name := it.Next()
	for s.Collides(name) {
		name = it.Next()
	}
	return s.ChangeName(name)
}

// ----------------------------------------------------------------------------
// Containers

// registry is an insertion-ordered map.
type registry[K comparable, V any] struct {
	keys []K
	m    map[K]V
}

func (r *registry[K, V]) get(k K) (V, bool) {
	v, ok := r.m[k]
	return v, ok
}

func (r *registry[K, V]) getOrAdd(k K, mk func() V) V {
	if v, ok := r.m[k]; ok {
		return v
	}
	if r.m == nil {
		r.m = make(map[K]V)
	}
	v := mk()
	r.m[k] = v
	r.keys = append(r.keys, k)
	return v
}

func (r *registry[K, V]) values() []V {
	out := make([]V, len(r.keys))
	for i, k := range r.keys {
		out[i] = r.m[k]
	}
	return out
}

func (r *registry[K, V]) len() int { return len(r.keys) }

// refSet holds references in first-seen order, each pointer once.
type refSet[T comparable] struct {
	items []T
	seen  map[T]struct{}
}

func (s *refSet[T]) add(v T) bool {
	if _, ok := s.seen[v]; ok {
		return false
	}
	if s.seen == nil {
		s.seen = make(map[T]struct{})
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// ----------------------------------------------------------------------------
// Shared registration helpers

func registerGenericParams(reg Registrar, gps []*module.GenericParam) {
	for _, gp := range gps {
		for _, c := range gp.Constraints {
			reg.RegisterType(c)
		}
	}
}

func registerAttributes(reg Registrar, attrs []*module.CustomAttribute) {
	for _, a := range attrs {
		reg.RegisterMethod(a.Constructor)
		for _, f := range a.NamedFields {
			reg.RegisterField(f)
		}
		for _, p := range a.NamedProperties {
			reg.RegisterProperty(p)
		}
	}
}

func renameGenericParams(o Options, gps []*module.GenericParam) {
	if len(gps) == 0 {
		return
	}
	it := o.iterator()
	for _, gp := range gps {
		gp.Name = it.Next()
	}
}

func entryFor(kind skip.Kind, owner, orig string, c Change) report.Entry {
	return report.Entry{Kind: kind, Owner: owner, Old: orig, New: c.New}
}
