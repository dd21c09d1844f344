package module

// Resolver maps references to the declarations they name across a set of
// loaded modules. Every lookup returns nil when the declaring module is
// not loaded or does not declare the symbol.
type Resolver struct {
	modules []*Module
	byName  map[string]*Module
}

// NewResolver returns a Resolver over modules.
func NewResolver(modules ...*Module) *Resolver {
	r := &Resolver{byName: make(map[string]*Module)}
	for _, m := range modules {
		r.Add(m)
	}
	return r
}

// Add makes m visible to lookups. The first module registered under a
// name wins.
func (r *Resolver) Add(m *Module) {
	if _, exists := r.byName[m.Name]; exists {
		return
	}
	r.byName[m.Name] = m
	r.modules = append(r.modules, m)
}

// Module returns the loaded module called name.
func (r *Resolver) Module(name string) *Module { return r.byName[name] }

// Modules returns the loaded modules in registration order.
func (r *Resolver) Modules() []*Module { return r.modules }

// ResolveType returns the declaration behind ref's element type.
func (r *Resolver) ResolveType(ref *TypeRef) *TypeDef {
	if ref == nil {
		return nil
	}
	ref = ref.ElementType()
	if ref.Kind != KindNamed {
		return nil
	}
	full := ref.FullName()
	if ref.Scope != "" {
		m := r.byName[ref.Scope]
		if m == nil {
			return nil
		}
		return m.Type(full)
	}
	for _, m := range r.modules {
		if td := m.Type(full); td != nil {
			return td
		}
	}
	return nil
}

// ResolveMethod returns the declaration behind ref, matching name,
// generic arity and the rendered signature. A member the declaring type
// inherits resolves to the base type that declares it.
func (r *Resolver) ResolveMethod(ref *MethodRef) *MethodDef {
	if ref == nil {
		return nil
	}
	e := ref.ElementMethod()
	want := methodSignature(e.ReturnType, "", e.Name, e.GenericArity, e.Params)
	var found *MethodDef
	r.walkBases(r.ResolveType(e.DeclaringType), func(td *TypeDef) bool {
		for _, md := range td.Methods {
			if md.Name != e.Name || len(md.GenericParams) != e.GenericArity || len(md.Params) != len(e.Params) {
				continue
			}
			if methodSignature(md.ReturnType, "", md.Name, len(md.GenericParams), md.Params) == want {
				found = md
				return true
			}
		}
		return false
	})
	return found
}

// ResolveField returns the declaration behind ref, searching base types
// when the declaring type does not declare it.
func (r *Resolver) ResolveField(ref *FieldRef) *FieldDef {
	if ref == nil {
		return nil
	}
	var found *FieldDef
	r.walkBases(r.ResolveType(ref.DeclaringType), func(td *TypeDef) bool {
		for _, fd := range td.Fields {
			if fd.Name == ref.Name {
				found = fd
				return true
			}
		}
		return false
	})
	return found
}

// ResolveProperty returns the declaration behind ref, searching base types
// when the declaring type does not declare it.
func (r *Resolver) ResolveProperty(ref *PropertyRef) *PropertyDef {
	if ref == nil {
		return nil
	}
	var found *PropertyDef
	r.walkBases(r.ResolveType(ref.DeclaringType), func(td *TypeDef) bool {
		for _, pd := range td.Properties {
			if pd.Name == ref.Name {
				found = pd
				return true
			}
		}
		return false
	})
	return found
}

// walkBases calls visit on td and then on each loaded base type until
// visit returns true. The walk stops at the first base type that is not
// loaded and never visits a type twice.
func (r *Resolver) walkBases(td *TypeDef, visit func(*TypeDef) bool) {
	visited := make(map[*TypeDef]bool)
	for td != nil && !visited[td] {
		visited[td] = true
		if visit(td) {
			return
		}
		td = r.ResolveType(td.BaseType)
	}
}
