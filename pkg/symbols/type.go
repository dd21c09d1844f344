package symbols

import (
	"github.com/odvcencio/shroud/pkg/module"
	"github.com/odvcencio/shroud/pkg/report"
	"github.com/odvcencio/shroud/pkg/skip"
)

// Type is the table entry of a type declaration and the registry of its
// members. It holds named references only; arrays and instantiations are
// taken apart at registration.
type Type struct {
	ns   *Namespace
	def  *module.TypeDef
	key  string
	orig string
	sym  skip.Symbol
	refs refSet[*module.TypeRef]

	fields     registry[*module.FieldDef, *Field]
	properties registry[*module.PropertyDef, *Property]
	methods    registry[*module.MethodDef, *Method]

	resolved bool
	renamed  bool
	change   Change
}

func newType(ns *Namespace, td *module.TypeDef) *Type {
	return &Type{
		ns:   ns,
		def:  td,
		key:  td.FullName(),
		orig: td.Name,
		sym:  skip.Symbol{Namespace: td.Namespace, Type: td.FullName(), TypeName: td.Name, Name: td.Name},
	}
}

func (t *Type) mod() *Module { return t.ns.mod }

// Key is the original full name.
func (t *Type) Key() string             { return t.key }
func (t *Type) Def() *module.TypeDef    { return t.def }
func (t *Type) Refs() []*module.TypeRef { return t.refs.items }
func (t *Type) Change() Change          { return t.change }
func (t *Type) Renamed() bool           { return t.renamed }

// AddRef records one occurrence of the type.
func (t *Type) AddRef(ref *module.TypeRef) { t.refs.add(ref) }

func (t *Type) Methods() []*Method      { return t.methods.values() }
func (t *Type) Fields() []*Field        { return t.fields.values() }
func (t *Type) Properties() []*Property { return t.properties.values() }

func (t *Type) method(md *module.MethodDef) *Method {
	return t.methods.getOrAdd(md, func() *Method {
		m := newMethod(t, md)
		m.handle = t.mod().reg.Groups().add(m)
		return m
	})
}

func (t *Type) field(fd *module.FieldDef) *Field {
	return t.fields.getOrAdd(fd, func() *Field { return newField(t, fd) })
}

func (t *Type) property(pd *module.PropertyDef) *Property {
	return t.properties.getOrAdd(pd, func() *Property { return newProperty(t, pd) })
}

// Resolve registers the references made by the declaration and its
// members. A second call does nothing.
func (t *Type) Resolve() {
	if t.resolved {
		return
	}
	t.resolved = true
	reg := t.mod().reg
	td := t.def
	reg.RegisterType(td.BaseType)
	for _, i := range td.Interfaces {
		reg.RegisterType(i)
	}
	registerGenericParams(reg, td.GenericParams)
	registerAttributes(reg, td.Attributes)
	for _, fd := range td.Fields {
		t.field(fd).Resolve()
	}
	for _, pd := range td.Properties {
		t.property(pd).Resolve()
	}
	for _, md := range td.Methods {
		t.method(md).Resolve()
	}
}

// WillChange reports whether the type may be renamed.
func (t *Type) WillChange() bool {
	m := t.mod()
	if !m.target || t.renamed {
		return false
	}
	if t.def.Flags&module.TypeRTSpecialName != 0 || t.orig == "<Module>" {
		return false
	}
	return !m.rules.Skip(skip.KindType, t.sym)
}

func (t *Type) CanChange() bool { return t.WillChange() }

// Collides reports whether another type of the same namespace is already
// called name.
func (t *Type) Collides(name string) bool {
	for _, o := range t.mod().def.Types {
		if o != t.def && o.Namespace == t.def.Namespace && o.Name == name {
			return true
		}
	}
	return false
}

// ChangeName renames the declaration and every reference to it.
func (t *Type) ChangeName(name string) bool {
	if !t.WillChange() {
		return false
	}
	t.def.Name = name
	for _, ref := range t.refs.items {
		ref.ElementType().Name = name
	}
	renameGenericParams(t.mod().opts, t.def.GenericParams)
	t.renamed = true
	t.change = Change{Old: t.orig, New: name}
	return true
}

// RunRules renames fields, then properties, then methods, each list with
// its own iterator.
func (t *Type) RunRules(rep *report.Module) {
	opts := t.mod().opts

	it := opts.iterator()
	for _, f := range t.fields.values() {
		opts.assign(it, f)
		rep.Add(f.entry())
	}

	it = opts.iterator()
	for _, p := range t.properties.values() {
		opts.assign(it, p)
		rep.Add(p.entry())
	}

	it = opts.iterator()
	for _, m := range t.methods.values() {
		opts.assign(it, m)
		rep.Add(m.entry())
	}
}

func (t *Type) entry() report.Entry {
	return entryFor(skip.KindType, "", t.key, t.change)
}

// memberSymbol describes a member of t by original names.
func (t *Type) memberSymbol(name string) skip.Symbol {
	return skip.Symbol{Namespace: t.sym.Namespace, Type: t.key, TypeName: t.orig, Name: name}
}

// findInheritedImplementations groups each method of a directly
// implemented interface that t does not declare with the virtual method
// t inherits under the same name.
func (t *Type) findInheritedImplementations() {
	reg := t.mod().reg
	for _, iref := range t.def.Interfaces {
		it := reg.ResolveType(iref)
		if it == nil {
			continue
		}
		for _, im := range it.Methods {
			if declaresMethod(t.def, im.Name) {
				continue
			}
			impl := inheritedVirtual(reg, t.def, im.Name)
			if impl == nil {
				continue
			}
			a, b := reg.Method(im), reg.Method(impl)
			if a != nil && b != nil {
				reg.Groups().Union(a, b)
			}
		}
	}
}

func declaresMethod(td *module.TypeDef, name string) bool {
	for _, md := range td.Methods {
		if md.Name == name {
			return true
		}
	}
	return false
}

func inheritedVirtual(reg Registrar, td *module.TypeDef, name string) *module.MethodDef {
	visited := map[*module.TypeDef]bool{td: true}
	for ref := td.BaseType; ref != nil; {
		bt := reg.ResolveType(ref)
		if bt == nil || visited[bt] {
			return nil
		}
		visited[bt] = true
		for _, md := range bt.Methods {
			if md.IsVirtual() && md.Name == name {
				return md
			}
		}
		ref = bt.BaseType
	}
	return nil
}
