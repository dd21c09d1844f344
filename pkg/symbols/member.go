package symbols

import (
	"github.com/odvcencio/shroud/pkg/module"
	"github.com/odvcencio/shroud/pkg/report"
	"github.com/odvcencio/shroud/pkg/skip"
)

// Field is the table entry of a field declaration.
type Field struct {
	owner *Type
	def   *module.FieldDef
	key   string
	orig  string
	sym   skip.Symbol
	refs  refSet[*module.FieldRef]

	resolved bool
	renamed  bool
	change   Change
}

func newField(t *Type, fd *module.FieldDef) *Field {
	return &Field{
		owner: t,
		def:   fd,
		key:   fd.Ref().FullName(),
		orig:  fd.Name,
		sym:   t.memberSymbol(fd.Name),
	}
}

func (f *Field) Key() string              { return f.key }
func (f *Field) Def() *module.FieldDef    { return f.def }
func (f *Field) Refs() []*module.FieldRef { return f.refs.items }
func (f *Field) Change() Change           { return f.change }

// AddRef records one use of the field.
func (f *Field) AddRef(ref *module.FieldRef) { f.refs.add(ref) }

// Resolve registers the field's type and attributes.
func (f *Field) Resolve() {
	if f.resolved {
		return
	}
	f.resolved = true
	reg := f.owner.mod().reg
	reg.RegisterType(f.def.Type)
	registerAttributes(reg, f.def.Attributes)
}

// WillChange reports whether the field may be renamed. Runtime-named
// fields such as an enum's value__ never are.
func (f *Field) WillChange() bool {
	m := f.owner.mod()
	return m.target && !f.renamed && f.def.Flags&module.FieldRTSpecialName == 0 && !m.rules.Skip(skip.KindField, f.sym)
}

func (f *Field) CanChange() bool { return f.WillChange() }

// Collides reports whether a sibling field is already called name.
func (f *Field) Collides(name string) bool {
	for _, o := range f.def.DeclaringType().Fields {
		if o != f.def && o.Name == name {
			return true
		}
	}
	return false
}

// ChangeName renames the declaration and every use.
func (f *Field) ChangeName(name string) bool {
	if !f.WillChange() {
		return false
	}
	f.def.Name = name
	for _, ref := range f.refs.items {
		ref.Name = name
	}
	f.renamed = true
	f.change = Change{Old: f.orig, New: name}
	return true
}

func (f *Field) entry() report.Entry {
	return entryFor(skip.KindField, f.owner.key, f.orig, f.change)
}

// Property is the table entry of a property declaration. Its accessors
// are methods with entries of their own.
type Property struct {
	owner *Type
	def   *module.PropertyDef
	key   string
	orig  string
	sym   skip.Symbol
	refs  refSet[*module.PropertyRef]

	resolved bool
	renamed  bool
	change   Change
}

func newProperty(t *Type, pd *module.PropertyDef) *Property {
	return &Property{
		owner: t,
		def:   pd,
		key:   pd.Ref().FullName(),
		orig:  pd.Name,
		sym:   t.memberSymbol(pd.Name),
	}
}

func (p *Property) Key() string                 { return p.key }
func (p *Property) Def() *module.PropertyDef    { return p.def }
func (p *Property) Refs() []*module.PropertyRef { return p.refs.items }
func (p *Property) Change() Change              { return p.change }

// AddRef records one use of the property.
func (p *Property) AddRef(ref *module.PropertyRef) { p.refs.add(ref) }

// Resolve registers the property's type, accessors and attributes.
func (p *Property) Resolve() {
	if p.resolved {
		return
	}
	p.resolved = true
	reg := p.owner.mod().reg
	reg.RegisterType(p.def.Type)
	reg.RegisterMethod(p.def.Getter)
	reg.RegisterMethod(p.def.Setter)
	registerAttributes(reg, p.def.Attributes)
}

// WillChange reports whether the property may be renamed.
func (p *Property) WillChange() bool {
	m := p.owner.mod()
	return m.target && !p.renamed && !m.rules.Skip(skip.KindProperty, p.sym)
}

func (p *Property) CanChange() bool { return p.WillChange() }

// Collides reports whether a sibling property is already called name.
func (p *Property) Collides(name string) bool {
	for _, o := range p.def.DeclaringType().Properties {
		if o != p.def && o.Name == name {
			return true
		}
	}
	return false
}

// ChangeName renames the declaration and every use.
func (p *Property) ChangeName(name string) bool {
	if !p.WillChange() {
		return false
	}
	p.def.Name = name
	for _, ref := range p.refs.items {
		ref.Name = name
	}
	p.renamed = true
	p.change = Change{Old: p.orig, New: name}
	return true
}

func (p *Property) entry() report.Entry {
	return entryFor(skip.KindProperty, p.owner.key, p.orig, p.change)
}
