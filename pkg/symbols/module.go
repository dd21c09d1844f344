package symbols

import (
	"github.com/odvcencio/shroud/pkg/module"
	"github.com/odvcencio/shroud/pkg/report"
	"github.com/odvcencio/shroud/pkg/skip"
)

// Module is the registry of one loaded module. Only target modules are
// renamed; reference modules exist so that references into them have an
// owner.
type Module struct {
	def    *module.Module
	reg    Registrar
	rules  *skip.Rules
	target bool
	opts   Options

	namespaces registry[string, *Namespace]
	types      map[*module.TypeDef]*Type
	resolved   bool
}

// NewModule returns the registry for def. Reference modules pass target
// false and nil rules.
func NewModule(def *module.Module, reg Registrar, rules *skip.Rules, target bool, opts Options) *Module {
	return &Module{
		def:    def,
		reg:    reg,
		rules:  rules,
		target: target,
		opts:   opts,
		types:  make(map[*module.TypeDef]*Type),
	}
}

func (m *Module) Def() *module.Module { return m.def }
func (m *Module) Target() bool        { return m.target }
func (m *Module) Rules() *skip.Rules  { return m.rules }

// Namespaces returns the namespace entries in first-touch order.
func (m *Module) Namespaces() []*Namespace { return m.namespaces.values() }

// Type returns the entry for td, creating it on first touch.
func (m *Module) Type(td *module.TypeDef) *Type {
	if t, ok := m.types[td]; ok {
		return t
	}
	ns := m.namespaces.getOrAdd(td.Namespace, func() *Namespace { return newNamespace(m, td.Namespace) })
	t := ns.types.getOrAdd(td, func() *Type { return newType(ns, td) })
	m.types[td] = t
	return t
}

// Method returns the entry for md, creating it on first touch.
func (m *Module) Method(md *module.MethodDef) *Method {
	return m.Type(md.DeclaringType()).method(md)
}

// Field returns the entry for fd, creating it on first touch.
func (m *Module) Field(fd *module.FieldDef) *Field {
	return m.Type(fd.DeclaringType()).field(fd)
}

// Property returns the entry for pd, creating it on first touch.
func (m *Module) Property(pd *module.PropertyDef) *Property {
	return m.Type(pd.DeclaringType()).property(pd)
}

// Types returns every type entry in namespace order.
func (m *Module) Types() []*Type {
	var out []*Type
	for _, ns := range m.namespaces.values() {
		out = append(out, ns.types.values()...)
	}
	return out
}

// Methods returns every method entry in namespace and type order.
func (m *Module) Methods() []*Method {
	var out []*Method
	for _, t := range m.Types() {
		out = append(out, t.methods.values()...)
	}
	return out
}

// Resolve scans the module's declarations and registers every reference
// they contain. A second call does nothing.
func (m *Module) Resolve() {
	if m.resolved {
		return
	}
	m.resolved = true
	if m.def.EntryPoint != nil {
		m.reg.RegisterMethod(m.def.EntryPoint)
	}
	for _, td := range m.def.Types {
		m.Type(td).Resolve()
	}
}

// FindOverrides groups every method of the module with the slots it
// overrides or implements.
func (m *Module) FindOverrides() {
	for _, md := range m.Methods() {
		md.FindOverrides()
	}
	for _, t := range m.Types() {
		t.findInheritedImplementations()
	}
}

// RunRules renames the module innermost-out and returns its audit.
func (m *Module) RunRules() *report.Module {
	rep := &report.Module{Name: m.def.Name}
	if !m.target {
		return rep
	}
	it := m.opts.iterator()
	for _, ns := range m.namespaces.values() {
		ns.RunRules(rep)
		m.opts.assign(it, ns)
		rep.Add(ns.entry())
	}
	return rep
}

// SkipsMethod reports whether a skip rule excludes md from transforms.
func (m *Module) SkipsMethod(md *module.MethodDef) bool {
	return m.Method(md).Skipped()
}

// ----------------------------------------------------------------------------
// Namespace

// Namespace groups the types declared under one namespace name.
type Namespace struct {
	mod     *Module
	key     string
	sym     skip.Symbol
	types   registry[*module.TypeDef, *Type]
	renamed bool
	change  Change
}

func newNamespace(m *Module, name string) *Namespace {
	return &Namespace{mod: m, key: name, sym: skip.Symbol{Namespace: name, Name: name}}
}

// Name is the original namespace name.
func (ns *Namespace) Name() string { return ns.key }

// Types returns the type entries in first-touch order.
func (ns *Namespace) Types() []*Type { return ns.types.values() }

func (ns *Namespace) Change() Change { return ns.change }

// WillChange reports whether the namespace may be renamed. The global
// namespace never is.
func (ns *Namespace) WillChange() bool {
	return ns.mod.target && !ns.renamed && ns.key != "" && !ns.mod.rules.Skip(skip.KindNamespace, ns.sym)
}

func (ns *Namespace) CanChange() bool { return ns.WillChange() }

// Collides reports whether another namespace of the module is already
// called name.
func (ns *Namespace) Collides(name string) bool {
	for _, td := range ns.mod.def.Types {
		if td.Namespace != name {
			continue
		}
		if _, mine := ns.types.get(td); !mine {
			return true
		}
	}
	return false
}

// ChangeName moves every type of the namespace, and every reference to
// those types, to the namespace name.
func (ns *Namespace) ChangeName(name string) bool {
	if !ns.WillChange() {
		return false
	}
	for _, t := range ns.types.values() {
		t.def.Namespace = name
		for _, ref := range t.refs.items {
			ref.ElementType().Namespace = name
		}
	}
	ns.renamed = true
	ns.change = Change{Old: ns.key, New: name}
	return true
}

// RunRules renames the namespace's types, each after its own members.
func (ns *Namespace) RunRules(rep *report.Module) {
	opts := ns.mod.opts
	it := opts.iterator()
	for _, t := range ns.types.values() {
		t.RunRules(rep)
		opts.assign(it, t)
		rep.Add(t.entry())
	}
}

func (ns *Namespace) entry() report.Entry {
	return entryFor(skip.KindNamespace, "", ns.key, ns.change)
}
