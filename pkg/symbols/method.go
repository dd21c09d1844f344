package symbols

import (
	"fmt"

	"github.com/odvcencio/shroud/pkg/module"
	"github.com/odvcencio/shroud/pkg/report"
	"github.com/odvcencio/shroud/pkg/skip"
)

// Method is the table entry of a method declaration. Methods that share a
// virtual slot belong to one group in the registrar's GroupArena and are
// renamed together or not at all.
type Method struct {
	owner  *Type
	def    *module.MethodDef
	key    string
	orig   string
	sym    skip.Symbol
	refs   refSet[*module.MethodRef]
	handle int

	resolved bool
	renamed  bool
	pinned   bool
	change   Change
}

func newMethod(t *Type, md *module.MethodDef) *Method {
	return &Method{
		owner: t,
		def:   md,
		key:   md.FullName(),
		orig:  md.Name,
		sym:   t.memberSymbol(md.Name),
	}
}

func (m *Method) reg() Registrar { return m.owner.mod().reg }

// Key is the original signature.
func (m *Method) Key() string               { return m.key }
func (m *Method) Def() *module.MethodDef    { return m.def }
func (m *Method) Refs() []*module.MethodRef { return m.refs.items }
func (m *Method) Change() Change            { return m.change }
func (m *Method) Renamed() bool             { return m.renamed }

// Pinned reports whether override search found a slot outside the loaded
// modules, which keeps the method's name fixed.
func (m *Method) Pinned() bool { return m.pinned }

// Group returns every entry sharing m's virtual slot.
func (m *Method) Group() []*Method { return m.reg().Groups().Members(m) }

// AddRef records one use of the method. Instantiations are recorded by
// their open element.
func (m *Method) AddRef(ref *module.MethodRef) { m.refs.add(ref.ElementMethod()) }

// Resolve registers the references in the signature, the attributes and
// every instruction operand of the body. Short branches are expanded
// here so later passes can insert instructions freely.
func (m *Method) Resolve() {
	if m.resolved {
		return
	}
	m.resolved = true
	reg := m.reg()
	md := m.def
	reg.RegisterType(md.ReturnType)
	for _, p := range md.Params {
		reg.RegisterType(p)
	}
	registerGenericParams(reg, md.GenericParams)
	registerAttributes(reg, md.Attributes)
	for _, ov := range md.Overrides {
		reg.RegisterMethod(ov)
	}
	if md.Body == nil {
		return
	}
	md.Body.ExpandShortBranches()
	for _, l := range md.Body.Locals {
		reg.RegisterType(l)
	}
	for _, ins := range md.Body.Instructions {
		reg.RegisterInstruction(ins)
	}
}

// Skipped reports whether a skip rule excludes the method.
func (m *Method) Skipped() bool {
	return m.owner.mod().rules.Skip(skip.KindMethod, m.sym)
}

// WillChange reports whether this method, taken alone, may be renamed.
// Constructors, runtime-implemented and P/Invoke methods keep names the
// runtime looks up.
func (m *Method) WillChange() bool {
	md := m.def
	switch {
	case m.renamed, m.pinned, !m.owner.mod().target:
		return false
	case md.IsConstructor():
		return false
	case md.Flags&(module.MethodRuntime|module.MethodPInvoke) != 0:
		return false
	}
	return !m.Skipped()
}

// CanChange reports whether every member of the group may be renamed.
func (m *Method) CanChange() bool {
	for _, member := range m.Group() {
		if !member.WillChange() {
			return false
		}
	}
	return true
}

// Collides reports whether a method outside the group, declared anywhere
// in the hierarchy of a group member's type, is already called name.
func (m *Method) Collides(name string) bool {
	group := m.Group()
	in := make(map[*module.MethodDef]bool, len(group))
	for _, member := range group {
		in[member.def] = true
	}
	seen := make(map[*module.TypeDef]bool)
	for _, member := range group {
		for _, td := range m.reg().Related(member.def.DeclaringType()) {
			if seen[td] {
				continue
			}
			seen[td] = true
			for _, md := range td.Methods {
				if !in[md] && md.Name == name {
					return true
				}
			}
		}
	}
	return false
}

// ChangeName renames the whole group or nothing: if any member may not
// change, no member is touched and false is returned.
func (m *Method) ChangeName(name string) bool {
	group := m.Group()
	for _, member := range group {
		if !member.WillChange() {
			return false
		}
	}
	for _, member := range group {
		member.apply(name)
	}
	return true
}

func (m *Method) apply(name string) {
	m.def.Name = name
	for _, ref := range m.refs.items {
		ref.ElementMethod().Name = name
	}
	renameGenericParams(m.owner.mod().opts, m.def.GenericParams)
	m.renamed = true
	m.change = Change{Old: m.orig, New: name}
}

func (m *Method) entry() report.Entry {
	return entryFor(skip.KindMethod, m.owner.key, m.orig, m.change)
}

// ----------------------------------------------------------------------------
// Override search

// FindOverrides merges m's group with the slots it overrides: the first
// matching virtual method up the base chain when m overrides, matching
// methods of directly implemented interfaces, and explicit overrides.
// Slots that cannot be inspected because their module is not loaded pin m;
// an unloaded interface pins only public methods.
func (m *Method) FindOverrides() {
	md := m.def
	if !md.IsVirtual() {
		return
	}
	reg := m.reg()
	td := md.DeclaringType()

	if !md.IsNewSlot() {
		m.findBase(td)
	}

	for _, iref := range td.Interfaces {
		it := reg.ResolveType(iref)
		if it == nil {
			// Only public methods implement an interface implicitly. The
			// others reach it through explicit overrides, checked below.
			if md.IsPublic() {
				m.pin("interface %s of %s is not loaded", iref.FullName(), td.FullName())
			}
			continue
		}
		for _, cand := range it.Methods {
			if cand != md && m.matches(cand) {
				m.union(cand)
			}
		}
	}

	for _, ov := range md.Overrides {
		target := reg.ResolveMethod(ov)
		if target == nil {
			m.pin("explicit override %s is not loaded", ov.FullName())
			continue
		}
		m.union(target)
	}
}

func (m *Method) findBase(td *module.TypeDef) {
	reg := m.reg()
	visited := map[*module.TypeDef]bool{td: true}
	for ref := td.BaseType; ref != nil; {
		bt := reg.ResolveType(ref)
		if bt == nil {
			m.pin("base type %s of %s is not loaded", ref.FullName(), td.FullName())
			return
		}
		if visited[bt] {
			return
		}
		visited[bt] = true
		for _, cand := range bt.Methods {
			if cand.IsVirtual() && m.matches(cand) {
				m.union(cand)
				return
			}
		}
		ref = bt.BaseType
	}
}

func (m *Method) matches(cand *module.MethodDef) bool {
	if cand.Name != m.def.Name {
		return false
	}
	if m.owner.mod().opts.Match == MatchName {
		return true
	}
	return sameShape(m.def, cand)
}

// sameShape compares parameter lists; generic parameters match anything
// because a base may be instantiated by the derived type.
func sameShape(a, b *module.MethodDef) bool {
	if len(a.Params) != len(b.Params) || len(a.GenericParams) != len(b.GenericParams) {
		return false
	}
	for i := range a.Params {
		pa, pb := a.Params[i], b.Params[i]
		if pa.ContainsGenericParam() || pb.ContainsGenericParam() {
			continue
		}
		if pa.FullName() != pb.FullName() {
			return false
		}
	}
	return true
}

func (m *Method) union(cand *module.MethodDef) {
	other := m.reg().Method(cand)
	if other == nil {
		return
	}
	m.reg().Groups().Union(m, other)
}

func (m *Method) pin(format string, args ...any) {
	if !m.pinned {
		m.reg().Warnf("method %s keeps its name: %s", m.key, fmt.Sprintf(format, args...))
	}
	m.pinned = true
}
