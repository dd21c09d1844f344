// Package module is the in-memory graph of a managed module: type and
// member declarations, the references that use them and the instruction
// streams of method bodies.
package module

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultCoreLibrary names the module that declares System.Object and
// friends when a module does not say otherwise.
const DefaultCoreLibrary = "mscorlib"

// ----------------------------------------------------------------------------
// Flags

// TypeAttributes is a set of type declaration flags.
type TypeAttributes uint32

const (
	TypePublic TypeAttributes = 1 << iota
	TypeInterface
	TypeAbstract
	TypeSealed
	TypeSpecialName
	TypeRTSpecialName
	TypeBeforeFieldInit
)

// MethodAttributes is a set of method declaration flags.
type MethodAttributes uint32

const (
	MethodPublic MethodAttributes = 1 << iota
	MethodPrivate
	MethodStatic
	MethodVirtual
	MethodNewSlot
	MethodAbstract
	MethodFinal
	MethodHideBySig
	MethodSpecialName
	MethodRTSpecialName
	MethodRuntime
	MethodPInvoke
)

// FieldAttributes is a set of field declaration flags.
type FieldAttributes uint32

const (
	FieldPublic FieldAttributes = 1 << iota
	FieldPrivate
	FieldStatic
	FieldInitOnly
	FieldLiteral
	FieldHasRVA
	FieldSpecialName
	FieldRTSpecialName
)

var typeFlagNames = []string{"public", "interface", "abstract", "sealed", "specialname", "rtspecialname", "beforefieldinit"}

var methodFlagNames = []string{"public", "private", "static", "virtual", "newslot", "abstract", "final", "hidebysig", "specialname", "rtspecialname", "runtime", "pinvoke"}

var fieldFlagNames = []string{"public", "private", "static", "initonly", "literal", "hasrva", "specialname", "rtspecialname"}

func flagsToNames(v uint32, table []string) []string {
	var out []string
	for i, name := range table {
		if v&(1<<i) != 0 {
			out = append(out, name)
		}
	}
	return out
}

func namesToFlags(names []string, table []string) (uint32, error) {
	var v uint32
	for _, n := range names {
		found := false
		for i, name := range table {
			if strings.EqualFold(n, name) {
				v |= 1 << i
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown flag %q", n)
		}
	}
	return v, nil
}

// ----------------------------------------------------------------------------
// Declarations

// Module is one compiled unit: its name is the resolution scope that
// references in other modules use to reach its types.
type Module struct {
	Name        string
	Version     string
	MVID        uuid.UUID
	CoreLibrary string
	References  []string
	Types       []*TypeDef
	EntryPoint  *MethodRef

	index map[string]*TypeDef
}

// NewModule returns an empty module with a fresh MVID.
func NewModule(name string) *Module {
	return &Module{
		Name:        name,
		MVID:        uuid.New(),
		CoreLibrary: DefaultCoreLibrary,
		index:       make(map[string]*TypeDef),
	}
}

// AddType appends td to the module and takes ownership of it.
func (m *Module) AddType(td *TypeDef) *TypeDef {
	if m.index == nil {
		m.index = make(map[string]*TypeDef)
	}
	td.module = m
	m.Types = append(m.Types, td)
	if _, exists := m.index[td.FullName()]; !exists {
		m.index[td.FullName()] = td
	}
	return td
}

// Type finds a declared type by its current full name.
func (m *Module) Type(fullName string) *TypeDef {
	if td, ok := m.index[fullName]; ok && td.FullName() == fullName {
		return td
	}
	// Renames invalidate the index; fall back to a scan.
	for _, td := range m.Types {
		if td.FullName() == fullName {
			return td
		}
	}
	return nil
}

// Core returns a named reference to a type of the core library.
func (m *Module) Core(namespace, name string) *TypeRef {
	scope := m.CoreLibrary
	if scope == "" {
		scope = DefaultCoreLibrary
	}
	return NamedRef(scope, namespace, name)
}

// GenericParam is a type or method generic parameter.
type GenericParam struct {
	Name        string
	Constraints []*TypeRef
}

// CustomAttribute is an attribute instance attached to a declaration.
type CustomAttribute struct {
	Constructor     *MethodRef
	Args            []string
	NamedFields     []*FieldRef
	NamedProperties []*PropertyRef
}

// TypeDef is a type declaration. Nested types are declared as top-level
// types of the module.
type TypeDef struct {
	Namespace     string
	Name          string
	Flags         TypeAttributes
	BaseType      *TypeRef
	Interfaces    []*TypeRef
	GenericParams []*GenericParam
	Attributes    []*CustomAttribute
	Fields        []*FieldDef
	Properties    []*PropertyDef
	Methods       []*MethodDef

	module *Module
}

// NewType returns an unattached type declaration.
func NewType(namespace, name string, flags TypeAttributes) *TypeDef {
	return &TypeDef{Namespace: namespace, Name: name, Flags: flags}
}

// FullName is "Namespace.Name", or Name in the global namespace.
func (t *TypeDef) FullName() string { return qualify(t.Namespace, t.Name) }

// Module returns the module that declares t, nil until AddType.
func (t *TypeDef) Module() *Module { return t.module }

func (t *TypeDef) IsInterface() bool { return t.Flags&TypeInterface != 0 }

// Ref returns a new named reference to t.
func (t *TypeDef) Ref() *TypeRef {
	scope := ""
	if t.module != nil {
		scope = t.module.Name
	}
	return NamedRef(scope, t.Namespace, t.Name)
}

// AddField appends a field declaration.
func (t *TypeDef) AddField(name string, typ *TypeRef, flags FieldAttributes) *FieldDef {
	f := &FieldDef{Name: name, Type: typ, Flags: flags, declaringType: t}
	t.Fields = append(t.Fields, f)
	return f
}

// AddProperty appends a property declaration.
func (t *TypeDef) AddProperty(name string, typ *TypeRef) *PropertyDef {
	p := &PropertyDef{Name: name, Type: typ, declaringType: t}
	t.Properties = append(t.Properties, p)
	return p
}

// AddMethod appends a method declaration with an empty body.
func (t *TypeDef) AddMethod(name string, flags MethodAttributes, ret *TypeRef, params ...*TypeRef) *MethodDef {
	m := &MethodDef{Name: name, Flags: flags, ReturnType: ret, Params: params, declaringType: t}
	if flags&(MethodAbstract|MethodRuntime|MethodPInvoke) == 0 {
		m.Body = &Body{MaxStack: 8, InitLocals: true}
	}
	t.Methods = append(t.Methods, m)
	return m
}

// FieldDef is a field declaration.
type FieldDef struct {
	Name         string
	Flags        FieldAttributes
	Type         *TypeRef
	InitialValue []byte
	Attributes   []*CustomAttribute

	declaringType *TypeDef
}

func (f *FieldDef) DeclaringType() *TypeDef { return f.declaringType }

// Ref returns a new reference to f.
func (f *FieldDef) Ref() *FieldRef {
	return &FieldRef{DeclaringType: f.declaringType.Ref(), Name: f.Name, FieldType: f.Type}
}

// PropertyDef is a property declaration. Accessors are references to
// methods of the declaring type.
type PropertyDef struct {
	Name       string
	Type       *TypeRef
	Getter     *MethodRef
	Setter     *MethodRef
	Attributes []*CustomAttribute

	declaringType *TypeDef
}

func (p *PropertyDef) DeclaringType() *TypeDef { return p.declaringType }

// Ref returns a new reference to p.
func (p *PropertyDef) Ref() *PropertyRef {
	return &PropertyRef{DeclaringType: p.declaringType.Ref(), Name: p.Name, PropertyType: p.Type}
}

// MethodDef is a method declaration. Body is nil for abstract, runtime
// and P/Invoke methods.
type MethodDef struct {
	Name          string
	Flags         MethodAttributes
	ReturnType    *TypeRef
	Params        []*TypeRef
	GenericParams []*GenericParam
	Overrides     []*MethodRef
	Attributes    []*CustomAttribute
	Body          *Body

	declaringType *TypeDef
}

func (m *MethodDef) DeclaringType() *TypeDef { return m.declaringType }

func (m *MethodDef) IsPublic() bool  { return m.Flags&MethodPublic != 0 }
func (m *MethodDef) IsStatic() bool  { return m.Flags&MethodStatic != 0 }
func (m *MethodDef) IsVirtual() bool { return m.Flags&MethodVirtual != 0 }
func (m *MethodDef) IsNewSlot() bool { return m.Flags&MethodNewSlot != 0 }

// IsConstructor reports whether m is an instance or type initializer.
func (m *MethodDef) IsConstructor() bool {
	return m.Name == ".ctor" || m.Name == ".cctor"
}

// HasBody reports whether m carries executable instructions.
func (m *MethodDef) HasBody() bool {
	return m.Body != nil && len(m.Body.Instructions) > 0
}

// FullName is the signature string "Ret Decl::Name`N(P1,P2)" shared by
// declarations and the references that resolve to them.
func (m *MethodDef) FullName() string {
	return methodSignature(m.ReturnType, m.declaringType.FullName(), m.Name, len(m.GenericParams), m.Params)
}

// Ref returns a new open reference to m.
func (m *MethodDef) Ref() *MethodRef {
	return &MethodRef{
		DeclaringType: m.declaringType.Ref(),
		Name:          m.Name,
		HasThis:       !m.IsStatic(),
		ReturnType:    m.ReturnType,
		Params:        append([]*TypeRef(nil), m.Params...),
		GenericArity:  len(m.GenericParams),
	}
}

// AddGenericParams appends generic parameters named names.
func (t *TypeDef) AddGenericParams(names ...string) {
	for _, n := range names {
		t.GenericParams = append(t.GenericParams, &GenericParam{Name: n})
	}
}

// AddGenericParams appends generic parameters named names.
func (m *MethodDef) AddGenericParams(names ...string) {
	for _, n := range names {
		m.GenericParams = append(m.GenericParams, &GenericParam{Name: n})
	}
}

func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

func methodSignature(ret *TypeRef, declaring, name string, arity int, params []*TypeRef) string {
	var b strings.Builder
	if ret != nil {
		b.WriteString(ret.FullName())
	} else {
		b.WriteString("System.Void")
	}
	b.WriteByte(' ')
	b.WriteString(declaring)
	b.WriteString("::")
	b.WriteString(name)
	if arity > 0 {
		fmt.Fprintf(&b, "`%d", arity)
	}
	b.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.FullName())
	}
	b.WriteByte(')')
	return b.String()
}
