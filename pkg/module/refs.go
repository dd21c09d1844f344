package module

import (
	"fmt"
	"strings"
)

// TypeKind distinguishes the shapes a type reference can take.
type TypeKind uint8

const (
	KindNamed TypeKind = iota
	KindArray
	KindInstance
	KindTypeParam
	KindMethodParam
)

var typeKindNames = []string{"named", "array", "instance", "type_param", "method_param"}

func (k TypeKind) String() string {
	if int(k) < len(typeKindNames) {
		return typeKindNames[k]
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// TypeRef is one occurrence of a type in module content. Every occurrence
// is a distinct object so that renames can rewrite them one by one.
type TypeRef struct {
	Kind      TypeKind
	Scope     string // declaring module name, named refs only
	Namespace string
	Name      string
	Element   *TypeRef   // array element or generic definition
	Args      []*TypeRef // generic arguments of an instance
	Index     int        // generic parameter position
}

// NamedRef returns a reference to the type Namespace.Name of module scope.
func NamedRef(scope, namespace, name string) *TypeRef {
	return &TypeRef{Kind: KindNamed, Scope: scope, Namespace: namespace, Name: name}
}

// ArrayOf returns a single-dimensional array of elem.
func ArrayOf(elem *TypeRef) *TypeRef {
	return &TypeRef{Kind: KindArray, Element: elem}
}

// Instance returns the generic instantiation def<args...>.
func Instance(def *TypeRef, args ...*TypeRef) *TypeRef {
	return &TypeRef{Kind: KindInstance, Element: def, Args: args}
}

// TypeParam refers to the i-th generic parameter of the enclosing type.
func TypeParam(i int) *TypeRef { return &TypeRef{Kind: KindTypeParam, Index: i} }

// MethodParam refers to the i-th generic parameter of the enclosing method.
func MethodParam(i int) *TypeRef { return &TypeRef{Kind: KindMethodParam, Index: i} }

// ElementType walks arrays and instantiations down to the named type
// they are built from.
func (t *TypeRef) ElementType() *TypeRef {
	for (t.Kind == KindArray || t.Kind == KindInstance) && t.Element != nil {
		t = t.Element
	}
	return t
}

// IsGenericParam reports whether t is a type or method generic parameter.
func (t *TypeRef) IsGenericParam() bool {
	return t.Kind == KindTypeParam || t.Kind == KindMethodParam
}

// ContainsGenericParam reports whether any part of t is a generic parameter.
func (t *TypeRef) ContainsGenericParam() bool {
	switch t.Kind {
	case KindTypeParam, KindMethodParam:
		return true
	case KindArray:
		return t.Element.ContainsGenericParam()
	case KindInstance:
		if t.Element.ContainsGenericParam() {
			return true
		}
		for _, a := range t.Args {
			if a.ContainsGenericParam() {
				return true
			}
		}
	}
	return false
}

// FullName renders t; generic parameters print as !n and !!n.
func (t *TypeRef) FullName() string {
	switch t.Kind {
	case KindArray:
		return t.Element.FullName() + "[]"
	case KindInstance:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = a.FullName()
		}
		return t.Element.FullName() + "<" + strings.Join(args, ",") + ">"
	case KindTypeParam:
		return fmt.Sprintf("!%d", t.Index)
	case KindMethodParam:
		return fmt.Sprintf("!!%d", t.Index)
	}
	return qualify(t.Namespace, t.Name)
}

func (t *TypeRef) String() string { return t.FullName() }

// Clone returns a deep copy of t, so the copy is a separate occurrence.
func (t *TypeRef) Clone() *TypeRef {
	if t == nil {
		return nil
	}
	c := *t
	c.Element = t.Element.Clone()
	if t.Args != nil {
		c.Args = make([]*TypeRef, len(t.Args))
		for i, a := range t.Args {
			c.Args[i] = a.Clone()
		}
	}
	return &c
}

// MethodRef is one occurrence of a method. A generic method instantiation
// wraps the open reference in Element and carries only GenericArgs; its
// remaining fields are unused.
type MethodRef struct {
	DeclaringType *TypeRef
	Name          string
	HasThis       bool
	ReturnType    *TypeRef
	Params        []*TypeRef
	GenericArity  int

	Element     *MethodRef
	GenericArgs []*TypeRef
}

// MethodInstance returns the instantiation elem<args...>.
func MethodInstance(elem *MethodRef, args ...*TypeRef) *MethodRef {
	return &MethodRef{Element: elem, GenericArgs: args}
}

// IsInstance reports whether m is a generic method instantiation.
func (m *MethodRef) IsInstance() bool { return m.Element != nil }

// ElementMethod returns the open method an instantiation is built from,
// or m itself.
func (m *MethodRef) ElementMethod() *MethodRef {
	for m.Element != nil {
		m = m.Element
	}
	return m
}

// FullName is the signature used to match m against declarations. The
// declaring type is rendered without generic arguments.
func (m *MethodRef) FullName() string {
	e := m.ElementMethod()
	return methodSignature(e.ReturnType, e.DeclaringType.ElementType().FullName(), e.Name, e.GenericArity, e.Params)
}

func (m *MethodRef) String() string { return m.FullName() }

// FieldRef is one occurrence of a field.
type FieldRef struct {
	DeclaringType *TypeRef
	Name          string
	FieldType     *TypeRef
}

func (f *FieldRef) FullName() string {
	return f.FieldType.FullName() + " " + f.DeclaringType.ElementType().FullName() + "::" + f.Name
}

// PropertyRef is one occurrence of a property, as found in the named
// arguments of custom attributes.
type PropertyRef struct {
	DeclaringType *TypeRef
	Name          string
	PropertyType  *TypeRef
}

func (p *PropertyRef) FullName() string {
	return p.PropertyType.FullName() + " " + p.DeclaringType.ElementType().FullName() + "::" + p.Name
}
