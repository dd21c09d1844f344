// Package skip holds the exclusion rules that keep symbols out of the
// rename and constant-hiding passes.
package skip

import (
	"fmt"
	"regexp"
)

// Kind is the kind of symbol a rule is asked about.
type Kind int

const (
	KindNamespace Kind = iota
	KindType
	KindMethod
	KindField
	KindProperty
)

func (k Kind) String() string {
	switch k {
	case KindNamespace:
		return "namespace"
	case KindType:
		return "type"
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindProperty:
		return "property"
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Symbol describes a declaration by its original names. For a type,
// Type is its own full name; for a member, the declaring type's.
type Symbol struct {
	Namespace string
	Type      string // full name, "Ns.Name"
	TypeName  string // simple name
	Name      string
}

// Pattern is a full-text regular expression. The zero Pattern matches
// everything.
type Pattern struct {
	expr string
	re   *regexp.Regexp
}

// Compile anchors expr so that it must match the whole subject.
func Compile(expr string) (Pattern, error) {
	if expr == "" {
		return Pattern{}, nil
	}
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return Pattern{}, fmt.Errorf("skip: compile %q: %w", expr, err)
	}
	return Pattern{expr: expr, re: re}, nil
}

// MustCompile is Compile for patterns known to be valid.
func MustCompile(expr string) Pattern {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether s matches the pattern.
func (p Pattern) Match(s string) bool {
	if p.re == nil {
		return true
	}
	return p.re.MatchString(s)
}

func (p Pattern) String() string { return p.expr }

// Rule answers whether a symbol of the given kind is excluded.
type Rule interface {
	Matches(kind Kind, sym Symbol) bool
}

// NamespaceRule excludes namespaces whose name matches Name. The boolean
// flags extend the exclusion to what those namespaces contain.
type NamespaceRule struct {
	Name       Pattern
	Types      bool
	Methods    bool
	Fields     bool
	Properties bool
}

func (r NamespaceRule) Matches(kind Kind, sym Symbol) bool {
	var enabled bool
	switch kind {
	case KindNamespace:
		enabled = true
	case KindType:
		enabled = r.Types
	case KindMethod:
		enabled = r.Methods
	case KindField:
		enabled = r.Fields
	case KindProperty:
		enabled = r.Properties
	}
	return enabled && r.Name.Match(sym.Namespace)
}

// TypeRule excludes types whose full or simple name matches Name, and
// optionally their members.
type TypeRule struct {
	Name       Pattern
	Methods    bool
	Fields     bool
	Properties bool
}

func (r TypeRule) Matches(kind Kind, sym Symbol) bool {
	var enabled bool
	switch kind {
	case KindType:
		enabled = true
	case KindMethod:
		enabled = r.Methods
	case KindField:
		enabled = r.Fields
	case KindProperty:
		enabled = r.Properties
	}
	if !enabled {
		return false
	}
	return r.Name.Match(sym.Type) || r.Name.Match(sym.TypeName)
}

// MemberRule excludes methods, fields or properties by declaring type and
// member name. An empty pattern matches any value.
type MemberRule struct {
	Kind Kind
	Type Pattern
	Name Pattern
}

func (r MemberRule) Matches(kind Kind, sym Symbol) bool {
	return kind == r.Kind && r.Type.Match(sym.Type) && r.Name.Match(sym.Name)
}

// Rules is the rule set attached to one module. The zero value excludes
// nothing.
type Rules struct {
	rules []Rule
}

// NewRules returns a rule set holding rules.
func NewRules(rules ...Rule) *Rules {
	return &Rules{rules: append([]Rule(nil), rules...)}
}

// Add appends a rule.
func (r *Rules) Add(rule Rule) {
	r.rules = append(r.rules, rule)
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// Skip reports whether any rule excludes sym. A nil set excludes nothing.
func (r *Rules) Skip(kind Kind, sym Symbol) bool {
	if r == nil {
		return false
	}
	for _, rule := range r.rules {
		if rule.Matches(kind, sym) {
			return true
		}
	}
	return false
}
