// Package project coordinates a run: it loads the target modules and the
// modules they reference, routes every reference to the registry owning its
// declaration, and drives the passes in order.
package project

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"os"
	"path/filepath"

	"github.com/odvcencio/shroud/pkg/module"
	"github.com/odvcencio/shroud/pkg/names"
	"github.com/odvcencio/shroud/pkg/skip"
	"github.com/odvcencio/shroud/pkg/symbols"
)

var (
	ErrNoModules       = errors.New("no modules to obfuscate")
	ErrDuplicateModule = errors.New("duplicate module name")
)

// Project holds every loaded module. It implements symbols.Registrar.
type Project struct {
	cfg      *Config
	warn     io.Writer
	opts     symbols.Options
	resolver *module.Resolver
	groups   *symbols.GroupArena

	targets []*symbols.Module
	refs    []*symbols.Module
	files   map[*module.Module]string

	parents  map[*module.TypeDef][]*module.TypeDef
	children map[*module.TypeDef][]*module.TypeDef
	resolved bool
	warned   map[string]bool

	entropy *mrand.ChaCha8
	rng     *mrand.Rand
}

var _ symbols.Registrar = (*Project)(nil)

// New returns an empty project for cfg. Warnings go to warnings, which may
// be nil. A zero seed draws one from the system.
func New(cfg *Config, warnings io.Writer) (*Project, error) {
	if cfg == nil {
		cfg = &Config{Options: DefaultOptions()}
	}
	factory, err := names.Alphabet(cfg.Options.Alphabet)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	seed := cfg.Seed
	if seed == 0 {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, fmt.Errorf("project: seed: %w", err)
		}
		seed = binary.LittleEndian.Uint64(b[:])
	}
	var key [32]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(key[i*8:], seed+uint64(i))
	}
	chacha := mrand.NewChaCha8(key)

	return &Project{
		cfg:  cfg,
		warn: warnings,
		opts: symbols.Options{
			Names:  factory,
			Policy: cfg.Options.NamePolicy,
			Match:  cfg.Options.OverrideMatch,
		},
		resolver: module.NewResolver(),
		groups:   symbols.NewGroupArena(),
		files:    make(map[*module.Module]string),
		parents:  make(map[*module.TypeDef][]*module.TypeDef),
		children: make(map[*module.TypeDef][]*module.TypeDef),
		warned:   make(map[string]bool),
		entropy:  chacha,
		rng:      mrand.New(chacha),
	}, nil
}

func (p *Project) Config() *Config               { return p.cfg }
func (p *Project) Targets() []*symbols.Module    { return p.targets }
func (p *Project) References() []*symbols.Module { return p.refs }

// AddTarget registers m for obfuscation under rules. file is where m was
// read from; its base name is reused on save.
func (p *Project) AddTarget(m *module.Module, rules *skip.Rules, file string) (*symbols.Module, error) {
	if p.resolver.Module(m.Name) != nil {
		return nil, fmt.Errorf("add %s: %w", m.Name, ErrDuplicateModule)
	}
	p.resolver.Add(m)
	if file == "" {
		file = m.Name + module.ImageExt
	}
	p.files[m] = file
	sm := symbols.NewModule(m, p, rules, true, p.opts)
	p.targets = append(p.targets, sm)
	return sm, nil
}

// AddReference registers m as a dependency that is never renamed.
func (p *Project) AddReference(m *module.Module) (*symbols.Module, error) {
	if p.resolver.Module(m.Name) != nil {
		return nil, fmt.Errorf("add %s: %w", m.Name, ErrDuplicateModule)
	}
	p.resolver.Add(m)
	sm := symbols.NewModule(m, p, nil, false, p.opts)
	p.refs = append(p.refs, sm)
	return sm, nil
}

// Load reads every configured module, then every module they reference
// that can be found beside them or on the search paths. A dependency that
// cannot be found is reported and left out; references into it keep their
// names.
func (p *Project) Load() error {
	if len(p.cfg.Modules) == 0 {
		return ErrNoModules
	}
	var queue []*module.Module
	for _, mc := range p.cfg.Modules {
		m, err := module.ReadFile(mc.File)
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}
		if _, err := p.AddTarget(m, mc.Rules, mc.File); err != nil {
			return fmt.Errorf("load %s: %w", mc.File, err)
		}
		queue = append(queue, m)
	}

	missing := make(map[string]bool)
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		for _, name := range m.References {
			if p.resolver.Module(name) != nil || missing[name] {
				continue
			}
			path := p.findDependency(name, p.moduleDir(m))
			if path == "" {
				missing[name] = true
				p.Warnf("dependency %s of %s not found; references into it keep their names", name, m.Name)
				continue
			}
			dep, err := module.ReadFile(path)
			if err != nil {
				return fmt.Errorf("load dependency %s: %w", name, err)
			}
			if dep.Name != name {
				return fmt.Errorf("load dependency %s: %s declares module %s", name, path, dep.Name)
			}
			p.files[dep] = path
			if _, err := p.AddReference(dep); err != nil {
				return fmt.Errorf("load dependency %s: %w", name, err)
			}
			queue = append(queue, dep)
		}
	}
	return nil
}

func (p *Project) moduleDir(m *module.Module) string {
	if f, ok := p.files[m]; ok {
		return filepath.Dir(f)
	}
	return ""
}

func (p *Project) findDependency(name, dir string) string {
	dirs := append([]string{dir}, p.cfg.SearchPaths...)
	for _, d := range dirs {
		if d == "" {
			continue
		}
		for _, ext := range []string{module.ImageExt, module.ImageExt + ".yaml", module.ImageExt + ".yml"} {
			path := filepath.Join(d, name+ext)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
	}
	return ""
}

// ----------------------------------------------------------------------------
// Resolution

// Resolve scans every module, then builds the override groups of the
// targets. Calling it again registers nothing new.
func (p *Project) Resolve() {
	for _, t := range p.targets {
		t.Resolve()
	}
	for _, r := range p.refs {
		r.Resolve()
	}
	if p.resolved {
		return
	}
	p.resolved = true
	p.buildHierarchy()
	for _, t := range p.targets {
		t.FindOverrides()
	}
}

func (p *Project) buildHierarchy() {
	for _, m := range p.resolver.Modules() {
		for _, td := range m.Types {
			supers := append([]*module.TypeRef{td.BaseType}, td.Interfaces...)
			for _, ref := range supers {
				st := p.resolver.ResolveType(ref)
				if st == nil || st == td {
					continue
				}
				p.parents[td] = append(p.parents[td], st)
				p.children[st] = append(p.children[st], td)
			}
		}
	}
}

// owner returns the registry of m, targets first.
func (p *Project) owner(m *module.Module) *symbols.Module {
	if m == nil {
		return nil
	}
	for _, t := range p.targets {
		if t.Def() == m {
			return t
		}
	}
	for _, r := range p.refs {
		if r.Def() == m {
			return r
		}
	}
	return nil
}

// unresolved reports a reference whose module is loaded but does not
// declare the symbol. References into modules that were never loaded are
// dropped silently; Load already warned about them.
func (p *Project) unresolved(kind, name, scope string) {
	if scope != "" && p.resolver.Module(scope) == nil {
		return
	}
	key := kind + " " + name
	if p.warned[key] {
		return
	}
	p.warned[key] = true
	p.Warnf("unresolved %s %s", kind, name)
}

// RegisterType records ref with the type it names. Arrays and generic
// instances are taken apart; generic parameters name nothing.
func (p *Project) RegisterType(ref *module.TypeRef) {
	if ref == nil {
		return
	}
	switch ref.Kind {
	case module.KindArray:
		p.RegisterType(ref.Element)
		return
	case module.KindInstance:
		p.RegisterType(ref.Element)
		for _, a := range ref.Args {
			p.RegisterType(a)
		}
		return
	case module.KindTypeParam, module.KindMethodParam:
		return
	}
	td := p.resolver.ResolveType(ref)
	if td == nil {
		p.unresolved("type", ref.FullName(), ref.Scope)
		return
	}
	if o := p.owner(td.Module()); o != nil {
		o.Type(td).AddRef(ref)
	}
}

// RegisterMethod records ref with the method it names, along with every
// type its signature mentions.
func (p *Project) RegisterMethod(ref *module.MethodRef) {
	if ref == nil {
		return
	}
	for _, a := range ref.GenericArgs {
		p.RegisterType(a)
	}
	e := ref.ElementMethod()
	p.RegisterType(e.DeclaringType)
	p.RegisterType(e.ReturnType)
	for _, pt := range e.Params {
		p.RegisterType(pt)
	}
	md := p.resolver.ResolveMethod(e)
	if md == nil {
		p.unresolved("method", e.FullName(), scopeOf(e.DeclaringType))
		return
	}
	if o := p.owner(md.DeclaringType().Module()); o != nil {
		o.Method(md).AddRef(ref)
	}
}

// RegisterField records ref with the field it names.
func (p *Project) RegisterField(ref *module.FieldRef) {
	if ref == nil {
		return
	}
	p.RegisterType(ref.DeclaringType)
	p.RegisterType(ref.FieldType)
	fd := p.resolver.ResolveField(ref)
	if fd == nil {
		p.unresolved("field", ref.FullName(), scopeOf(ref.DeclaringType))
		return
	}
	if o := p.owner(fd.DeclaringType().Module()); o != nil {
		o.Field(fd).AddRef(ref)
	}
}

// RegisterProperty records ref with the property it names.
func (p *Project) RegisterProperty(ref *module.PropertyRef) {
	if ref == nil {
		return
	}
	p.RegisterType(ref.DeclaringType)
	p.RegisterType(ref.PropertyType)
	pd := p.resolver.ResolveProperty(ref)
	if pd == nil {
		p.unresolved("property", ref.FullName(), scopeOf(ref.DeclaringType))
		return
	}
	if o := p.owner(pd.DeclaringType().Module()); o != nil {
		o.Property(pd).AddRef(ref)
	}
}

// RegisterInstruction records the symbol an instruction operand names.
func (p *Project) RegisterInstruction(ins *module.Instruction) {
	switch op := ins.Operand.(type) {
	case *module.TypeRef:
		p.RegisterType(op)
	case *module.MethodRef:
		p.RegisterMethod(op)
	case *module.FieldRef:
		p.RegisterField(op)
	}
}

func scopeOf(ref *module.TypeRef) string {
	if ref == nil {
		return ""
	}
	return ref.ElementType().Scope
}

func (p *Project) ResolveType(ref *module.TypeRef) *module.TypeDef {
	return p.resolver.ResolveType(ref)
}

func (p *Project) ResolveMethod(ref *module.MethodRef) *module.MethodDef {
	return p.resolver.ResolveMethod(ref)
}

// Method returns the entry for def, or nil when no loaded module declares
// it.
func (p *Project) Method(def *module.MethodDef) *symbols.Method {
	td := def.DeclaringType()
	if td == nil {
		return nil
	}
	o := p.owner(td.Module())
	if o == nil {
		return nil
	}
	return o.Method(def)
}

// Related returns td, every type it derives from and every type deriving
// from it, as far as the loaded modules show.
func (p *Project) Related(td *module.TypeDef) []*module.TypeDef {
	seen := map[*module.TypeDef]bool{td: true}
	out := []*module.TypeDef{td}
	walk := func(edges map[*module.TypeDef][]*module.TypeDef) {
		queue := []*module.TypeDef{td}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range edges[cur] {
				if seen[next] {
					continue
				}
				seen[next] = true
				out = append(out, next)
				queue = append(queue, next)
			}
		}
	}
	walk(p.parents)
	walk(p.children)
	return out
}

func (p *Project) Groups() *symbols.GroupArena { return p.groups }

// Warnf writes one warning line. Warnings never stop a run.
func (p *Project) Warnf(format string, args ...any) {
	if p.warn == nil {
		return
	}
	fmt.Fprintf(p.warn, "warning: "+format+"\n", args...)
}
