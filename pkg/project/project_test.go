package project

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/shroud/pkg/hide"
	"github.com/odvcencio/shroud/pkg/module"
	"github.com/odvcencio/shroud/pkg/skip"
)

func writeImage(t *testing.T, path string, m *module.Module) {
	t.Helper()
	if err := module.WriteFile(path, m); err != nil {
		t.Fatalf("WriteFile %s: %v", path, err)
	}
}

// appModule is a small program whose Main prints a literal and whose Keep
// method holds a constant.
func appModule() *module.Module {
	m := module.NewModule("App")
	m.References = []string{"Lib", "Missing"}
	td := m.AddType(module.NewType("App", "Program", module.TypePublic))
	td.BaseType = m.Core("System", "Object")

	main := td.AddMethod("Main", module.MethodPublic|module.MethodStatic, m.Core("System", "Void"))
	main.Body.Emit(
		module.NewInstruction(module.OpLdstr, "secret"),
		module.NewInstruction(module.OpCall, &module.MethodRef{
			DeclaringType: module.NamedRef("Lib", "Lib", "Printer"),
			Name:          "Print",
			ReturnType:    m.Core("System", "Void"),
			Params:        []*module.TypeRef{m.Core("System", "String")},
		}),
		module.NewInstruction(module.OpLdcI4, int32(42)),
		module.NewInstruction(module.OpPop, nil),
		module.NewInstruction(module.OpRet, nil),
	)
	m.EntryPoint = main.Ref()

	keep := td.AddMethod("Keep", module.MethodPublic|module.MethodStatic, m.Core("System", "Int32"))
	keep.Body.Emit(
		module.NewInstruction(module.OpLdcI4, int32(42)),
		module.NewInstruction(module.OpRet, nil),
	)
	return m
}

func libModule(name string) *module.Module {
	m := module.NewModule(name)
	td := m.AddType(module.NewType("Lib", "Printer", module.TypePublic))
	td.BaseType = m.Core("System", "Object")
	md := td.AddMethod("Print", module.MethodPublic|module.MethodStatic, m.Core("System", "Void"), m.Core("System", "String"))
	md.Body.Emit(module.NewInstruction(module.OpRet, nil))
	return m
}

func keepRules() *skip.Rules {
	return skip.NewRules(skip.MemberRule{Kind: skip.KindMethod, Name: skip.MustCompile("Keep")})
}

func TestLoadFindsDependencies(t *testing.T) {
	dir := t.TempDir()
	libDir := filepath.Join(dir, "lib")
	appPath := filepath.Join(dir, "App.ilm")
	writeImage(t, appPath, appModule())
	writeImage(t, filepath.Join(libDir, "Lib.ilm"), libModule("Lib"))

	var warnings bytes.Buffer
	cfg := &Config{
		Seed:        1,
		SearchPaths: []string{libDir},
		Options:     DefaultOptions(),
		Modules:     []ModuleConfig{{File: appPath, Rules: keepRules()}},
	}
	p, err := New(cfg, &warnings)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(p.Targets()) != 1 || len(p.References()) != 1 {
		t.Fatalf("targets = %d references = %d", len(p.Targets()), len(p.References()))
	}
	if p.References()[0].Def().Name != "Lib" {
		t.Fatalf("reference = %s", p.References()[0].Def().Name)
	}
	if !strings.Contains(warnings.String(), "dependency Missing of App not found") {
		t.Fatalf("warnings = %q", warnings.String())
	}

	p.Resolve()
	printer := p.References()[0].Def().Type("Lib.Printer").Methods[0]
	if got := len(p.References()[0].Method(printer).Refs()); got != 1 {
		t.Fatalf("Print refs = %d, want 1", got)
	}
}

func TestLoadRejectsMislabelledDependency(t *testing.T) {
	dir := t.TempDir()
	appPath := filepath.Join(dir, "App.ilm")
	writeImage(t, appPath, appModule())
	writeImage(t, filepath.Join(dir, "Lib.ilm"), libModule("Other"))

	p, err := New(&Config{Seed: 1, Modules: []ModuleConfig{{File: appPath}}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = p.Load()
	if err == nil || !strings.Contains(err.Error(), "declares module Other") {
		t.Fatalf("Load: %v", err)
	}
}

func TestAddTargetRejectsDuplicates(t *testing.T) {
	p, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.AddTarget(libModule("Lib"), nil, ""); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	if _, err := p.AddReference(libModule("Lib")); !errors.Is(err, ErrDuplicateModule) {
		t.Fatalf("AddReference: %v, want ErrDuplicateModule", err)
	}
	if err := p.Load(); !errors.Is(err, ErrNoModules) {
		t.Fatalf("Load without modules: %v", err)
	}
}

func runApp(t *testing.T, opts Options) (*Project, *module.Module, *Result) {
	t.Helper()
	app := appModule()
	p, err := New(&Config{Seed: 42, Options: opts}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.AddTarget(app, keepRules(), ""); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	if _, err := p.AddReference(libModule("Lib")); err != nil {
		t.Fatalf("AddReference: %v", err)
	}
	res, err := p.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return p, app, res
}

func TestRunAppliesPasses(t *testing.T) {
	_, app, res := runApp(t, DefaultOptions())

	program := app.Types[0]
	main, keep := program.Methods[0], program.Methods[1]
	if main.Name == "Main" || keep.Name != "Keep" {
		t.Fatalf("methods = %s, %s", main.Name, keep.Name)
	}
	if res.Scrambled != 1 {
		t.Fatalf("scrambled = %d, want 1", res.Scrambled)
	}
	if len(res.Hidden) != 1 || res.Hidden[0].Strings != 1 || res.Hidden[0].Numbers == 0 {
		t.Fatalf("hidden = %+v", res.Hidden)
	}
	for _, ins := range main.Body.Instructions {
		if ins.Op == module.OpLdstr {
			t.Fatalf("Main still loads %v", ins.Operand)
		}
	}
	if ins := keep.Body.Instructions[0]; ins.Op != module.OpLdcI4 || ins.Operand != int32(42) {
		t.Fatalf("skipped method's constant became %s", ins)
	}
	if len(keep.Body.Instructions) != 2 {
		t.Fatal("skipped method's body changed")
	}
	if app.EntryPoint.Name != main.Name {
		t.Fatalf("entry point names %s, method is %s", app.EntryPoint.Name, main.Name)
	}
	if c := res.Report.Counts(); c.Renamed == 0 || c.Skipped == 0 {
		t.Fatalf("report counts = %+v", c)
	}
	if err := main.Body.Validate(); err != nil {
		t.Fatalf("Main: %v", err)
	}
}

func TestRunWithPassesDisabled(t *testing.T) {
	_, app, res := runApp(t, Options{Rename: true})
	main := app.Types[0].Methods[0]
	if res.Scrambled != 0 || res.Hidden != nil {
		t.Fatalf("disabled passes ran: %+v", res)
	}
	if main.Body.Instructions[0].Op != module.OpLdstr {
		t.Fatal("string hidden with hiding disabled")
	}
	if len(app.Types) != 1 {
		t.Fatalf("types = %d, want 1", len(app.Types))
	}
}

func TestHideStringsIgnoreSkips(t *testing.T) {
	opts := Options{HideConstants: true, HideStringsIgnoreSkips: true}
	app := appModule()
	keep := app.Types[0].Methods[1]
	keep.Body = &module.Body{MaxStack: 8}
	keep.Body.Emit(
		module.NewInstruction(module.OpLdstr, "kept"),
		module.NewInstruction(module.OpPop, nil),
		module.NewInstruction(module.OpLdcI4, int32(7)),
		module.NewInstruction(module.OpRet, nil),
	)

	p, err := New(&Config{Seed: 3, Options: opts}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.AddTarget(app, keepRules(), ""); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	res, err := p.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Hidden[0].Strings != 2 {
		t.Fatalf("strings = %d, want both methods", res.Hidden[0].Strings)
	}
	if keep.Body.Instructions[0].Op != module.OpCall {
		t.Fatal("skipped method's string was not hidden")
	}
	if ins := keep.Body.Instructions[2]; ins.Operand != int32(7) {
		t.Fatalf("skipped method's number became %s", ins)
	}
}

func TestSaveWritesFreshImages(t *testing.T) {
	p, app, _ := runApp(t, DefaultOptions())
	before := app.MVID

	out := t.TempDir()
	paths, err := p.Save(out)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(paths) != 1 || paths[0] != filepath.Join(out, "App.ilm") {
		t.Fatalf("paths = %v", paths)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !module.IsCompressed(data) {
		t.Fatal("image not compressed")
	}
	back, err := module.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.MVID == before {
		t.Fatal("MVID unchanged")
	}
	var aux bool
	for _, td := range back.Types {
		if strings.HasPrefix(td.Name, hide.TypePrefix) {
			aux = true
		}
	}
	if !aux {
		t.Fatal("saved image lacks the constant accessor type")
	}
}

func TestSameSeedSameOutput(t *testing.T) {
	save := func() []byte {
		p, _, _ := runApp(t, DefaultOptions())
		out := t.TempDir()
		paths, err := p.Save(out)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		data, err := os.ReadFile(paths[0])
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		return data
	}
	if !bytes.Equal(save(), save()) {
		t.Fatal("two runs with one seed produced different images")
	}
}

func TestSaveIsAllOrNothing(t *testing.T) {
	p, err := New(&Config{Seed: 1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.AddTarget(libModule("Good"), nil, ""); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	bad := libModule("Bad")
	md := bad.Types[0].Methods[0]
	md.Body.Instructions = append([]*module.Instruction{
		module.NewInstruction(module.OpBr, module.NewInstruction(module.OpNop, nil)),
	}, md.Body.Instructions...)
	if _, err := p.AddTarget(bad, nil, ""); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}

	out := t.TempDir()
	if _, err := p.Save(out); err == nil {
		t.Fatal("Save succeeded with a dangling branch")
	}
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("output holds %d entries after a failed save", len(entries))
	}
}

func TestSaveRejectsClashingFileNames(t *testing.T) {
	p, err := New(&Config{Seed: 1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.AddTarget(libModule("One"), nil, "a/Same.ilm"); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	if _, err := p.AddTarget(libModule("Two"), nil, "b/Same.ilm"); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	out := t.TempDir()
	if _, err := p.Save(out); err == nil || !strings.Contains(err.Error(), "Same.ilm") {
		t.Fatalf("Save: %v", err)
	}
	if entries, _ := os.ReadDir(out); len(entries) != 0 {
		t.Fatalf("output holds %d entries", len(entries))
	}
}
