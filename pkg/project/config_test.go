package project

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/shroud/pkg/names"
	"github.com/odvcencio/shroud/pkg/skip"
	"github.com/odvcencio/shroud/pkg/symbols"
)

func writeDescriptor(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	return path
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeDescriptor(t, "shroud.toml", `
output = "out"
seed = 7
search_paths = ["lib"]

[options]
scramble_flow = false
name_policy = "consume"
override_match = "signature"

[[module]]
file = "App.ilm"

[[module.skip_namespace]]
name = 'App\.Api'
skip_contained = true

[[module.skip_method]]
type = 'App\.Program'
name = "Main"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	dir := filepath.Dir(path)
	if cfg.Output != filepath.Join(dir, "out") {
		t.Fatalf("output = %q", cfg.Output)
	}
	if len(cfg.SearchPaths) != 1 || cfg.SearchPaths[0] != filepath.Join(dir, "lib") {
		t.Fatalf("search paths = %v", cfg.SearchPaths)
	}
	if cfg.Seed != 7 {
		t.Fatalf("seed = %d", cfg.Seed)
	}
	opts := cfg.Options
	if !opts.Rename || !opts.HideConstants || opts.ScrambleFlow {
		t.Fatalf("passes = %+v, want rename and hide only", opts)
	}
	if opts.NamePolicy != names.ConsumeOnSkip || opts.OverrideMatch != symbols.MatchSignature {
		t.Fatalf("policies = %s, %s", opts.NamePolicy, opts.OverrideMatch)
	}
	if len(cfg.Modules) != 1 || cfg.Modules[0].File != filepath.Join(dir, "App.ilm") {
		t.Fatalf("modules = %+v", cfg.Modules)
	}

	rules := cfg.Modules[0].Rules
	if rules.Len() != 2 {
		t.Fatalf("rules = %d, want 2", rules.Len())
	}
	if !rules.Skip(skip.KindMethod, skip.Symbol{Type: "App.Program", TypeName: "Program", Name: "Main"}) {
		t.Fatal("App.Program::Main not skipped")
	}
	if rules.Skip(skip.KindMethod, skip.Symbol{Type: "App.Program", TypeName: "Program", Name: "Mainly"}) {
		t.Fatal("member pattern matched a longer name")
	}
	if !rules.Skip(skip.KindField, skip.Symbol{Namespace: "App.Api", Type: "App.Api.Endpoint", Name: "x"}) {
		t.Fatal("skip_contained did not reach fields")
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeDescriptor(t, "shroud.yaml", `
modules:
  - file: bin/App.ilm
    skip_type:
      - name: Program
        skip_methods: true
options:
  hide_constants: false
  hide_strings_ignore_skips: true
  alphabet: xyz
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	dir := filepath.Dir(path)
	if cfg.Output != filepath.Join(dir, "obfuscated") {
		t.Fatalf("default output = %q", cfg.Output)
	}
	if cfg.Seed != 0 {
		t.Fatalf("seed = %d, want 0", cfg.Seed)
	}
	if cfg.Options.HideConstants || !cfg.Options.HideStringsIgnoreSkips || cfg.Options.Alphabet != "xyz" {
		t.Fatalf("options = %+v", cfg.Options)
	}
	if cfg.Modules[0].File != filepath.Join(dir, "bin", "App.ilm") {
		t.Fatalf("module file = %q", cfg.Modules[0].File)
	}
	rules := cfg.Modules[0].Rules
	sym := skip.Symbol{Namespace: "App", Type: "App.Program", TypeName: "Program", Name: "Run"}
	if !rules.Skip(skip.KindType, sym) || !rules.Skip(skip.KindMethod, sym) {
		t.Fatal("simple type name did not match")
	}
	if rules.Skip(skip.KindField, sym) {
		t.Fatal("type rule skipped fields without skip_fields")
	}
}

func TestLoadConfigXML(t *testing.T) {
	path := writeDescriptor(t, "obfuscator.xml", `<?xml version="1.0"?>
<Obfuscator>
  <Module file="App.ilm">
    <SkipNamespace name="App.Api" SkipTypes="true"/>
    <SkipType name="Program" skipFields="true"/>
    <SkipField type="App.Settings" name="Secret.*"/>
  </Module>
  <OutputFolder> build </OutputFolder>
</Obfuscator>
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Output != filepath.Join(filepath.Dir(path), "build") {
		t.Fatalf("output = %q", cfg.Output)
	}
	if !cfg.Options.Rename || !cfg.Options.HideConstants || !cfg.Options.ScrambleFlow {
		t.Fatalf("XML descriptor did not take default passes: %+v", cfg.Options)
	}
	rules := cfg.Modules[0].Rules
	if rules.Len() != 3 {
		t.Fatalf("rules = %d, want 3", rules.Len())
	}
	if !rules.Skip(skip.KindMethod, skip.Symbol{Namespace: "App.Api", Type: "App.Api.X", Name: "M"}) {
		t.Fatal("SkipTypes did not extend to members")
	}
	if !rules.Skip(skip.KindField, skip.Symbol{Type: "App.Settings", TypeName: "Settings", Name: "SecretKey"}) {
		t.Fatal("field pattern did not match")
	}
	if rules.Skip(skip.KindField, skip.Symbol{Type: "App.SettingsStore", TypeName: "SettingsStore", Name: "SecretKey"}) {
		t.Fatal("type pattern matched as a substring")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	cases := []struct {
		name, file, body, want string
	}{
		{"bad pattern", "a.toml", "[[module]]\nfile = \"A.ilm\"\n[[module.skip_method]]\nname = \"([\"\n", "skip_method 0 name"},
		{"bad policy", "b.toml", "[options]\nname_policy = \"sparse\"\n[[module]]\nfile = \"A.ilm\"\n", "unknown policy"},
		{"bad alphabet", "c.toml", "[options]\nalphabet = \"a1\"\n[[module]]\nfile = \"A.ilm\"\n", "not a letter"},
		{"missing file", "d.yaml", "modules:\n  - skip_type: []\n", "missing file"},
		{"extension", "e.json", "{}", "unsupported extension"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeDescriptor(t, tc.file, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}

	_, err := LoadConfig(writeDescriptor(t, "empty.toml", "output = \"x\"\n"))
	if !errors.Is(err, ErrNoModules) {
		t.Fatalf("empty descriptor: %v, want ErrNoModules", err)
	}
}

func TestWriteTOMLLoadsBack(t *testing.T) {
	off := false
	d := &Descriptor{
		Output: "out",
		Seed:   99,
		Options: OptionsDoc{
			ScrambleFlow: &off,
			NamePolicy:   "consume",
		},
		Modules: []ModuleDescriptor{{
			File:       "App.ilm",
			SkipMethod: []MemberRuleDoc{{Type: `App\.Program`, Name: "Main"}},
		}},
	}
	var buf bytes.Buffer
	if err := d.WriteTOML(&buf); err != nil {
		t.Fatalf("WriteTOML: %v", err)
	}
	path := writeDescriptor(t, DefaultDescriptor, buf.String())
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v\n%s", err, buf.String())
	}
	if cfg.Seed != 99 || cfg.Options.ScrambleFlow || cfg.Options.NamePolicy != names.ConsumeOnSkip {
		t.Fatalf("config = %+v", cfg)
	}
	if !cfg.Modules[0].Rules.Skip(skip.KindMethod, skip.Symbol{Type: "App.Program", Name: "Main"}) {
		t.Fatal("written skip rule lost")
	}
}
