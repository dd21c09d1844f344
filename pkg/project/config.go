package project

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/odvcencio/shroud/pkg/names"
	"github.com/odvcencio/shroud/pkg/skip"
	"github.com/odvcencio/shroud/pkg/symbols"
)

// DefaultDescriptor is the descriptor file name looked up when none is
// given.
const DefaultDescriptor = "shroud.toml"

// Options select the passes and their policies.
type Options struct {
	Rename        bool
	HideConstants bool
	ScrambleFlow  bool
	NamePolicy    names.Policy
	OverrideMatch symbols.MatchMode
	Alphabet      string
	// HideStringsIgnoreSkips extracts string literals even from methods a
	// skip rule excludes.
	HideStringsIgnoreSkips bool
}

// DefaultOptions enables every pass with dense naming.
func DefaultOptions() Options {
	return Options{Rename: true, HideConstants: true, ScrambleFlow: true}
}

// ModuleConfig is one module to obfuscate.
type ModuleConfig struct {
	File  string
	Rules *skip.Rules
}

// Config is a loaded project descriptor with paths made absolute and
// skip patterns compiled.
type Config struct {
	Output      string
	SearchPaths []string
	Seed        uint64
	Options     Options
	Modules     []ModuleConfig
}

// ----------------------------------------------------------------------------
// Descriptor documents

// Descriptor is the on-disk project document.
type Descriptor struct {
	Output      string             `toml:"output" yaml:"output"`
	SearchPaths []string           `toml:"search_paths,omitempty" yaml:"search_paths,omitempty"`
	Seed        int64              `toml:"seed,omitempty" yaml:"seed,omitempty"`
	Options     OptionsDoc         `toml:"options" yaml:"options"`
	Modules     []ModuleDescriptor `toml:"module" yaml:"modules"`
}

// OptionsDoc mirrors Options; unset switches take their defaults.
type OptionsDoc struct {
	Rename                 *bool  `toml:"rename,omitempty" yaml:"rename,omitempty"`
	HideConstants          *bool  `toml:"hide_constants,omitempty" yaml:"hide_constants,omitempty"`
	ScrambleFlow           *bool  `toml:"scramble_flow,omitempty" yaml:"scramble_flow,omitempty"`
	NamePolicy             string `toml:"name_policy,omitempty" yaml:"name_policy,omitempty"`
	OverrideMatch          string `toml:"override_match,omitempty" yaml:"override_match,omitempty"`
	Alphabet               string `toml:"alphabet,omitempty" yaml:"alphabet,omitempty"`
	HideStringsIgnoreSkips bool   `toml:"hide_strings_ignore_skips,omitempty" yaml:"hide_strings_ignore_skips,omitempty"`
}

// ModuleDescriptor names a module file and its skip rules.
type ModuleDescriptor struct {
	File          string             `toml:"file" yaml:"file"`
	SkipNamespace []NamespaceRuleDoc `toml:"skip_namespace,omitempty" yaml:"skip_namespace,omitempty"`
	SkipType      []TypeRuleDoc      `toml:"skip_type,omitempty" yaml:"skip_type,omitempty"`
	SkipMethod    []MemberRuleDoc    `toml:"skip_method,omitempty" yaml:"skip_method,omitempty"`
	SkipField     []MemberRuleDoc    `toml:"skip_field,omitempty" yaml:"skip_field,omitempty"`
	SkipProperty  []MemberRuleDoc    `toml:"skip_property,omitempty" yaml:"skip_property,omitempty"`
}

type NamespaceRuleDoc struct {
	Name           string `toml:"name" yaml:"name"`
	SkipTypes      bool   `toml:"skip_types,omitempty" yaml:"skip_types,omitempty"`
	SkipMethods    bool   `toml:"skip_methods,omitempty" yaml:"skip_methods,omitempty"`
	SkipFields     bool   `toml:"skip_fields,omitempty" yaml:"skip_fields,omitempty"`
	SkipProperties bool   `toml:"skip_properties,omitempty" yaml:"skip_properties,omitempty"`
	// SkipContained sets all four flags above.
	SkipContained bool `toml:"skip_contained,omitempty" yaml:"skip_contained,omitempty"`
}

type TypeRuleDoc struct {
	Name           string `toml:"name" yaml:"name"`
	SkipMethods    bool   `toml:"skip_methods,omitempty" yaml:"skip_methods,omitempty"`
	SkipFields     bool   `toml:"skip_fields,omitempty" yaml:"skip_fields,omitempty"`
	SkipProperties bool   `toml:"skip_properties,omitempty" yaml:"skip_properties,omitempty"`
}

type MemberRuleDoc struct {
	Type string `toml:"type,omitempty" yaml:"type,omitempty"`
	Name string `toml:"name,omitempty" yaml:"name,omitempty"`
}

// Legacy XML layout:
//
//	<Obfuscator>
//	  <Module file="App.ilm">
//	    <SkipNamespace name="App.Api" SkipTypes="true"/>
//	    <SkipType name="Program" skipMethods="true"/>
//	    <SkipMethod type="App.Program" name="Main"/>
//	  </Module>
//	  <OutputFolder>out</OutputFolder>
//	</Obfuscator>
type xmlDescriptor struct {
	XMLName xml.Name    `xml:"Obfuscator"`
	Modules []xmlModule `xml:"Module"`
	Output  string      `xml:"OutputFolder"`
}

type xmlModule struct {
	File          string `xml:"file,attr"`
	SkipNamespace []struct {
		Name      string `xml:"name,attr"`
		SkipTypes bool   `xml:"SkipTypes,attr"`
	} `xml:"SkipNamespace"`
	SkipType []struct {
		Name           string `xml:"name,attr"`
		SkipMethods    bool   `xml:"skipMethods,attr"`
		SkipFields     bool   `xml:"skipFields,attr"`
		SkipProperties bool   `xml:"skipProperties,attr"`
	} `xml:"SkipType"`
	SkipMethod   []xmlMemberRule `xml:"SkipMethod"`
	SkipField    []xmlMemberRule `xml:"SkipField"`
	SkipProperty []xmlMemberRule `xml:"SkipProperty"`
}

type xmlMemberRule struct {
	Type string `xml:"type,attr"`
	Name string `xml:"name,attr"`
}

func (x *xmlDescriptor) descriptor() *Descriptor {
	d := &Descriptor{Output: strings.TrimSpace(x.Output)}
	for _, xm := range x.Modules {
		md := ModuleDescriptor{File: xm.File}
		for _, r := range xm.SkipNamespace {
			md.SkipNamespace = append(md.SkipNamespace, NamespaceRuleDoc{Name: r.Name, SkipContained: r.SkipTypes})
		}
		for _, r := range xm.SkipType {
			md.SkipType = append(md.SkipType, TypeRuleDoc{Name: r.Name, SkipMethods: r.SkipMethods, SkipFields: r.SkipFields, SkipProperties: r.SkipProperties})
		}
		for _, r := range xm.SkipMethod {
			md.SkipMethod = append(md.SkipMethod, MemberRuleDoc(r))
		}
		for _, r := range xm.SkipField {
			md.SkipField = append(md.SkipField, MemberRuleDoc(r))
		}
		for _, r := range xm.SkipProperty {
			md.SkipProperty = append(md.SkipProperty, MemberRuleDoc(r))
		}
		d.Modules = append(d.Modules, md)
	}
	return d
}

// ----------------------------------------------------------------------------
// Loading

// ParseDescriptor reads a descriptor; the format follows the extension:
// .toml, .yaml/.yml or .xml.
func ParseDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	var d Descriptor
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &d); err != nil {
			return nil, fmt.Errorf("parse descriptor %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("parse descriptor %s: %w", path, err)
		}
	case ".xml":
		var x xmlDescriptor
		if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&x); err != nil {
			return nil, fmt.Errorf("parse descriptor %s: %w", path, err)
		}
		d = *x.descriptor()
	default:
		return nil, fmt.Errorf("parse descriptor %s: unsupported extension (want .toml, .yaml or .xml)", path)
	}
	return &d, nil
}

// LoadConfig parses the descriptor at path and resolves it against the
// descriptor's directory.
func LoadConfig(path string) (*Config, error) {
	d, err := ParseDescriptor(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return d.Config(filepath.Dir(abs))
}

// Config validates d and resolves relative paths against dir. Malformed
// skip patterns and unknown policies are errors.
func (d *Descriptor) Config(dir string) (*Config, error) {
	cfg := &Config{
		Output: resolvePath(dir, d.Output),
		Seed:   uint64(d.Seed),
	}
	if cfg.Output == "" {
		cfg.Output = filepath.Join(dir, "obfuscated")
	}
	for _, sp := range d.SearchPaths {
		cfg.SearchPaths = append(cfg.SearchPaths, resolvePath(dir, sp))
	}

	opts, err := d.Options.options()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Options = opts

	if len(d.Modules) == 0 {
		return nil, fmt.Errorf("config: %w", ErrNoModules)
	}
	for i, md := range d.Modules {
		if strings.TrimSpace(md.File) == "" {
			return nil, fmt.Errorf("config: module %d: missing file", i)
		}
		rules, err := md.rules()
		if err != nil {
			return nil, fmt.Errorf("config: module %s: %w", md.File, err)
		}
		cfg.Modules = append(cfg.Modules, ModuleConfig{File: resolvePath(dir, md.File), Rules: rules})
	}
	return cfg, nil
}

func (o OptionsDoc) options() (Options, error) {
	opts := DefaultOptions()
	if o.Rename != nil {
		opts.Rename = *o.Rename
	}
	if o.HideConstants != nil {
		opts.HideConstants = *o.HideConstants
	}
	if o.ScrambleFlow != nil {
		opts.ScrambleFlow = *o.ScrambleFlow
	}
	policy, err := names.ParsePolicy(o.NamePolicy)
	if err != nil {
		return opts, err
	}
	opts.NamePolicy = policy
	match, err := symbols.ParseMatchMode(o.OverrideMatch)
	if err != nil {
		return opts, err
	}
	opts.OverrideMatch = match
	if _, err := names.Alphabet(o.Alphabet); err != nil {
		return opts, err
	}
	opts.Alphabet = o.Alphabet
	opts.HideStringsIgnoreSkips = o.HideStringsIgnoreSkips
	return opts, nil
}

func (md ModuleDescriptor) rules() (*skip.Rules, error) {
	rules := skip.NewRules()
	for i, r := range md.SkipNamespace {
		p, err := skip.Compile(r.Name)
		if err != nil {
			return nil, fmt.Errorf("skip_namespace %d: %w", i, err)
		}
		rules.Add(skip.NamespaceRule{
			Name:       p,
			Types:      r.SkipTypes || r.SkipContained,
			Methods:    r.SkipMethods || r.SkipContained,
			Fields:     r.SkipFields || r.SkipContained,
			Properties: r.SkipProperties || r.SkipContained,
		})
	}
	for i, r := range md.SkipType {
		p, err := skip.Compile(r.Name)
		if err != nil {
			return nil, fmt.Errorf("skip_type %d: %w", i, err)
		}
		rules.Add(skip.TypeRule{Name: p, Methods: r.SkipMethods, Fields: r.SkipFields, Properties: r.SkipProperties})
	}
	members := []struct {
		label string
		kind  skip.Kind
		docs  []MemberRuleDoc
	}{
		{"skip_method", skip.KindMethod, md.SkipMethod},
		{"skip_field", skip.KindField, md.SkipField},
		{"skip_property", skip.KindProperty, md.SkipProperty},
	}
	for _, group := range members {
		for i, r := range group.docs {
			tp, err := skip.Compile(r.Type)
			if err != nil {
				return nil, fmt.Errorf("%s %d type: %w", group.label, i, err)
			}
			np, err := skip.Compile(r.Name)
			if err != nil {
				return nil, fmt.Errorf("%s %d name: %w", group.label, i, err)
			}
			rules.Add(skip.MemberRule{Kind: group.kind, Type: tp, Name: np})
		}
	}
	return rules, nil
}

// WriteTOML encodes d as a TOML descriptor.
func (d *Descriptor) WriteTOML(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(d); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return nil
}

func resolvePath(dir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
