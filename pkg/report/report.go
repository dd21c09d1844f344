// Package report renders the audit of a rename pass: for every module,
// which symbols were renamed and which were left alone.
package report

import (
	"bufio"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/shroud/pkg/skip"
)

// Entry is the outcome for one symbol. New is empty when the symbol kept
// its name.
type Entry struct {
	Kind  skip.Kind
	Owner string // original name of the declaring type, members only
	Old   string
	New   string
}

// Renamed reports whether the symbol received a new name.
func (e Entry) Renamed() bool { return e.New != "" }

// Subject is the symbol's original qualified name.
func (e Entry) Subject() string {
	if e.Owner == "" {
		return e.Old
	}
	return e.Owner + "::" + e.Old
}

// String renders "old -> new", or the bare original name when skipped.
func (e Entry) String() string {
	if !e.Renamed() {
		return e.Subject()
	}
	return e.Subject() + " -> " + e.New
}

// Module collects the entries of one module in processing order.
type Module struct {
	Name    string
	Entries []Entry
}

// Add appends e.
func (m *Module) Add(e Entry) { m.Entries = append(m.Entries, e) }

// Filter returns the entries of kind k with the given outcome.
func (m *Module) Filter(k skip.Kind, renamed bool) []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if e.Kind == k && e.Renamed() == renamed {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the entry for the symbol with the given qualified
// original name.
func (m *Module) Find(k skip.Kind, subject string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Kind == k && e.Subject() == subject {
			return e, true
		}
	}
	return Entry{}, false
}

// Report is the audit of a whole project.
type Report struct {
	Modules []*Module
}

// Counts totals the outcomes across modules.
type Counts struct {
	Renamed int
	Skipped int
}

func (r *Report) Counts() Counts {
	var c Counts
	for _, m := range r.Modules {
		for _, e := range m.Entries {
			if e.Renamed() {
				c.Renamed++
			} else {
				c.Skipped++
			}
		}
	}
	return c
}

var kindOrder = []skip.Kind{skip.KindNamespace, skip.KindType, skip.KindMethod, skip.KindField, skip.KindProperty}

var kindPlural = map[skip.Kind]string{
	skip.KindNamespace: "namespaces",
	skip.KindType:      "types",
	skip.KindMethod:    "methods",
	skip.KindField:     "fields",
	skip.KindProperty:  "properties",
}

// WriteText writes the hierarchical text audit: module, then skipped and
// renamed sections, then one block per symbol kind.
func (r *Report) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i, m := range r.Modules {
		if i > 0 {
			bw.WriteByte('\n')
		}
		fmt.Fprintf(bw, "Module %s\n", m.Name)
		for _, renamed := range []bool{false, true} {
			label := "Skipped"
			if renamed {
				label = "Renamed"
			}
			fmt.Fprintf(bw, "  %s\n", label)
			for _, k := range kindOrder {
				entries := m.Filter(k, renamed)
				fmt.Fprintf(bw, "    %s (%d)\n", kindPlural[k], len(entries))
				for _, e := range entries {
					fmt.Fprintf(bw, "      %s\n", e)
				}
			}
		}
	}
	return bw.Flush()
}

type yamlEntry struct {
	Name string `yaml:"name"`
	New  string `yaml:"new,omitempty"`
}

type yamlSection map[string][]yamlEntry

type yamlModule struct {
	Module  string      `yaml:"module"`
	Renamed yamlSection `yaml:"renamed"`
	Skipped yamlSection `yaml:"skipped"`
}

// YAML renders the audit as a YAML document.
func (r *Report) YAML() ([]byte, error) {
	var doc []yamlModule
	for _, m := range r.Modules {
		ym := yamlModule{Module: m.Name, Renamed: yamlSection{}, Skipped: yamlSection{}}
		for _, e := range m.Entries {
			section := ym.Skipped
			if e.Renamed() {
				section = ym.Renamed
			}
			key := kindPlural[e.Kind]
			section[key] = append(section[key], yamlEntry{Name: e.Subject(), New: e.New})
		}
		doc = append(doc, ym)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("report yaml: %w", err)
	}
	return out, nil
}
