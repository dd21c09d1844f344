package report

import (
	"bytes"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/shroud/pkg/skip"
)

func sampleReport() *Report {
	m := &Module{Name: "App"}
	m.Add(Entry{Kind: skip.KindNamespace, Old: "Acme", New: "a"})
	m.Add(Entry{Kind: skip.KindType, Old: "Acme.Widget", New: "a"})
	m.Add(Entry{Kind: skip.KindMethod, Owner: "Acme.Widget", Old: "Run", New: "b"})
	m.Add(Entry{Kind: skip.KindMethod, Owner: "Acme.Widget", Old: ".ctor"})
	m.Add(Entry{Kind: skip.KindField, Owner: "Acme.Widget", Old: "count"})
	return &Report{Modules: []*Module{m}}
}

func TestEntryString(t *testing.T) {
	e := Entry{Kind: skip.KindMethod, Owner: "Acme.Widget", Old: "Run", New: "b"}
	if got := e.String(); got != "Acme.Widget::Run -> b" {
		t.Fatalf("String = %q", got)
	}
	e.New = ""
	if got := e.String(); got != "Acme.Widget::Run" {
		t.Fatalf("skipped String = %q", got)
	}
}

func TestWriteTextGroupsByOutcomeAndKind(t *testing.T) {
	var buf bytes.Buffer
	if err := sampleReport().WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	skipped := strings.Index(out, "  Skipped\n")
	renamed := strings.Index(out, "  Renamed\n")
	if skipped < 0 || renamed < 0 || skipped > renamed {
		t.Fatalf("missing or misordered sections:\n%s", out)
	}
	for _, want := range []string{
		"Module App\n",
		"    methods (1)\n      Acme.Widget::.ctor\n",
		"    fields (1)\n      Acme.Widget::count\n",
		"      Acme.Widget::Run -> b\n",
		"      Acme -> a\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("text report missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Acme.Widget::.ctor") > renamed {
		t.Fatalf("skipped constructor listed under renamed:\n%s", out)
	}
}

func TestCounts(t *testing.T) {
	c := sampleReport().Counts()
	if c.Renamed != 3 || c.Skipped != 2 {
		t.Fatalf("Counts = %+v, want 3 renamed 2 skipped", c)
	}
}

func TestYAML(t *testing.T) {
	data, err := sampleReport().YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	var doc []struct {
		Module  string                         `yaml:"module"`
		Renamed map[string][]map[string]string `yaml:"renamed"`
		Skipped map[string][]map[string]string `yaml:"skipped"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if len(doc) != 1 || doc[0].Module != "App" {
		t.Fatalf("doc = %+v", doc)
	}
	if got := doc[0].Renamed["methods"][0]["new"]; got != "b" {
		t.Fatalf("renamed method new = %q, want b", got)
	}
	if got := doc[0].Skipped["fields"][0]["name"]; got != "Acme.Widget::count" {
		t.Fatalf("skipped field = %q", got)
	}
}
