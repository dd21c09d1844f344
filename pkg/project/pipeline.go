package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/odvcencio/shroud/pkg/flow"
	"github.com/odvcencio/shroud/pkg/hide"
	"github.com/odvcencio/shroud/pkg/module"
	"github.com/odvcencio/shroud/pkg/report"
	"github.com/odvcencio/shroud/pkg/symbols"
)

// Result is what one run produced.
type Result struct {
	Report    *report.Report
	Scrambled int
	Hidden    []*hide.Result
}

// Run resolves the project and applies the enabled passes: renaming, then
// flow scrambling, then constant hiding.
func (p *Project) Run() (*Result, error) {
	p.Resolve()
	res := &Result{Report: &report.Report{}}
	opts := p.cfg.Options
	if opts.Rename {
		res.Report = p.RunRules()
	}
	if opts.ScrambleFlow {
		res.Scrambled = p.ScrambleFlow()
	}
	if opts.HideConstants {
		hidden, err := p.HideConstants()
		if err != nil {
			return nil, err
		}
		res.Hidden = hidden
	}
	return res, nil
}

// RunRules renames every target module and collects the audit.
func (p *Project) RunRules() *report.Report {
	rep := &report.Report{}
	for _, t := range p.targets {
		rep.Modules = append(rep.Modules, t.RunRules())
	}
	return rep
}

// ScrambleFlow wraps the body of every renamed method in a switch dispatch
// and returns how many were wrapped.
func (p *Project) ScrambleFlow() int {
	s := flow.New(p.rng)
	n := 0
	for _, t := range p.targets {
		for _, m := range t.Methods() {
			if m.Renamed() && s.Scramble(m.Def()) {
				n++
			}
		}
	}
	return n
}

// HideConstants runs the constant hider over every target module. Methods
// a skip rule excludes keep their literals unless string hiding is told to
// ignore skips.
func (p *Project) HideConstants() ([]*hide.Result, error) {
	var out []*hide.Result
	for _, t := range p.targets {
		keep := eligible(t)
		opts := hide.Options{
			Names:   p.opts.Names,
			Rand:    p.entropy,
			Strings: keep,
			Numbers: keep,
		}
		if p.cfg.Options.HideStringsIgnoreSkips {
			opts.Strings = nil
		}
		res, err := hide.New(t.Def(), opts).Run()
		if err != nil {
			return nil, fmt.Errorf("hide constants: %w", err)
		}
		out = append(out, res)
	}
	return out, nil
}

func eligible(t *symbols.Module) func(*module.MethodDef) bool {
	return func(md *module.MethodDef) bool { return !t.SkipsMethod(md) }
}

// Save writes every target module into dir under its original file name,
// each with a fresh MVID, and returns the written paths. All images are
// encoded and staged before the first one is moved into place, so an
// encoding or write failure leaves dir untouched.
func (p *Project) Save(dir string) ([]string, error) {
	type staged struct{ tmp, path string }
	var files []staged
	cleanup := func() {
		for _, f := range files {
			os.Remove(f.tmp)
		}
	}

	seen := make(map[string]bool)
	for _, t := range p.targets {
		m := t.Def()
		name := filepath.Base(p.files[m])
		if seen[name] {
			cleanup()
			return nil, fmt.Errorf("save: two modules map to %s", name)
		}
		seen[name] = true

		id, err := uuid.NewRandomFromReader(p.entropy)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("save %s: mvid: %w", m.Name, err)
		}
		m.MVID = id

		path := filepath.Join(dir, name)
		data, err := module.Marshal(m, module.Compressed(path))
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("save %s: %w", m.Name, err)
		}
		tmp, err := module.StageFile(path, data)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("save %s: %w", m.Name, err)
		}
		files = append(files, staged{tmp: tmp, path: path})
	}

	var written []string
	for i, f := range files {
		if err := os.Rename(f.tmp, f.path); err != nil {
			for _, rest := range files[i:] {
				os.Remove(rest.tmp)
			}
			return written, fmt.Errorf("save %s: %w", f.path, err)
		}
		written = append(written, f.path)
	}
	return written, nil
}
