package skip

import "testing"

func widgetSymbols() map[Kind]Symbol {
	return map[Kind]Symbol{
		KindNamespace: {Namespace: "Acme.Core"},
		KindType:      {Namespace: "Acme.Core", Type: "Acme.Core.Widget", TypeName: "Widget", Name: "Widget"},
		KindMethod:    {Namespace: "Acme.Core", Type: "Acme.Core.Widget", TypeName: "Widget", Name: "Run"},
		KindField:     {Namespace: "Acme.Core", Type: "Acme.Core.Widget", TypeName: "Widget", Name: "count"},
		KindProperty:  {Namespace: "Acme.Core", Type: "Acme.Core.Widget", TypeName: "Widget", Name: "Size"},
	}
}

func TestPatternIsFullMatch(t *testing.T) {
	p := MustCompile("Acme")
	if p.Match("Acme.Core") {
		t.Fatalf("pattern Acme matched Acme.Core, want full-text match only")
	}
	if !p.Match("Acme") {
		t.Fatalf("pattern Acme did not match Acme")
	}
	if !MustCompile(`Acme\..*`).Match("Acme.Core") {
		t.Fatalf(`pattern Acme\..* did not match Acme.Core`)
	}
}

func TestCompileRejectsMalformedPattern(t *testing.T) {
	if _, err := Compile("Acme(["); err == nil {
		t.Fatalf("Compile succeeded on malformed pattern")
	}
}

func TestNamespaceRulePropagation(t *testing.T) {
	syms := widgetSymbols()

	plain := NewRules(NamespaceRule{Name: MustCompile("Acme.Core")})
	if !plain.Skip(KindNamespace, syms[KindNamespace]) {
		t.Fatalf("namespace rule did not skip its namespace")
	}
	for _, k := range []Kind{KindType, KindMethod, KindField, KindProperty} {
		if plain.Skip(k, syms[k]) {
			t.Fatalf("namespace rule without propagation skipped %s", k)
		}
	}

	contained := NewRules(NamespaceRule{Name: MustCompile("Acme.Core"), Types: true, Methods: true, Fields: true, Properties: true})
	for k, sym := range syms {
		if !contained.Skip(k, sym) {
			t.Fatalf("namespace rule with propagation did not skip %s", k)
		}
	}
}

func TestTypeRule(t *testing.T) {
	syms := widgetSymbols()
	rules := NewRules(TypeRule{Name: MustCompile("Widget"), Fields: true})

	if !rules.Skip(KindType, syms[KindType]) {
		t.Fatalf("type rule on simple name did not skip type")
	}
	if !rules.Skip(KindField, syms[KindField]) {
		t.Fatalf("type rule with Fields did not skip field")
	}
	if rules.Skip(KindMethod, syms[KindMethod]) {
		t.Fatalf("type rule without Methods skipped method")
	}
	if rules.Skip(KindNamespace, syms[KindNamespace]) {
		t.Fatalf("type rule skipped namespace")
	}

	full := NewRules(TypeRule{Name: MustCompile(`Acme\.Core\.Widget`)})
	if !full.Skip(KindType, syms[KindType]) {
		t.Fatalf("type rule on full name did not skip type")
	}
}

func TestMemberRule(t *testing.T) {
	syms := widgetSymbols()
	rules := NewRules(
		MemberRule{Kind: KindMethod, Type: MustCompile(`Acme\.Core\..*`), Name: MustCompile("Run")},
		MemberRule{Kind: KindProperty, Name: MustCompile("Si.*")},
	)
	if !rules.Skip(KindMethod, syms[KindMethod]) {
		t.Fatalf("method rule did not skip Run")
	}
	if !rules.Skip(KindProperty, syms[KindProperty]) {
		t.Fatalf("property rule with empty type pattern did not skip Size")
	}
	if rules.Skip(KindField, syms[KindField]) {
		t.Fatalf("method and property rules skipped a field")
	}
	other := syms[KindMethod]
	other.Type = "Other.Widget"
	if rules.Skip(KindMethod, other) {
		t.Fatalf("method rule matched a method of another type")
	}
}

func TestNilRulesSkipNothing(t *testing.T) {
	var rules *Rules
	if rules.Skip(KindType, Symbol{Type: "A"}) {
		t.Fatalf("nil rules skipped a type")
	}
	if rules.Len() != 0 {
		t.Fatalf("nil rules Len = %d, want 0", rules.Len())
	}
}
