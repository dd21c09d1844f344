package module

import (
	"encoding/base64"
	"fmt"
	"math"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// formatVersion is written into every encoded module.
const formatVersion = 1

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

type moduleDoc struct {
	Format      int           `yaml:"format"`
	Name        string        `yaml:"name"`
	Version     string        `yaml:"version,omitempty"`
	MVID        string        `yaml:"mvid,omitempty"`
	CoreLibrary string        `yaml:"core_library,omitempty"`
	References  []string      `yaml:"references,omitempty"`
	EntryPoint  *methodRefDoc `yaml:"entry_point,omitempty"`
	Types       []*typeDoc    `yaml:"types"`
}

type typeRefDoc struct {
	Kind      string        `yaml:"kind,omitempty"`
	Scope     string        `yaml:"scope,omitempty"`
	Namespace string        `yaml:"namespace,omitempty"`
	Name      string        `yaml:"name,omitempty"`
	Element   *typeRefDoc   `yaml:"element,omitempty"`
	Args      []*typeRefDoc `yaml:"args,omitempty"`
	Index     int           `yaml:"index,omitempty"`
}

type methodRefDoc struct {
	DeclaringType *typeRefDoc   `yaml:"declaring_type,omitempty"`
	Name          string        `yaml:"name,omitempty"`
	HasThis       bool          `yaml:"has_this,omitempty"`
	Return        *typeRefDoc   `yaml:"return,omitempty"`
	Params        []*typeRefDoc `yaml:"params,omitempty"`
	GenericArity  int           `yaml:"generic_arity,omitempty"`
	Element       *methodRefDoc `yaml:"element,omitempty"`
	GenericArgs   []*typeRefDoc `yaml:"generic_args,omitempty"`
}

type fieldRefDoc struct {
	DeclaringType *typeRefDoc `yaml:"declaring_type"`
	Name          string      `yaml:"name"`
	Type          *typeRefDoc `yaml:"type"`
}

type attributeDoc struct {
	Constructor *methodRefDoc  `yaml:"constructor"`
	Args        []string       `yaml:"args,omitempty"`
	Fields      []*fieldRefDoc `yaml:"fields,omitempty"`
	Properties  []*fieldRefDoc `yaml:"properties,omitempty"`
}

type genericParamDoc struct {
	Name        string        `yaml:"name"`
	Constraints []*typeRefDoc `yaml:"constraints,omitempty"`
}

type typeDoc struct {
	Namespace     string             `yaml:"namespace,omitempty"`
	Name          string             `yaml:"name"`
	Flags         []string           `yaml:"flags,omitempty"`
	Base          *typeRefDoc        `yaml:"base,omitempty"`
	Interfaces    []*typeRefDoc      `yaml:"interfaces,omitempty"`
	GenericParams []*genericParamDoc `yaml:"generic_params,omitempty"`
	Attributes    []*attributeDoc    `yaml:"attributes,omitempty"`
	Fields        []*fieldDoc        `yaml:"fields,omitempty"`
	Properties    []*propertyDoc     `yaml:"properties,omitempty"`
	Methods       []*methodDoc       `yaml:"methods,omitempty"`
}

type fieldDoc struct {
	Name         string          `yaml:"name"`
	Flags        []string        `yaml:"flags,omitempty"`
	Type         *typeRefDoc     `yaml:"type"`
	InitialValue string          `yaml:"initial_value,omitempty"`
	Attributes   []*attributeDoc `yaml:"attributes,omitempty"`
}

type propertyDoc struct {
	Name       string          `yaml:"name"`
	Type       *typeRefDoc     `yaml:"type"`
	Getter     *methodRefDoc   `yaml:"getter,omitempty"`
	Setter     *methodRefDoc   `yaml:"setter,omitempty"`
	Attributes []*attributeDoc `yaml:"attributes,omitempty"`
}

type methodDoc struct {
	Name          string             `yaml:"name"`
	Flags         []string           `yaml:"flags,omitempty"`
	Return        *typeRefDoc        `yaml:"return,omitempty"`
	Params        []*typeRefDoc      `yaml:"params,omitempty"`
	GenericParams []*genericParamDoc `yaml:"generic_params,omitempty"`
	Overrides     []*methodRefDoc    `yaml:"overrides,omitempty"`
	Attributes    []*attributeDoc    `yaml:"attributes,omitempty"`
	Body          *bodyDoc           `yaml:"body,omitempty"`
}

type bodyDoc struct {
	InitLocals bool              `yaml:"init_locals,omitempty"`
	MaxStack   int               `yaml:"max_stack"`
	Locals     []*typeRefDoc     `yaml:"locals,omitempty"`
	Code       []*instructionDoc `yaml:"code,omitempty"`
}

type instructionDoc struct {
	Op      string        `yaml:"op"`
	Int     *int64        `yaml:"int,omitempty"`
	Float   *float64      `yaml:"float,omitempty"`
	Bits    *uint64       `yaml:"bits,omitempty"`
	Str     *string       `yaml:"str,omitempty"`
	Type    *typeRefDoc   `yaml:"type,omitempty"`
	Method  *methodRefDoc `yaml:"method,omitempty"`
	Field   *fieldRefDoc  `yaml:"field,omitempty"`
	Target  *int          `yaml:"target,omitempty"`
	Targets []int         `yaml:"targets,omitempty"`
}

// ---------------------------------------------------------------------------
// Encode
// ---------------------------------------------------------------------------

// Encode serializes m to its YAML document form.
func Encode(m *Module) ([]byte, error) {
	doc := &moduleDoc{
		Format:      formatVersion,
		Name:        m.Name,
		Version:     m.Version,
		CoreLibrary: m.CoreLibrary,
		References:  m.References,
		EntryPoint:  encodeMethodRef(m.EntryPoint),
	}
	if m.MVID != uuid.Nil {
		doc.MVID = m.MVID.String()
	}
	for _, td := range m.Types {
		d, err := encodeType(td)
		if err != nil {
			return nil, fmt.Errorf("encode module %s: %w", m.Name, err)
		}
		doc.Types = append(doc.Types, d)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode module %s: %w", m.Name, err)
	}
	return out, nil
}

func encodeType(td *TypeDef) (*typeDoc, error) {
	d := &typeDoc{
		Namespace:     td.Namespace,
		Name:          td.Name,
		Flags:         flagsToNames(uint32(td.Flags), typeFlagNames),
		Base:          encodeTypeRef(td.BaseType),
		Interfaces:    encodeTypeRefs(td.Interfaces),
		GenericParams: encodeGenericParams(td.GenericParams),
		Attributes:    encodeAttributes(td.Attributes),
	}
	for _, f := range td.Fields {
		fd := &fieldDoc{
			Name:       f.Name,
			Flags:      flagsToNames(uint32(f.Flags), fieldFlagNames),
			Type:       encodeTypeRef(f.Type),
			Attributes: encodeAttributes(f.Attributes),
		}
		if len(f.InitialValue) > 0 {
			fd.InitialValue = base64.StdEncoding.EncodeToString(f.InitialValue)
		}
		d.Fields = append(d.Fields, fd)
	}
	for _, p := range td.Properties {
		d.Properties = append(d.Properties, &propertyDoc{
			Name:       p.Name,
			Type:       encodeTypeRef(p.Type),
			Getter:     encodeMethodRef(p.Getter),
			Setter:     encodeMethodRef(p.Setter),
			Attributes: encodeAttributes(p.Attributes),
		})
	}
	for _, m := range td.Methods {
		md := &methodDoc{
			Name:          m.Name,
			Flags:         flagsToNames(uint32(m.Flags), methodFlagNames),
			Return:        encodeTypeRef(m.ReturnType),
			Params:        encodeTypeRefs(m.Params),
			GenericParams: encodeGenericParams(m.GenericParams),
			Attributes:    encodeAttributes(m.Attributes),
		}
		for _, ov := range m.Overrides {
			md.Overrides = append(md.Overrides, encodeMethodRef(ov))
		}
		if m.Body != nil {
			bd, err := encodeBody(m.Body)
			if err != nil {
				return nil, fmt.Errorf("method %s: %w", m.FullName(), err)
			}
			md.Body = bd
		}
		d.Methods = append(d.Methods, md)
	}
	return d, nil
}

func encodeBody(b *Body) (*bodyDoc, error) {
	d := &bodyDoc{InitLocals: b.InitLocals, MaxStack: b.MaxStack, Locals: encodeTypeRefs(b.Locals)}
	index := make(map[*Instruction]int, len(b.Instructions))
	for i, ins := range b.Instructions {
		index[ins] = i
	}
	target := func(t *Instruction) (int, error) {
		i, ok := index[t]
		if !ok {
			return 0, fmt.Errorf("branch target outside body")
		}
		return i, nil
	}
	for i, ins := range b.Instructions {
		id := &instructionDoc{Op: ins.Op.String()}
		switch v := ins.Operand.(type) {
		case nil:
		case int8:
			n := int64(v)
			id.Int = &n
		case int32:
			n := int64(v)
			id.Int = &n
		case int64:
			id.Int = &v
		case int:
			n := int64(v)
			id.Int = &n
		case float32:
			if exactFloat(float64(v)) {
				f := float64(v)
				id.Float = &f
			} else {
				bits := uint64(math.Float32bits(v))
				id.Bits = &bits
			}
		case float64:
			if exactFloat(v) {
				id.Float = &v
			} else {
				bits := math.Float64bits(v)
				id.Bits = &bits
			}
		case string:
			id.Str = &v
		case *TypeRef:
			id.Type = encodeTypeRef(v)
		case *MethodRef:
			id.Method = encodeMethodRef(v)
		case *FieldRef:
			id.Field = encodeFieldRef(v.DeclaringType, v.Name, v.FieldType)
		case *Instruction:
			t, err := target(v)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			id.Target = &t
		case []*Instruction:
			for _, ti := range v {
				t, err := target(ti)
				if err != nil {
					return nil, fmt.Errorf("instruction %d: %w", i, err)
				}
				id.Targets = append(id.Targets, t)
			}
		default:
			return nil, fmt.Errorf("instruction %d: unsupported operand %T", i, v)
		}
		d.Code = append(d.Code, id)
	}
	return d, nil
}

func encodeTypeRef(t *TypeRef) *typeRefDoc {
	if t == nil {
		return nil
	}
	d := &typeRefDoc{
		Scope:     t.Scope,
		Namespace: t.Namespace,
		Name:      t.Name,
		Element:   encodeTypeRef(t.Element),
		Args:      encodeTypeRefs(t.Args),
		Index:     t.Index,
	}
	if t.Kind != KindNamed {
		d.Kind = t.Kind.String()
	}
	return d
}

func encodeTypeRefs(ts []*TypeRef) []*typeRefDoc {
	if len(ts) == 0 {
		return nil
	}
	out := make([]*typeRefDoc, len(ts))
	for i, t := range ts {
		out[i] = encodeTypeRef(t)
	}
	return out
}

func encodeMethodRef(m *MethodRef) *methodRefDoc {
	if m == nil {
		return nil
	}
	if m.Element != nil {
		return &methodRefDoc{Element: encodeMethodRef(m.Element), GenericArgs: encodeTypeRefs(m.GenericArgs)}
	}
	return &methodRefDoc{
		DeclaringType: encodeTypeRef(m.DeclaringType),
		Name:          m.Name,
		HasThis:       m.HasThis,
		Return:        encodeTypeRef(m.ReturnType),
		Params:        encodeTypeRefs(m.Params),
		GenericArity:  m.GenericArity,
	}
}

func encodeFieldRef(decl *TypeRef, name string, typ *TypeRef) *fieldRefDoc {
	return &fieldRefDoc{DeclaringType: encodeTypeRef(decl), Name: name, Type: encodeTypeRef(typ)}
}

func encodeGenericParams(gps []*GenericParam) []*genericParamDoc {
	var out []*genericParamDoc
	for _, gp := range gps {
		out = append(out, &genericParamDoc{Name: gp.Name, Constraints: encodeTypeRefs(gp.Constraints)})
	}
	return out
}

func encodeAttributes(attrs []*CustomAttribute) []*attributeDoc {
	var out []*attributeDoc
	for _, a := range attrs {
		d := &attributeDoc{Constructor: encodeMethodRef(a.Constructor), Args: a.Args}
		for _, f := range a.NamedFields {
			d.Fields = append(d.Fields, encodeFieldRef(f.DeclaringType, f.Name, f.FieldType))
		}
		for _, p := range a.NamedProperties {
			d.Properties = append(d.Properties, encodeFieldRef(p.DeclaringType, p.Name, p.PropertyType))
		}
		out = append(out, d)
	}
	return out
}

// ---------------------------------------------------------------------------
// Decode
// ---------------------------------------------------------------------------

// Decode parses a module from its YAML document form.
func Decode(data []byte) (*Module, error) {
	var doc moduleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode module: %w", err)
	}
	if doc.Format != formatVersion {
		return nil, fmt.Errorf("decode module: unsupported format %d", doc.Format)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("decode module: missing name")
	}
	m := &Module{
		Name:        doc.Name,
		Version:     doc.Version,
		CoreLibrary: doc.CoreLibrary,
		References:  doc.References,
		EntryPoint:  decodeMethodRef(doc.EntryPoint),
		index:       make(map[string]*TypeDef),
	}
	if m.CoreLibrary == "" {
		m.CoreLibrary = DefaultCoreLibrary
	}
	if doc.MVID != "" {
		id, err := uuid.Parse(doc.MVID)
		if err != nil {
			return nil, fmt.Errorf("decode module %s: mvid: %w", doc.Name, err)
		}
		m.MVID = id
	}
	for _, d := range doc.Types {
		td, err := decodeType(d)
		if err != nil {
			return nil, fmt.Errorf("decode module %s: %w", doc.Name, err)
		}
		m.AddType(td)
	}
	return m, nil
}

func decodeType(d *typeDoc) (*TypeDef, error) {
	flags, err := namesToFlags(d.Flags, typeFlagNames)
	if err != nil {
		return nil, fmt.Errorf("type %s: %w", qualify(d.Namespace, d.Name), err)
	}
	td := &TypeDef{
		Namespace:     d.Namespace,
		Name:          d.Name,
		Flags:         TypeAttributes(flags),
		BaseType:      decodeTypeRef(d.Base),
		Interfaces:    decodeTypeRefs(d.Interfaces),
		GenericParams: decodeGenericParams(d.GenericParams),
		Attributes:    decodeAttributes(d.Attributes),
	}
	for _, fd := range d.Fields {
		ff, err := namesToFlags(fd.Flags, fieldFlagNames)
		if err != nil {
			return nil, fmt.Errorf("field %s::%s: %w", td.FullName(), fd.Name, err)
		}
		f := td.AddField(fd.Name, decodeTypeRef(fd.Type), FieldAttributes(ff))
		f.Attributes = decodeAttributes(fd.Attributes)
		if fd.InitialValue != "" {
			raw, err := base64.StdEncoding.DecodeString(fd.InitialValue)
			if err != nil {
				return nil, fmt.Errorf("field %s::%s: initial value: %w", td.FullName(), fd.Name, err)
			}
			f.InitialValue = raw
		}
	}
	for _, pd := range d.Properties {
		p := td.AddProperty(pd.Name, decodeTypeRef(pd.Type))
		p.Getter = decodeMethodRef(pd.Getter)
		p.Setter = decodeMethodRef(pd.Setter)
		p.Attributes = decodeAttributes(pd.Attributes)
	}
	for _, md := range d.Methods {
		mf, err := namesToFlags(md.Flags, methodFlagNames)
		if err != nil {
			return nil, fmt.Errorf("method %s::%s: %w", td.FullName(), md.Name, err)
		}
		m := &MethodDef{
			Name:          md.Name,
			Flags:         MethodAttributes(mf),
			ReturnType:    decodeTypeRef(md.Return),
			Params:        decodeTypeRefs(md.Params),
			GenericParams: decodeGenericParams(md.GenericParams),
			Attributes:    decodeAttributes(md.Attributes),
			declaringType: td,
		}
		for _, ov := range md.Overrides {
			m.Overrides = append(m.Overrides, decodeMethodRef(ov))
		}
		if md.Body != nil {
			b, err := decodeBody(md.Body)
			if err != nil {
				return nil, fmt.Errorf("method %s::%s: %w", td.FullName(), md.Name, err)
			}
			m.Body = b
		}
		td.Methods = append(td.Methods, m)
	}
	return td, nil
}

func decodeBody(d *bodyDoc) (*Body, error) {
	b := &Body{InitLocals: d.InitLocals, MaxStack: d.MaxStack, Locals: decodeTypeRefs(d.Locals)}
	b.Instructions = make([]*Instruction, len(d.Code))
	for i, id := range d.Code {
		op, err := ParseOpCode(id.Op)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		b.Instructions[i] = &Instruction{Op: op}
	}
	target := func(i int) (*Instruction, error) {
		if i < 0 || i >= len(b.Instructions) {
			return nil, fmt.Errorf("branch target %d out of range", i)
		}
		return b.Instructions[i], nil
	}
	for i, id := range d.Code {
		ins := b.Instructions[i]
		missing := fmt.Errorf("instruction %d (%s): missing operand", i, ins.Op)
		switch ins.Op.Operand() {
		case OperandNone:
		case OperandInt8, OperandInt32, OperandInt64, OperandLocal, OperandArg:
			if id.Int == nil {
				return nil, missing
			}
			switch ins.Op.Operand() {
			case OperandInt8:
				ins.Operand = int8(*id.Int)
			case OperandInt32:
				ins.Operand = int32(*id.Int)
			case OperandInt64:
				ins.Operand = *id.Int
			default:
				ins.Operand = int(*id.Int)
			}
		case OperandFloat32, OperandFloat64:
			f32 := ins.Op.Operand() == OperandFloat32
			switch {
			case id.Bits != nil && f32:
				ins.Operand = math.Float32frombits(uint32(*id.Bits))
			case id.Bits != nil:
				ins.Operand = math.Float64frombits(*id.Bits)
			case id.Float == nil:
				return nil, missing
			case f32:
				ins.Operand = float32(*id.Float)
			default:
				ins.Operand = *id.Float
			}
		case OperandString:
			if id.Str == nil {
				return nil, missing
			}
			ins.Operand = *id.Str
		case OperandType:
			if id.Type == nil {
				return nil, missing
			}
			ins.Operand = decodeTypeRef(id.Type)
		case OperandMethod:
			if id.Method == nil {
				return nil, missing
			}
			ins.Operand = decodeMethodRef(id.Method)
		case OperandField:
			if id.Field == nil {
				return nil, missing
			}
			ins.Operand = decodeFieldRef(id.Field)
		case OperandToken:
			switch {
			case id.Type != nil:
				ins.Operand = decodeTypeRef(id.Type)
			case id.Method != nil:
				ins.Operand = decodeMethodRef(id.Method)
			case id.Field != nil:
				ins.Operand = decodeFieldRef(id.Field)
			default:
				return nil, missing
			}
		case OperandShortBranch, OperandBranch:
			if id.Target == nil {
				return nil, missing
			}
			t, err := target(*id.Target)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			ins.Operand = t
		case OperandSwitch:
			targets := make([]*Instruction, 0, len(id.Targets))
			for _, ti := range id.Targets {
				t, err := target(ti)
				if err != nil {
					return nil, fmt.Errorf("instruction %d: %w", i, err)
				}
				targets = append(targets, t)
			}
			ins.Operand = targets
		}
	}
	return b, nil
}

func decodeTypeRef(d *typeRefDoc) *TypeRef {
	if d == nil {
		return nil
	}
	t := &TypeRef{
		Scope:     d.Scope,
		Namespace: d.Namespace,
		Name:      d.Name,
		Element:   decodeTypeRef(d.Element),
		Args:      decodeTypeRefs(d.Args),
		Index:     d.Index,
	}
	for i, n := range typeKindNames {
		if n == d.Kind {
			t.Kind = TypeKind(i)
		}
	}
	return t
}

func decodeTypeRefs(ds []*typeRefDoc) []*TypeRef {
	if len(ds) == 0 {
		return nil
	}
	out := make([]*TypeRef, len(ds))
	for i, d := range ds {
		out[i] = decodeTypeRef(d)
	}
	return out
}

func decodeMethodRef(d *methodRefDoc) *MethodRef {
	if d == nil {
		return nil
	}
	if d.Element != nil {
		return &MethodRef{Element: decodeMethodRef(d.Element), GenericArgs: decodeTypeRefs(d.GenericArgs)}
	}
	return &MethodRef{
		DeclaringType: decodeTypeRef(d.DeclaringType),
		Name:          d.Name,
		HasThis:       d.HasThis,
		ReturnType:    decodeTypeRef(d.Return),
		Params:        decodeTypeRefs(d.Params),
		GenericArity:  d.GenericArity,
	}
}

func decodeFieldRef(d *fieldRefDoc) *FieldRef {
	return &FieldRef{DeclaringType: decodeTypeRef(d.DeclaringType), Name: d.Name, FieldType: decodeTypeRef(d.Type)}
}

func decodeGenericParams(ds []*genericParamDoc) []*GenericParam {
	var out []*GenericParam
	for _, d := range ds {
		out = append(out, &GenericParam{Name: d.Name, Constraints: decodeTypeRefs(d.Constraints)})
	}
	return out
}

func decodeAttributes(ds []*attributeDoc) []*CustomAttribute {
	var out []*CustomAttribute
	for _, d := range ds {
		a := &CustomAttribute{Constructor: decodeMethodRef(d.Constructor), Args: d.Args}
		for _, f := range d.Fields {
			a.NamedFields = append(a.NamedFields, decodeFieldRef(f))
		}
		for _, p := range d.Properties {
			a.NamedProperties = append(a.NamedProperties, &PropertyRef{
				DeclaringType: decodeTypeRef(p.DeclaringType),
				Name:          p.Name,
				PropertyType:  decodeTypeRef(p.Type),
			})
		}
		out = append(out, a)
	}
	return out
}

// exactFloat reports whether v survives a trip through its decimal form.
// NaN payloads and negative zero are stored as raw bits instead.
func exactFloat(v float64) bool {
	return !math.IsNaN(v) && !(v == 0 && math.Signbit(v))
}
