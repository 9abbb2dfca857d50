package valuetype

import "testing"

func TestEncodeDecodeRoundTripsRecord(t *testing.T) {
	vt := New(
		Value{
			Kind: KindRecord,
			Record: []Value{
				{Kind: KindString, String: "alice"},
				{Kind: KindU32, U32: 42},
			},
		},
		AnalysedType{
			Kind: TypeRecord,
			Fields: []NameTypePair{
				{Name: "name", Type: AnalysedType{Kind: TypeString}},
				{Name: "age", Type: AnalysedType{Kind: TypeU32}},
			},
		},
	)

	data, err := Encode(vt)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Value.Kind != KindRecord || len(got.Value.Record) != 2 {
		t.Fatalf("got = %+v", got.Value)
	}
	if got.Value.Record[0].String != "alice" {
		t.Fatalf("field 0 = %+v, want alice", got.Value.Record[0])
	}
	if got.Value.Record[1].U32 != 42 {
		t.Fatalf("field 1 = %+v, want 42", got.Value.Record[1])
	}
	if got.Type.Fields[1].Name != "age" {
		t.Fatalf("type fields = %+v", got.Type.Fields)
	}
}

func TestEncodeDecodeManyRoundTrips(t *testing.T) {
	vts := []ValueAndType{
		New(Value{Kind: KindBool, Bool: true}, AnalysedType{Kind: TypeBool}),
		New(Value{Kind: KindS64, S64: -7}, AnalysedType{Kind: TypeS64}),
	}

	data, err := EncodeMany(vts)
	if err != nil {
		t.Fatalf("EncodeMany: %v", err)
	}
	got, err := DecodeMany(data)
	if err != nil {
		t.Fatalf("DecodeMany: %v", err)
	}
	if len(got) != 2 || got[0].Value.Bool != true || got[1].Value.S64 != -7 {
		t.Fatalf("got = %+v", got)
	}
}

func TestOptionNilAndPresent(t *testing.T) {
	none := New(Value{Kind: KindOption}, AnalysedType{Kind: TypeOption, OptionElem: &AnalysedType{Kind: TypeString}})
	data, err := Encode(none)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Value.Option != nil {
		t.Fatalf("expected nil option, got %+v", got.Value.Option)
	}

	present := New(
		Value{Kind: KindOption, Option: &Value{Kind: KindString, String: "x"}},
		AnalysedType{Kind: TypeOption, OptionElem: &AnalysedType{Kind: TypeString}},
	)
	data, err = Encode(present)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err = Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Value.Option == nil || got.Value.Option.String != "x" {
		t.Fatalf("got = %+v", got.Value.Option)
	}
}
