// Package valuetype implements the typed value tree exchanged between a
// worker's exported/imported function calls and the oplog: a Value carries
// the actual data, an AnalysedType describes its WIT shape, and a
// ValueAndType pairs the two for anything that needs to inspect a value
// without already knowing its type (oplog search, RPC argument encoding).
package valuetype

// ValueKind discriminates the Value union, mirroring the WIT value types
// golem-wasm-rpc's Value enum carries.
type ValueKind int

const (
	KindBool ValueKind = iota
	KindU8
	KindU16
	KindU32
	KindU64
	KindS8
	KindS16
	KindS32
	KindS64
	KindF32
	KindF64
	KindChar
	KindString
	KindList
	KindTuple
	KindRecord
	KindVariant
	KindEnum
	KindFlags
	KindOption
	KindResult
	KindHandle
)

// Value is a single WIT value. Only the field matching Kind is populated.
type Value struct {
	Kind ValueKind `msgpack:"kind"`

	Bool   bool    `msgpack:"bool,omitempty"`
	U8     uint8   `msgpack:"u8,omitempty"`
	U16    uint16  `msgpack:"u16,omitempty"`
	U32    uint32  `msgpack:"u32,omitempty"`
	U64    uint64  `msgpack:"u64,omitempty"`
	S8     int8    `msgpack:"s8,omitempty"`
	S16    int16   `msgpack:"s16,omitempty"`
	S32    int32   `msgpack:"s32,omitempty"`
	S64    int64   `msgpack:"s64,omitempty"`
	F32    float32 `msgpack:"f32,omitempty"`
	F64    float64 `msgpack:"f64,omitempty"`
	Char   rune    `msgpack:"char,omitempty"`
	String string  `msgpack:"string,omitempty"`

	List  []Value `msgpack:"list,omitempty"`
	Tuple []Value `msgpack:"tuple,omitempty"`

	// Record holds field values in declaration order, matching the
	// paired AnalysedType's Record.Fields order.
	Record []Value `msgpack:"record,omitempty"`

	// Variant carries the selected case's payload (nil if the case has
	// no payload) and CaseIdx identifying which case was selected.
	CaseIdx   uint32 `msgpack:"case_idx,omitempty"`
	CaseValue *Value `msgpack:"case_value,omitempty"`

	// Enum holds the selected case's ordinal.
	Enum uint32 `msgpack:"enum,omitempty"`

	// Flags holds one bool per declared flag name, in declaration order.
	Flags []bool `msgpack:"flags,omitempty"`

	// Option holds the payload if present, or nil for none.
	Option *Value `msgpack:"option,omitempty"`

	// Result holds either Ok or Err, matching IsErr.
	IsErr bool   `msgpack:"is_err,omitempty"`
	Ok    *Value `msgpack:"ok,omitempty"`
	Err   *Value `msgpack:"err,omitempty"`

	// Handle identifies a resource handle by its worker-scoped resource
	// id and the resource's constructor name.
	HandleResourceID uint64 `msgpack:"handle_resource_id,omitempty"`
	HandleURI        string `msgpack:"handle_uri,omitempty"`
}

// TypeKind discriminates the AnalysedType union.
type TypeKind int

const (
	TypeBool TypeKind = iota
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeS8
	TypeS16
	TypeS32
	TypeS64
	TypeF32
	TypeF64
	TypeChar
	TypeString
	TypeList
	TypeTuple
	TypeRecord
	TypeVariant
	TypeEnum
	TypeFlags
	TypeOption
	TypeResult
	TypeHandle
)

// NameOptionTypePair names a variant case and its optional payload type.
type NameOptionTypePair struct {
	Name string      `msgpack:"name"`
	Type *AnalysedType `msgpack:"type,omitempty"`
}

// NameTypePair names a record field and its type.
type NameTypePair struct {
	Name string       `msgpack:"name"`
	Type AnalysedType `msgpack:"type"`
}

// AnalysedType describes the WIT shape of a Value tree.
type AnalysedType struct {
	Kind TypeKind `msgpack:"kind"`

	ListElem   *AnalysedType        `msgpack:"list_elem,omitempty"`
	TupleItems []AnalysedType       `msgpack:"tuple_items,omitempty"`
	Fields     []NameTypePair       `msgpack:"fields,omitempty"`
	Cases      []NameOptionTypePair `msgpack:"cases,omitempty"`
	EnumCases  []string             `msgpack:"enum_cases,omitempty"`
	FlagNames  []string             `msgpack:"flag_names,omitempty"`
	OptionElem *AnalysedType        `msgpack:"option_elem,omitempty"`
	ResultOk   *AnalysedType        `msgpack:"result_ok,omitempty"`
	ResultErr  *AnalysedType        `msgpack:"result_err,omitempty"`
	HandleName string               `msgpack:"handle_name,omitempty"`
}

// ValueAndType pairs a Value with the AnalysedType describing its shape, so
// the two can travel together without a caller having to re-derive the type
// from a component's exported interface.
type ValueAndType struct {
	Value Value        `msgpack:"value"`
	Type  AnalysedType `msgpack:"type"`
}

func New(value Value, typ AnalysedType) ValueAndType {
	return ValueAndType{Value: value, Type: typ}
}
