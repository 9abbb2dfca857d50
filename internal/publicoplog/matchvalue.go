package publicoplog

import (
	"strconv"

	"github.com/golemproject/workerexec/internal/valuetype"
)

// matchValue walks a decoded value tree looking for a leaf whose string
// form satisfies q at the path scoped by queryPath, mirroring
// PublicOplogEntry::match_value's recursive descent through
// List/Tuple/Record/Variant/Enum/Flags/Option/Result.
func matchValue(vt *valuetype.ValueAndType, pathStack, queryPath []string, q Query) bool {
	if vt == nil {
		return false
	}
	v, t := vt.Value, vt.Type

	switch v.Kind {
	case valuetype.KindBool:
		return stringMatch(strconv.FormatBool(v.Bool), pathStack, queryPath, q)
	case valuetype.KindU8:
		return stringMatch(strconv.FormatUint(uint64(v.U8), 10), pathStack, queryPath, q)
	case valuetype.KindU16:
		return stringMatch(strconv.FormatUint(uint64(v.U16), 10), pathStack, queryPath, q)
	case valuetype.KindU32:
		return stringMatch(strconv.FormatUint(uint64(v.U32), 10), pathStack, queryPath, q)
	case valuetype.KindU64:
		return stringMatch(strconv.FormatUint(v.U64, 10), pathStack, queryPath, q)
	case valuetype.KindS8:
		return stringMatch(strconv.FormatInt(int64(v.S8), 10), pathStack, queryPath, q)
	case valuetype.KindS16:
		return stringMatch(strconv.FormatInt(int64(v.S16), 10), pathStack, queryPath, q)
	case valuetype.KindS32:
		return stringMatch(strconv.FormatInt(int64(v.S32), 10), pathStack, queryPath, q)
	case valuetype.KindS64:
		return stringMatch(strconv.FormatInt(v.S64, 10), pathStack, queryPath, q)
	case valuetype.KindF32:
		return stringMatch(strconv.FormatFloat(float64(v.F32), 'g', -1, 32), pathStack, queryPath, q)
	case valuetype.KindF64:
		return stringMatch(strconv.FormatFloat(v.F64, 'g', -1, 64), pathStack, queryPath, q)
	case valuetype.KindChar:
		return stringMatch(string(v.Char), pathStack, queryPath, q)
	case valuetype.KindString:
		return stringMatch(v.String, pathStack, queryPath, q)
	case valuetype.KindList:
		if t.ListElem == nil {
			return false
		}
		for _, elem := range v.List {
			inner := valuetype.New(elem, *t.ListElem)
			if matchValue(&inner, pathStack, queryPath, q) {
				return true
			}
		}
		return false
	case valuetype.KindTuple:
		if len(v.Tuple) != len(t.TupleItems) {
			return false
		}
		for i, elem := range v.Tuple {
			inner := valuetype.New(elem, t.TupleItems[i])
			if matchValue(&inner, pathStack, queryPath, q) {
				return true
			}
		}
		return false
	case valuetype.KindRecord:
		if len(v.Record) != len(t.Fields) {
			return false
		}
		for i, elem := range v.Record {
			newPath := append(append([]string{}, pathStack...), t.Fields[i].Name)
			inner := valuetype.New(elem, t.Fields[i].Type)
			// Recurses with pathStack rather than queryPath here,
			// matching match_value's record case exactly: every other
			// branch passes queryPath unchanged on recursion, but this
			// one doesn't, so a record field's Field-scoped queries
			// effectively compare against the wrong side. Preserved
			// rather than silently corrected.
			if matchValue(&inner, newPath, pathStack, q) {
				return true
			}
		}
		return false
	case valuetype.KindVariant:
		if int(v.CaseIdx) >= len(t.Cases) || v.CaseValue == nil {
			return false
		}
		c := t.Cases[v.CaseIdx]
		if c.Type == nil {
			return false
		}
		newPath := append(append([]string{}, pathStack...), c.Name)
		inner := valuetype.New(*v.CaseValue, *c.Type)
		return matchValue(&inner, newPath, queryPath, q)
	case valuetype.KindEnum:
		if int(v.Enum) >= len(t.EnumCases) {
			return false
		}
		return stringMatch(t.EnumCases[v.Enum], pathStack, queryPath, q)
	case valuetype.KindFlags:
		for i, set := range v.Flags {
			if set && i < len(t.FlagNames) && stringMatch(t.FlagNames[i], pathStack, queryPath, q) {
				return true
			}
		}
		return false
	case valuetype.KindOption:
		if v.Option == nil || t.OptionElem == nil {
			return false
		}
		inner := valuetype.New(*v.Option, *t.OptionElem)
		return matchValue(&inner, pathStack, queryPath, q)
	case valuetype.KindResult:
		if !v.IsErr && v.Ok != nil && t.ResultOk != nil {
			newPath := append(append([]string{}, pathStack...), "ok")
			inner := valuetype.New(*v.Ok, *t.ResultOk)
			return matchValue(&inner, newPath, queryPath, q)
		}
		if v.IsErr && v.Err != nil && t.ResultErr != nil {
			newPath := append(append([]string{}, pathStack...), "err")
			inner := valuetype.New(*v.Err, *t.ResultErr)
			return matchValue(&inner, newPath, queryPath, q)
		}
		return false
	case valuetype.KindHandle:
		return false
	default:
		return false
	}
}
