package types

import (
	"fmt"
	"strings"

	"github.com/datastax/go-cassandra-native-protocol/datatype"
)

// ColumnType describes a declared CQL column type, possibly nested for
// collections and tuples. The zero value is not a valid type.
type ColumnType struct {
	// Kind is the outermost type tag. Collection kinds use the element
	// fields below; scalar kinds use none of them.
	Kind Kind

	// Elem is the list/set element type.
	Elem *ColumnType

	// Key and Val are the map key and value types.
	Key *ColumnType
	Val *ColumnType

	// Fields are the tuple field types.
	Fields []ColumnType
}

// Scalar returns the type descriptor for a scalar kind.
func Scalar(k Kind) ColumnType { return ColumnType{Kind: k} }

// ListOf returns a list type.
func ListOf(elem ColumnType) ColumnType { return ColumnType{Kind: KindList, Elem: &elem} }

// SetOf returns a set type.
func SetOf(elem ColumnType) ColumnType { return ColumnType{Kind: KindSet, Elem: &elem} }

// MapOf returns a map type.
func MapOf(key, val ColumnType) ColumnType { return ColumnType{Kind: KindMap, Key: &key, Val: &val} }

// TupleOf returns a tuple type.
func TupleOf(fields ...ColumnType) ColumnType { return ColumnType{Kind: KindTuple, Fields: fields} }

// String renders the CQL name of the type, e.g. "map<text, bigint>".
func (t ColumnType) String() string {
	switch t.Kind {
	case KindList:
		return "list<" + t.Elem.String() + ">"
	case KindSet:
		return "set<" + t.Elem.String() + ">"
	case KindMap:
		return "map<" + t.Key.String() + ", " + t.Val.String() + ">"
	case KindTuple:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "tuple<" + strings.Join(parts, ", ") + ">"
	default:
		return t.Kind.String()
	}
}

// Collection reports whether the type is a list, set or map.
func (t ColumnType) Collection() bool {
	return t.Kind == KindList || t.Kind == KindSet || t.Kind == KindMap
}

// AcceptsKind reports whether a value with the given runtime tag can be
// stored into a column of this type. Ascii and text are interchangeable on
// input, as are the timeuuid/uuid pair, matching driver behavior.
func (t ColumnType) AcceptsKind(k Kind) bool {
	if k == KindNull || k == KindUnset {
		return true
	}
	if t.Kind == k {
		return true
	}
	switch t.Kind {
	case KindText:
		return k == KindAscii
	case KindAscii:
		return k == KindText
	case KindUuid:
		return k == KindTimeuuid
	case KindTimeuuid:
		return k == KindUuid
	}
	return false
}

// DataType maps the declared type onto the wire-protocol type descriptor
// used in result-set and prepared-statement metadata.
func (t ColumnType) DataType() datatype.DataType {
	switch t.Kind {
	case KindAscii:
		return datatype.Ascii
	case KindBigint, KindCounter:
		return datatype.Bigint
	case KindBlob:
		return datatype.Blob
	case KindBoolean:
		return datatype.Boolean
	case KindDate:
		return datatype.Date
	case KindDecimal:
		return datatype.Decimal
	case KindDouble:
		return datatype.Double
	case KindFloat:
		return datatype.Float
	case KindInet:
		return datatype.Inet
	case KindInt:
		return datatype.Int
	case KindSmallint:
		return datatype.Smallint
	case KindText:
		return datatype.Varchar
	case KindTime:
		return datatype.Time
	case KindTimestamp:
		return datatype.Timestamp
	case KindTimeuuid:
		return datatype.Timeuuid
	case KindTinyint:
		return datatype.Tinyint
	case KindUuid:
		return datatype.Uuid
	case KindVarint:
		return datatype.Varint
	case KindList:
		return datatype.NewList(t.Elem.DataType())
	case KindSet:
		return datatype.NewSet(t.Elem.DataType())
	case KindMap:
		return datatype.NewMap(t.Key.DataType(), t.Val.DataType())
	case KindTuple:
		fields := make([]datatype.DataType, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = f.DataType()
		}
		return datatype.NewTuple(fields...)
	default:
		return datatype.Blob
	}
}

var scalarTypeNames = map[string]Kind{
	"ascii":     KindAscii,
	"bigint":    KindBigint,
	"blob":      KindBlob,
	"boolean":   KindBoolean,
	"counter":   KindCounter,
	"date":      KindDate,
	"decimal":   KindDecimal,
	"double":    KindDouble,
	"float":     KindFloat,
	"inet":      KindInet,
	"int":       KindInt,
	"smallint":  KindSmallint,
	"text":      KindText,
	"time":      KindTime,
	"timestamp": KindTimestamp,
	"timeuuid":  KindTimeuuid,
	"tinyint":   KindTinyint,
	"uuid":      KindUuid,
	"varchar":   KindText,
	"varint":    KindVarint,
}

// ParseType parses a CQL type name such as "int" or "map<text, list<uuid>>".
func ParseType(s string) (ColumnType, error) {
	t, rest, err := parseType(strings.TrimSpace(s))
	if err != nil {
		return ColumnType{}, err
	}
	if strings.TrimSpace(rest) != "" {
		return ColumnType{}, fmt.Errorf("unexpected trailing input %q in type %q", rest, s)
	}
	return t, nil
}

func parseType(s string) (ColumnType, string, error) {
	s = strings.TrimSpace(s)
	name := s
	if i := strings.IndexAny(s, "<,>"); i >= 0 {
		name = s[:i]
	}
	name = strings.TrimSpace(name)
	rest := s[len(name):]
	lower := strings.ToLower(name)

	switch lower {
	case "list", "set":
		elem, rest, err := parseGenericArgs(rest, 1, lower)
		if err != nil {
			return ColumnType{}, "", err
		}
		if lower == "list" {
			return ListOf(elem[0]), rest, nil
		}
		return SetOf(elem[0]), rest, nil
	case "map":
		args, rest, err := parseGenericArgs(rest, 2, lower)
		if err != nil {
			return ColumnType{}, "", err
		}
		return MapOf(args[0], args[1]), rest, nil
	case "tuple":
		args, rest, err := parseGenericArgs(rest, -1, lower)
		if err != nil {
			return ColumnType{}, "", err
		}
		return TupleOf(args...), rest, nil
	case "frozen":
		// Frozen-ness does not change behavior in a single-node store.
		args, rest, err := parseGenericArgs(rest, 1, lower)
		if err != nil {
			return ColumnType{}, "", err
		}
		return args[0], rest, nil
	default:
		kind, ok := scalarTypeNames[lower]
		if !ok {
			return ColumnType{}, "", fmt.Errorf("unknown type name %q", name)
		}
		return Scalar(kind), rest, nil
	}
}

// parseGenericArgs parses "<a, b, ...>" after a generic type name.
// want < 0 accepts any positive arity.
func parseGenericArgs(s string, want int, outer string) ([]ColumnType, string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "<") {
		return nil, "", fmt.Errorf("expected type arguments after %q", outer)
	}
	s = s[1:]
	var args []ColumnType
	for {
		arg, rest, err := parseType(s)
		if err != nil {
			return nil, "", err
		}
		args = append(args, arg)
		s = strings.TrimSpace(rest)
		if strings.HasPrefix(s, ",") {
			s = s[1:]
			continue
		}
		if strings.HasPrefix(s, ">") {
			s = s[1:]
			break
		}
		return nil, "", fmt.Errorf("malformed type arguments for %q", outer)
	}
	if want >= 0 && len(args) != want {
		return nil, "", fmt.Errorf("%s takes %d type argument(s), got %d", outer, want, len(args))
	}
	return args, s, nil
}
