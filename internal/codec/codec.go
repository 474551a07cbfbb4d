// Package codec implements the binary (de)serialization of CQL values to and
// from their native-protocol wire representation. Fixed-width types use
// fixed-length encodings, variable-width types are length-prefixed, and
// collections recurse through the same codec with an element count followed
// by length-prefixed elements.
package codec

import (
	"encoding/binary"
	"math"

	"github.com/arkilian/minicql/internal/errors"
	"github.com/arkilian/minicql/pkg/types"
)

// Encode serializes a value according to its declared column type. Null and
// unset values have no body encoding; callers represent them at the [bytes]
// level instead of passing them here.
func Encode(v types.Value, t types.ColumnType) ([]byte, error) {
	if v.IsNull() || v.IsUnset() {
		return nil, errors.Newf(errors.ErrCategoryType, errors.CodeTypeMismatch,
			"cannot encode %s as a %s body", v.Kind, t)
	}
	if !t.AcceptsKind(v.Kind) {
		return nil, errors.Newf(errors.ErrCategoryType, errors.CodeTypeMismatch,
			"value of type %s does not match declared type %s", v.Kind, t)
	}
	switch t.Kind {
	case types.KindBoolean:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case types.KindTinyint:
		return []byte{byte(v.Int)}, nil
	case types.KindSmallint:
		return binary.BigEndian.AppendUint16(nil, uint16(v.Int)), nil
	case types.KindInt:
		return binary.BigEndian.AppendUint32(nil, uint32(v.Int)), nil
	case types.KindBigint, types.KindCounter, types.KindTimestamp, types.KindTime:
		return binary.BigEndian.AppendUint64(nil, uint64(v.Int)), nil
	case types.KindDate:
		return binary.BigEndian.AppendUint32(nil, uint32(v.Int)), nil
	case types.KindFloat:
		return binary.BigEndian.AppendUint32(nil, math.Float32bits(float32(v.Float))), nil
	case types.KindDouble:
		return binary.BigEndian.AppendUint64(nil, math.Float64bits(v.Float)), nil
	case types.KindAscii, types.KindText:
		return []byte(v.Text), nil
	case types.KindBlob, types.KindVarint, types.KindInet:
		return append([]byte(nil), v.Bytes...), nil
	case types.KindDecimal:
		out := binary.BigEndian.AppendUint32(nil, uint32(v.Scale))
		return append(out, v.Bytes...), nil
	case types.KindUuid, types.KindTimeuuid:
		return append([]byte(nil), v.UUID[:]...), nil
	case types.KindList, types.KindSet:
		return encodeElements(v.Elems, *t.Elem)
	case types.KindMap:
		out := binary.BigEndian.AppendUint32(nil, uint32(len(v.Pairs)))
		for _, p := range v.Pairs {
			var err error
			if out, err = appendElement(out, p.Key, *t.Key); err != nil {
				return nil, err
			}
			if out, err = appendElement(out, p.Val, *t.Val); err != nil {
				return nil, err
			}
		}
		return out, nil
	case types.KindTuple:
		if len(v.Elems) != len(t.Fields) {
			return nil, errors.Newf(errors.ErrCategoryType, errors.CodeTypeMismatch,
				"tuple arity %d does not match declared %s", len(v.Elems), t)
		}
		var out []byte
		for i, f := range v.Elems {
			if f.IsNull() {
				out = binary.BigEndian.AppendUint32(out, uint32(0xffffffff))
				continue
			}
			body, err := Encode(f, t.Fields[i])
			if err != nil {
				return nil, err
			}
			out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
			out = append(out, body...)
		}
		return out, nil
	default:
		return nil, errors.Newf(errors.ErrCategoryType, errors.CodeTypeMismatch,
			"unsupported declared type %s", t)
	}
}

func encodeElements(elems []types.Value, elemType types.ColumnType) ([]byte, error) {
	out := binary.BigEndian.AppendUint32(nil, uint32(len(elems)))
	for _, e := range elems {
		var err error
		if out, err = appendElement(out, e, elemType); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendElement(out []byte, e types.Value, elemType types.ColumnType) ([]byte, error) {
	if e.IsNull() || e.IsUnset() {
		return nil, errors.NewTypeError(errors.CodeNullElement,
			"null elements are not allowed inside collections")
	}
	body, err := Encode(e, elemType)
	if err != nil {
		return nil, err
	}
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...), nil
}

// Decode deserializes a value body according to its declared column type.
// The input must be the exact body; trailing bytes are a type mismatch.
func Decode(data []byte, t types.ColumnType) (types.Value, error) {
	v, rest, err := decode(data, t)
	if err != nil {
		return types.Null(), err
	}
	if len(rest) != 0 {
		return types.Null(), errors.Newf(errors.ErrCategoryType, errors.CodeTypeMismatch,
			"%d trailing bytes after %s body", len(rest), t)
	}
	return v, nil
}

func decode(data []byte, t types.ColumnType) (types.Value, []byte, error) {
	switch t.Kind {
	case types.KindBoolean:
		if len(data) < 1 {
			return truncated(t)
		}
		return types.NewBoolean(data[0] != 0), data[1:], nil
	case types.KindTinyint:
		if len(data) < 1 {
			return truncated(t)
		}
		return types.NewTinyint(int8(data[0])), data[1:], nil
	case types.KindSmallint:
		if len(data) < 2 {
			return truncated(t)
		}
		return types.NewSmallint(int16(binary.BigEndian.Uint16(data))), data[2:], nil
	case types.KindInt:
		if len(data) < 4 {
			return truncated(t)
		}
		return types.NewInt(int32(binary.BigEndian.Uint32(data))), data[4:], nil
	case types.KindBigint, types.KindCounter, types.KindTimestamp, types.KindTime:
		if len(data) < 8 {
			return truncated(t)
		}
		n := int64(binary.BigEndian.Uint64(data))
		v := types.Value{Kind: t.Kind, Int: n}
		return v, data[8:], nil
	case types.KindDate:
		if len(data) < 4 {
			return truncated(t)
		}
		return types.NewDate(binary.BigEndian.Uint32(data)), data[4:], nil
	case types.KindFloat:
		if len(data) < 4 {
			return truncated(t)
		}
		return types.NewFloat(math.Float32frombits(binary.BigEndian.Uint32(data))), data[4:], nil
	case types.KindDouble:
		if len(data) < 8 {
			return truncated(t)
		}
		return types.NewDouble(math.Float64frombits(binary.BigEndian.Uint64(data))), data[8:], nil
	case types.KindAscii:
		return types.NewAscii(string(data)), nil, nil
	case types.KindText:
		return types.NewText(string(data)), nil, nil
	case types.KindBlob:
		return types.NewBlob(append([]byte(nil), data...)), nil, nil
	case types.KindVarint:
		return types.Value{Kind: types.KindVarint, Bytes: append([]byte(nil), data...)}, nil, nil
	case types.KindInet:
		if len(data) != 4 && len(data) != 16 {
			return types.Null(), nil, errors.Newf(errors.ErrCategoryType, errors.CodeTypeMismatch,
				"inet body must be 4 or 16 bytes, got %d", len(data))
		}
		return types.Value{Kind: types.KindInet, Bytes: append([]byte(nil), data...)}, nil, nil
	case types.KindDecimal:
		if len(data) < 4 {
			return truncated(t)
		}
		scale := int32(binary.BigEndian.Uint32(data))
		return types.Value{
			Kind:  types.KindDecimal,
			Scale: scale,
			Bytes: append([]byte(nil), data[4:]...),
		}, nil, nil
	case types.KindUuid, types.KindTimeuuid:
		if len(data) < 16 {
			return truncated(t)
		}
		var u [16]byte
		copy(u[:], data)
		return types.Value{Kind: t.Kind, UUID: u}, data[16:], nil
	case types.KindList, types.KindSet:
		elems, rest, err := decodeElements(data, *t.Elem)
		if err != nil {
			return types.Null(), nil, err
		}
		if t.Kind == types.KindSet {
			return types.NewSet(elems), rest, nil
		}
		return types.NewList(elems), rest, nil
	case types.KindMap:
		if len(data) < 4 {
			return truncated(t)
		}
		count := int32(binary.BigEndian.Uint32(data))
		if count < 0 {
			return types.Null(), nil, negativeCount(t)
		}
		rest := data[4:]
		// Each entry carries at least two 4-byte length prefixes, so a
		// count beyond len(rest)/8 cannot be satisfied. Checking before
		// the allocation keeps a hostile count from sizing the slice.
		if int64(count) > int64(len(rest))/8 {
			return truncated(t)
		}
		pairs := make([]types.Pair, 0, count)
		for i := int32(0); i < count; i++ {
			var k, v types.Value
			var err error
			if k, rest, err = decodeElement(rest, *t.Key); err != nil {
				return types.Null(), nil, err
			}
			if v, rest, err = decodeElement(rest, *t.Val); err != nil {
				return types.Null(), nil, err
			}
			pairs = append(pairs, types.Pair{Key: k, Val: v})
		}
		return types.NewMap(pairs), rest, nil
	case types.KindTuple:
		rest := data
		fields := make([]types.Value, 0, len(t.Fields))
		for _, ft := range t.Fields {
			if len(rest) < 4 {
				return truncated(t)
			}
			n := int32(binary.BigEndian.Uint32(rest))
			rest = rest[4:]
			if n < 0 {
				fields = append(fields, types.Null())
				continue
			}
			if int32(len(rest)) < n {
				return truncated(t)
			}
			f, err := Decode(rest[:n], ft)
			if err != nil {
				return types.Null(), nil, err
			}
			fields = append(fields, f)
			rest = rest[n:]
		}
		return types.NewTuple(fields), rest, nil
	default:
		return types.Null(), nil, errors.Newf(errors.ErrCategoryType, errors.CodeTypeMismatch,
			"unsupported declared type %s", t)
	}
}

func decodeElements(data []byte, elemType types.ColumnType) ([]types.Value, []byte, error) {
	if len(data) < 4 {
		_, _, err := truncated(types.ColumnType{Kind: types.KindList, Elem: &elemType})
		return nil, nil, err
	}
	count := int32(binary.BigEndian.Uint32(data))
	if count < 0 {
		return nil, nil, negativeCount(types.ColumnType{Kind: types.KindList, Elem: &elemType})
	}
	rest := data[4:]
	// A count larger than the bytes left divided by the 4-byte length
	// prefix per element is unsatisfiable. Reject it before allocating.
	if int64(count) > int64(len(rest))/4 {
		_, _, err := truncated(types.ColumnType{Kind: types.KindList, Elem: &elemType})
		return nil, nil, err
	}
	elems := make([]types.Value, 0, count)
	for i := int32(0); i < count; i++ {
		var e types.Value
		var err error
		if e, rest, err = decodeElement(rest, elemType); err != nil {
			return nil, nil, err
		}
		elems = append(elems, e)
	}
	return elems, rest, nil
}

func decodeElement(data []byte, elemType types.ColumnType) (types.Value, []byte, error) {
	if len(data) < 4 {
		return truncated(elemType)
	}
	n := int32(binary.BigEndian.Uint32(data))
	rest := data[4:]
	if n < 0 {
		return types.Null(), nil, errors.NewTypeError(errors.CodeNullElement,
			"null elements are not allowed inside collections")
	}
	if int32(len(rest)) < n {
		return truncated(elemType)
	}
	v, err := Decode(rest[:n], elemType)
	if err != nil {
		return types.Null(), nil, err
	}
	return v, rest[n:], nil
}

func truncated(t types.ColumnType) (types.Value, []byte, error) {
	return types.Null(), nil, errors.Newf(errors.ErrCategoryType, errors.CodeTruncatedData,
		"truncated %s body", t)
}

func negativeCount(t types.ColumnType) error {
	return errors.Newf(errors.ErrCategoryType, errors.CodeTypeMismatch,
		"negative element count in %s body", t)
}
