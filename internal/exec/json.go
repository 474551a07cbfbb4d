package exec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arkilian/minicql/internal/errors"
	"github.com/arkilian/minicql/pkg/types"
)

// jsonColumnName is the synthetic column name of a SELECT JSON result.
const jsonColumnName = "[json]"

// valueToJSON renders a value as a JSON fragment following the server's
// toJson() conventions.
func valueToJSON(v types.Value) (json.RawMessage, error) {
	if v.IsNull() {
		return json.RawMessage("null"), nil
	}
	switch v.Kind {
	case types.KindBoolean:
		if v.Bool {
			return json.RawMessage("true"), nil
		}
		return json.RawMessage("false"), nil
	case types.KindTinyint, types.KindSmallint, types.KindInt, types.KindBigint,
		types.KindCounter, types.KindTime:
		return json.RawMessage(fmt.Sprintf("%d", v.Int)), nil
	case types.KindVarint:
		return json.RawMessage(v.BigInt().String()), nil
	case types.KindDecimal:
		return json.RawMessage(v.String()), nil
	case types.KindFloat, types.KindDouble:
		return json.Marshal(v.Float)
	case types.KindAscii, types.KindText:
		return json.Marshal(v.Text)
	case types.KindBlob:
		return json.Marshal("0x" + strings.ToLower(fmt.Sprintf("%x", v.Bytes)))
	case types.KindUuid, types.KindTimeuuid:
		return json.Marshal(uuid.UUID(v.UUID).String())
	case types.KindTimestamp:
		ts := time.UnixMilli(v.Int).UTC()
		return json.Marshal(ts.Format("2006-01-02 15:04:05.000Z"))
	case types.KindDate:
		days := v.Int - 1<<31
		day := time.Unix(days*86400, 0).UTC()
		return json.Marshal(day.Format("2006-01-02"))
	case types.KindInet:
		return json.Marshal(net.IP(v.Bytes).String())
	case types.KindList, types.KindSet, types.KindTuple:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			raw, err := valueToJSON(e)
			if err != nil {
				return nil, err
			}
			parts[i] = string(raw)
		}
		return json.RawMessage("[" + strings.Join(parts, ", ") + "]"), nil
	case types.KindMap:
		parts := make([]string, len(v.Pairs))
		for i, p := range v.Pairs {
			key, err := jsonMapKey(p.Key)
			if err != nil {
				return nil, err
			}
			val, err := valueToJSON(p.Val)
			if err != nil {
				return nil, err
			}
			parts[i] = key + ": " + string(val)
		}
		return json.RawMessage("{" + strings.Join(parts, ", ") + "}"), nil
	default:
		return nil, errors.Newf(errors.ErrCategoryInternal, errors.CodeUnexpected,
			"cannot render %s as JSON", v.Kind)
	}
}

// jsonMapKey renders a map key as a JSON object key, which must be a
// string.
func jsonMapKey(v types.Value) (string, error) {
	raw, err := valueToJSON(v)
	if err != nil {
		return "", err
	}
	s := string(raw)
	if strings.HasPrefix(s, `"`) {
		return s, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// rowToJSON renders named column values as one JSON object in column
// order.
func rowToJSON(names []string, values []types.Value) (string, error) {
	parts := make([]string, len(names))
	for i, name := range names {
		key, err := json.Marshal(name)
		if err != nil {
			return "", err
		}
		val, err := valueToJSON(values[i])
		if err != nil {
			return "", err
		}
		parts[i] = string(key) + ": " + string(val)
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}

// valueFromJSON coerces a decoded JSON value into the declared column
// type for INSERT JSON.
func valueFromJSON(raw interface{}, t types.ColumnType) (types.Value, error) {
	if raw == nil {
		return types.Null(), nil
	}
	mismatch := func() error {
		return errors.Newf(errors.ErrCategoryType, errors.CodeBadLiteral,
			"JSON value %v does not fit %s", raw, t)
	}

	switch t.Kind {
	case types.KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return types.Null(), mismatch()
		}
		return types.NewBoolean(b), nil

	case types.KindTinyint, types.KindSmallint, types.KindInt, types.KindBigint, types.KindCounter:
		num, ok := raw.(json.Number)
		if !ok {
			return types.Null(), mismatch()
		}
		n, err := num.Int64()
		if err != nil {
			return types.Null(), mismatch()
		}
		return integerValue(t.Kind, n)

	case types.KindVarint:
		num, ok := raw.(json.Number)
		if !ok {
			return types.Null(), mismatch()
		}
		n, good := new(big.Int).SetString(num.String(), 10)
		if !good {
			return types.Null(), mismatch()
		}
		return types.NewVarint(n), nil

	case types.KindDecimal:
		num, ok := raw.(json.Number)
		if !ok {
			return types.Null(), mismatch()
		}
		return decimalFromText(num.String())

	case types.KindFloat, types.KindDouble:
		num, ok := raw.(json.Number)
		if !ok {
			return types.Null(), mismatch()
		}
		f, err := num.Float64()
		if err != nil {
			return types.Null(), mismatch()
		}
		if t.Kind == types.KindFloat {
			return types.NewFloat(float32(f)), nil
		}
		return types.NewDouble(f), nil

	case types.KindAscii, types.KindText:
		s, ok := raw.(string)
		if !ok {
			return types.Null(), mismatch()
		}
		if t.Kind == types.KindAscii {
			return types.NewAscii(s), nil
		}
		return types.NewText(s), nil

	case types.KindBlob:
		s, ok := raw.(string)
		if !ok || !strings.HasPrefix(s, "0x") {
			return types.Null(), mismatch()
		}
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return types.Null(), mismatch()
		}
		return types.NewBlob(b), nil

	case types.KindUuid, types.KindTimeuuid:
		s, ok := raw.(string)
		if !ok {
			return types.Null(), mismatch()
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return types.Null(), mismatch()
		}
		if t.Kind == types.KindTimeuuid {
			return types.NewTimeuuid([16]byte(u)), nil
		}
		return types.NewUuid([16]byte(u)), nil

	case types.KindTimestamp:
		switch rv := raw.(type) {
		case json.Number:
			n, err := rv.Int64()
			if err != nil {
				return types.Null(), mismatch()
			}
			return types.NewTimestamp(n), nil
		case string:
			ms, err := parseTimestamp(rv)
			if err != nil {
				return types.Null(), mismatch()
			}
			return types.NewTimestamp(ms), nil
		default:
			return types.Null(), mismatch()
		}

	case types.KindDate:
		s, ok := raw.(string)
		if !ok {
			return types.Null(), mismatch()
		}
		day, err := time.ParseInLocation("2006-01-02", s, time.UTC)
		if err != nil {
			return types.Null(), mismatch()
		}
		return types.NewDate(uint32(day.Unix()/86400 + 1<<31)), nil

	case types.KindTime:
		s, ok := raw.(string)
		if !ok {
			return types.Null(), mismatch()
		}
		ns, err := parseTimeOfDay(s)
		if err != nil {
			return types.Null(), mismatch()
		}
		return types.NewTime(ns), nil

	case types.KindInet:
		s, ok := raw.(string)
		if !ok {
			return types.Null(), mismatch()
		}
		ip := net.ParseIP(s)
		if ip == nil {
			return types.Null(), mismatch()
		}
		return types.NewInet(ip), nil

	case types.KindList, types.KindSet:
		arr, ok := raw.([]interface{})
		if !ok {
			return types.Null(), mismatch()
		}
		elems := make([]types.Value, 0, len(arr))
		for _, e := range arr {
			v, err := valueFromJSON(e, *t.Elem)
			if err != nil {
				return types.Null(), err
			}
			if v.IsNull() {
				return types.Null(), errors.NewTypeError(errors.CodeNullElement,
					"null elements are not allowed inside collections")
			}
			elems = append(elems, v)
		}
		if t.Kind == types.KindSet {
			return types.NewSet(elems), nil
		}
		return types.NewList(elems), nil

	case types.KindMap:
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return types.Null(), mismatch()
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]types.Pair, 0, len(obj))
		for _, k := range keys {
			kv, err := jsonStringAsValue(k, *t.Key)
			if err != nil {
				return types.Null(), err
			}
			vv, err := valueFromJSON(obj[k], *t.Val)
			if err != nil {
				return types.Null(), err
			}
			if vv.IsNull() {
				return types.Null(), errors.NewTypeError(errors.CodeNullElement,
					"null elements are not allowed inside collections")
			}
			pairs = append(pairs, types.Pair{Key: kv, Val: vv})
		}
		return types.NewMap(pairs), nil

	case types.KindTuple:
		arr, ok := raw.([]interface{})
		if !ok || len(arr) != len(t.Fields) {
			return types.Null(), mismatch()
		}
		fields := make([]types.Value, len(arr))
		for i, e := range arr {
			v, err := valueFromJSON(e, t.Fields[i])
			if err != nil {
				return types.Null(), err
			}
			fields[i] = v
		}
		return types.NewTuple(fields), nil

	default:
		return types.Null(), mismatch()
	}
}

// jsonStringAsValue coerces a JSON object key into a typed map key. JSON
// object keys are strings, so numeric key types parse from the text.
func jsonStringAsValue(s string, t types.ColumnType) (types.Value, error) {
	switch t.Kind {
	case types.KindAscii, types.KindText, types.KindUuid, types.KindTimeuuid,
		types.KindInet, types.KindTimestamp, types.KindDate, types.KindTime:
		return valueFromJSON(s, t)
	default:
		return valueFromJSON(json.Number(s), t)
	}
}
