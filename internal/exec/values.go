package exec

import (
	"encoding/hex"
	"math"
	"math/big"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arkilian/minicql/internal/codec"
	"github.com/arkilian/minicql/internal/cql/parser"
	"github.com/arkilian/minicql/internal/errors"
	"github.com/arkilian/minicql/pkg/types"
)

// Param is one client-supplied bind value.
type Param struct {
	Null  bool
	Unset bool
	Data  []byte
}

// BoundValues carries the bind values sent with a statement, positionally
// and by name.
type BoundValues struct {
	Positional []Param
	Named      map[string]Param
}

// lookup finds the value for a bind marker. Named markers fall back to
// positional order when no named values were sent.
func (b BoundValues) lookup(m *parser.BindMarker) (Param, error) {
	if m.Name != "" && b.Named != nil {
		p, ok := b.Named[m.Name]
		if !ok {
			return Param{}, errors.Newf(errors.ErrCategoryExecution, errors.CodeBindCount,
				"no value for bind marker :%s", m.Name)
		}
		return p, nil
	}
	if m.Index >= len(b.Positional) {
		return Param{}, errors.Newf(errors.ErrCategoryExecution, errors.CodeBindCount,
			"statement has at least %d bind markers but %d values were supplied",
			m.Index+1, len(b.Positional))
	}
	return b.Positional[m.Index], nil
}

// resolveTerm produces the typed value for a term, decoding bind values
// with the declared column type.
func resolveTerm(term parser.Term, t types.ColumnType, vals BoundValues) (types.Value, error) {
	switch tt := term.(type) {
	case *parser.Literal:
		return FromLiteral(tt, t)
	case *parser.BindMarker:
		p, err := vals.lookup(tt)
		if err != nil {
			return types.Null(), err
		}
		switch {
		case p.Unset:
			return types.Unset(), nil
		case p.Null || p.Data == nil:
			return types.Null(), nil
		default:
			v, err := codec.Decode(p.Data, t)
			if err != nil {
				return types.Null(), errors.Wrap(errors.ErrCategoryType, errors.CodeBadBindValue,
					"bind value does not match "+t.String(), err)
			}
			return v, nil
		}
	default:
		return types.Null(), errors.New(errors.ErrCategoryInternal, errors.CodeUnexpected,
			"unknown term kind")
	}
}

func badLiteral(lit *parser.Literal, t types.ColumnType) error {
	return errors.Newf(errors.ErrCategoryType, errors.CodeBadLiteral,
		"cannot interpret %s literal as %s", lit.Kind, t)
}

// FromLiteral coerces a parsed literal into a typed value.
func FromLiteral(lit *parser.Literal, t types.ColumnType) (types.Value, error) {
	if lit.Kind == parser.LitNull {
		return types.Null(), nil
	}

	switch t.Kind {
	case types.KindBoolean:
		if lit.Kind != parser.LitBoolean {
			return types.Null(), badLiteral(lit, t)
		}
		return types.NewBoolean(lit.Text == "true"), nil

	case types.KindTinyint, types.KindSmallint, types.KindInt, types.KindBigint, types.KindCounter:
		if lit.Kind != parser.LitInteger {
			return types.Null(), badLiteral(lit, t)
		}
		n, err := strconv.ParseInt(lit.Text, 10, 64)
		if err != nil {
			return types.Null(), badLiteral(lit, t)
		}
		return integerValue(t.Kind, n)

	case types.KindVarint:
		if lit.Kind != parser.LitInteger {
			return types.Null(), badLiteral(lit, t)
		}
		n, ok := new(big.Int).SetString(lit.Text, 10)
		if !ok {
			return types.Null(), badLiteral(lit, t)
		}
		return types.NewVarint(n), nil

	case types.KindDecimal:
		if lit.Kind != parser.LitInteger && lit.Kind != parser.LitFloat {
			return types.Null(), badLiteral(lit, t)
		}
		return decimalFromText(lit.Text)

	case types.KindFloat, types.KindDouble:
		if lit.Kind != parser.LitInteger && lit.Kind != parser.LitFloat {
			return types.Null(), badLiteral(lit, t)
		}
		f, err := strconv.ParseFloat(lit.Text, 64)
		if err != nil {
			return types.Null(), badLiteral(lit, t)
		}
		if t.Kind == types.KindFloat {
			return types.NewFloat(float32(f)), nil
		}
		return types.NewDouble(f), nil

	case types.KindAscii, types.KindText:
		if lit.Kind != parser.LitString {
			return types.Null(), badLiteral(lit, t)
		}
		if t.Kind == types.KindAscii {
			return types.NewAscii(lit.Text), nil
		}
		return types.NewText(lit.Text), nil

	case types.KindBlob:
		if lit.Kind != parser.LitBlob {
			return types.Null(), badLiteral(lit, t)
		}
		b, err := hex.DecodeString(lit.Text)
		if err != nil {
			return types.Null(), badLiteral(lit, t)
		}
		return types.NewBlob(b), nil

	case types.KindUuid, types.KindTimeuuid:
		if lit.Kind != parser.LitUuid && lit.Kind != parser.LitString {
			return types.Null(), badLiteral(lit, t)
		}
		u, err := uuid.Parse(lit.Text)
		if err != nil {
			return types.Null(), badLiteral(lit, t)
		}
		if t.Kind == types.KindTimeuuid {
			return types.NewTimeuuid([16]byte(u)), nil
		}
		return types.NewUuid([16]byte(u)), nil

	case types.KindTimestamp:
		switch lit.Kind {
		case parser.LitInteger:
			ms, err := strconv.ParseInt(lit.Text, 10, 64)
			if err != nil {
				return types.Null(), badLiteral(lit, t)
			}
			return types.NewTimestamp(ms), nil
		case parser.LitString:
			ts, err := parseTimestamp(lit.Text)
			if err != nil {
				return types.Null(), badLiteral(lit, t)
			}
			return types.NewTimestamp(ts), nil
		default:
			return types.Null(), badLiteral(lit, t)
		}

	case types.KindDate:
		switch lit.Kind {
		case parser.LitInteger:
			n, err := strconv.ParseUint(lit.Text, 10, 32)
			if err != nil {
				return types.Null(), badLiteral(lit, t)
			}
			return types.NewDate(uint32(n)), nil
		case parser.LitString:
			day, err := time.ParseInLocation("2006-01-02", lit.Text, time.UTC)
			if err != nil {
				return types.Null(), badLiteral(lit, t)
			}
			// The wire encoding centers the epoch at 2^31.
			days := day.Unix() / 86400
			return types.NewDate(uint32(days + 1<<31)), nil
		default:
			return types.Null(), badLiteral(lit, t)
		}

	case types.KindTime:
		switch lit.Kind {
		case parser.LitInteger:
			ns, err := strconv.ParseInt(lit.Text, 10, 64)
			if err != nil {
				return types.Null(), badLiteral(lit, t)
			}
			return types.NewTime(ns), nil
		case parser.LitString:
			ns, err := parseTimeOfDay(lit.Text)
			if err != nil {
				return types.Null(), badLiteral(lit, t)
			}
			return types.NewTime(ns), nil
		default:
			return types.Null(), badLiteral(lit, t)
		}

	case types.KindInet:
		if lit.Kind != parser.LitString {
			return types.Null(), badLiteral(lit, t)
		}
		ip := net.ParseIP(lit.Text)
		if ip == nil {
			return types.Null(), badLiteral(lit, t)
		}
		return types.NewInet(ip), nil

	case types.KindList, types.KindSet:
		return collectionFromLiteral(lit, t)

	case types.KindMap:
		return mapFromLiteral(lit, t)

	case types.KindTuple:
		if lit.Kind != parser.LitTuple {
			return types.Null(), badLiteral(lit, t)
		}
		if len(lit.Elems) != len(t.Fields) {
			return types.Null(), errors.Newf(errors.ErrCategoryType, errors.CodeBadLiteral,
				"tuple literal has %d fields, %s needs %d", len(lit.Elems), t, len(t.Fields))
		}
		fields := make([]types.Value, len(lit.Elems))
		for i, e := range lit.Elems {
			f, err := literalElement(e, t.Fields[i])
			if err != nil {
				return types.Null(), err
			}
			fields[i] = f
		}
		return types.NewTuple(fields), nil

	default:
		return types.Null(), badLiteral(lit, t)
	}
}

func integerValue(kind types.Kind, n int64) (types.Value, error) {
	rangeErr := func(bits int) error {
		return errors.Newf(errors.ErrCategoryType, errors.CodeBadLiteral,
			"%d out of range for a %d-bit integer", n, bits)
	}
	switch kind {
	case types.KindTinyint:
		if n < math.MinInt8 || n > math.MaxInt8 {
			return types.Null(), rangeErr(8)
		}
		return types.NewTinyint(int8(n)), nil
	case types.KindSmallint:
		if n < math.MinInt16 || n > math.MaxInt16 {
			return types.Null(), rangeErr(16)
		}
		return types.NewSmallint(int16(n)), nil
	case types.KindInt:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return types.Null(), rangeErr(32)
		}
		return types.NewInt(int32(n)), nil
	case types.KindCounter:
		return types.NewCounter(n), nil
	default:
		return types.NewBigint(n), nil
	}
}

func decimalFromText(text string) (types.Value, error) {
	digits := text
	scale := int32(0)
	if i := strings.IndexByte(digits, '.'); i >= 0 {
		scale = int32(len(digits) - i - 1)
		digits = digits[:i] + digits[i+1:]
	}
	unscaled, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return types.Null(), errors.Newf(errors.ErrCategoryType, errors.CodeBadLiteral,
			"cannot parse %q as a decimal", text)
	}
	return types.NewDecimal(unscaled, scale), nil
}

// collectionFromLiteral accepts the matching bracket form plus the empty
// brace literal, whose collection kind is decided by the declared type.
func collectionFromLiteral(lit *parser.Literal, t types.ColumnType) (types.Value, error) {
	emptyBraces := lit.Kind == parser.LitMap && len(lit.Entries) == 0
	switch {
	case t.Kind == types.KindList && lit.Kind != parser.LitList && !emptyBraces:
		return types.Null(), badLiteral(lit, t)
	case t.Kind == types.KindSet && lit.Kind != parser.LitSet && !emptyBraces:
		return types.Null(), badLiteral(lit, t)
	}
	elems := make([]types.Value, 0, len(lit.Elems))
	for _, e := range lit.Elems {
		v, err := literalElement(e, *t.Elem)
		if err != nil {
			return types.Null(), err
		}
		elems = append(elems, v)
	}
	if t.Kind == types.KindSet {
		return types.NewSet(elems), nil
	}
	return types.NewList(elems), nil
}

func mapFromLiteral(lit *parser.Literal, t types.ColumnType) (types.Value, error) {
	if lit.Kind != parser.LitMap {
		return types.Null(), badLiteral(lit, t)
	}
	pairs := make([]types.Pair, 0, len(lit.Entries))
	for _, entry := range lit.Entries {
		k, err := literalElement(entry.Key, *t.Key)
		if err != nil {
			return types.Null(), err
		}
		v, err := literalElement(entry.Val, *t.Val)
		if err != nil {
			return types.Null(), err
		}
		pairs = append(pairs, types.Pair{Key: k, Val: v})
	}
	return types.NewMap(pairs), nil
}

// literalElement coerces a collection element, rejecting nulls and bind
// markers inside literals.
func literalElement(term parser.Term, t types.ColumnType) (types.Value, error) {
	lit, ok := term.(*parser.Literal)
	if !ok {
		return types.Null(), errors.NewTypeError(errors.CodeBadLiteral,
			"bind markers are not supported inside collection literals")
	}
	if lit.Kind == parser.LitNull {
		return types.Null(), errors.NewTypeError(errors.CodeNullElement,
			"null elements are not allowed inside collections")
	}
	return FromLiteral(lit, t)
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999Z0700",
	"2006-01-02T15:04:05.999999Z0700",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04Z0700",
	"2006-01-02 15:04",
	"2006-01-02Z0700",
	"2006-01-02",
}

// parseTimestamp parses the CQL timestamp string forms into epoch
// milliseconds. Layouts without a zone are read as UTC.
func parseTimestamp(s string) (int64, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UnixMilli(), nil
		}
	}
	return 0, errors.Newf(errors.ErrCategoryType, errors.CodeBadLiteral,
		"cannot parse %q as a timestamp", s)
}

// parseTimeOfDay parses "hh:mm:ss[.fffffffff]" into nanoseconds since
// midnight.
func parseTimeOfDay(s string) (int64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, errors.Newf(errors.ErrCategoryType, errors.CodeBadLiteral,
			"cannot parse %q as a time", s)
	}
	secPart := parts[2]
	nanos := int64(0)
	if i := strings.IndexByte(secPart, '.'); i >= 0 {
		frac := secPart[i+1:]
		secPart = secPart[:i]
		for len(frac) < 9 {
			frac += "0"
		}
		n, err := strconv.ParseInt(frac[:9], 10, 64)
		if err != nil {
			return 0, errors.Newf(errors.ErrCategoryType, errors.CodeBadLiteral,
				"cannot parse %q as a time", s)
		}
		nanos = n
	}
	h, err1 := strconv.ParseInt(parts[0], 10, 64)
	m, err2 := strconv.ParseInt(parts[1], 10, 64)
	sec, err3 := strconv.ParseInt(secPart, 10, 64)
	if err1 != nil || err2 != nil || err3 != nil ||
		h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, errors.Newf(errors.ErrCategoryType, errors.CodeBadLiteral,
			"cannot parse %q as a time", s)
	}
	return ((h*60+m)*60+sec)*1e9 + nanos, nil
}
