// Package types provides the core CQL data types for minicql: the Value
// tagged union over the native type domain and the ColumnType descriptor.
package types

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind is the runtime tag of a Value.
type Kind uint8

const (
	// KindNull marks an absent value. It is distinct from KindUnset.
	KindNull Kind = iota

	// KindUnset marks a bound parameter explicitly left unchanged.
	// It is only meaningful during binding and is never stored.
	KindUnset

	KindBoolean
	KindTinyint
	KindSmallint
	KindInt
	KindBigint
	KindCounter
	KindVarint
	KindDecimal
	KindFloat
	KindDouble
	KindAscii
	KindText
	KindBlob
	KindUuid
	KindTimeuuid
	KindTimestamp
	KindDate
	KindTime
	KindInet
	KindList
	KindSet
	KindMap
	KindTuple
)

// String returns the CQL name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindUnset:
		return "unset"
	case KindBoolean:
		return "boolean"
	case KindTinyint:
		return "tinyint"
	case KindSmallint:
		return "smallint"
	case KindInt:
		return "int"
	case KindBigint:
		return "bigint"
	case KindCounter:
		return "counter"
	case KindVarint:
		return "varint"
	case KindDecimal:
		return "decimal"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindAscii:
		return "ascii"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	case KindUuid:
		return "uuid"
	case KindTimeuuid:
		return "timeuuid"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindInet:
		return "inet"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindMap:
		return "map"
	case KindTuple:
		return "tuple"
	default:
		return "unknown"
	}
}

// Pair is a single map entry.
type Pair struct {
	Key Value
	Val Value
}

// Value is a tagged union over the native CQL type domain. Exactly the fields
// implied by Kind are meaningful; the rest stay zero. Values are immutable by
// convention: storage and executor copy them instead of mutating in place.
type Value struct {
	// Kind is the runtime tag.
	Kind Kind

	// Bool holds boolean.
	Bool bool

	// Int holds tinyint, smallint, int, bigint, counter, timestamp
	// (milliseconds since epoch), time (nanoseconds since midnight) and
	// date (raw unsigned day count, epoch-centered at 1<<31).
	Int int64

	// Float holds float and double. The bit pattern is preserved on
	// round-trips so NaN payloads survive.
	Float float64

	// Text holds ascii and text.
	Text string

	// Bytes holds blob contents, the minimal two's-complement big-endian
	// form of varint and of the decimal unscaled value, and the 4- or
	// 16-byte form of inet.
	Bytes []byte

	// UUID holds uuid and timeuuid.
	UUID [16]byte

	// Scale is the decimal scale.
	Scale int32

	// Elems holds list and set elements and tuple fields, in order.
	Elems []Value

	// Pairs holds map entries sorted by key.
	Pairs []Pair
}

// Null is the null value.
func Null() Value { return Value{Kind: KindNull} }

// Unset is the "not set" bind marker value.
func Unset() Value { return Value{Kind: KindUnset} }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsUnset reports whether the value is the "not set" marker.
func (v Value) IsUnset() bool { return v.Kind == KindUnset }

// NewBoolean returns a boolean value.
func NewBoolean(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }

// NewTinyint returns a tinyint value.
func NewTinyint(i int8) Value { return Value{Kind: KindTinyint, Int: int64(i)} }

// NewSmallint returns a smallint value.
func NewSmallint(i int16) Value { return Value{Kind: KindSmallint, Int: int64(i)} }

// NewInt returns an int value.
func NewInt(i int32) Value { return Value{Kind: KindInt, Int: int64(i)} }

// NewBigint returns a bigint value.
func NewBigint(i int64) Value { return Value{Kind: KindBigint, Int: i} }

// NewCounter returns a counter value.
func NewCounter(i int64) Value { return Value{Kind: KindCounter, Int: i} }

// NewVarint returns a varint value from a big integer.
func NewVarint(i *big.Int) Value {
	return Value{Kind: KindVarint, Bytes: bigIntBytes(i)}
}

// NewDecimal returns a decimal value from an unscaled big integer and a scale.
func NewDecimal(unscaled *big.Int, scale int32) Value {
	return Value{Kind: KindDecimal, Bytes: bigIntBytes(unscaled), Scale: scale}
}

// NewFloat returns a float value.
func NewFloat(f float32) Value { return Value{Kind: KindFloat, Float: float64(f)} }

// NewDouble returns a double value.
func NewDouble(f float64) Value { return Value{Kind: KindDouble, Float: f} }

// NewAscii returns an ascii value.
func NewAscii(s string) Value { return Value{Kind: KindAscii, Text: s} }

// NewText returns a text value.
func NewText(s string) Value { return Value{Kind: KindText, Text: s} }

// NewBlob returns a blob value.
func NewBlob(b []byte) Value { return Value{Kind: KindBlob, Bytes: b} }

// NewUuid returns a uuid value.
func NewUuid(u [16]byte) Value { return Value{Kind: KindUuid, UUID: u} }

// NewTimeuuid returns a timeuuid value.
func NewTimeuuid(u [16]byte) Value { return Value{Kind: KindTimeuuid, UUID: u} }

// NewTimestamp returns a timestamp value in milliseconds since the epoch.
func NewTimestamp(ms int64) Value { return Value{Kind: KindTimestamp, Int: ms} }

// NewDate returns a date value from the raw protocol day count
// (unsigned, with the epoch at 1<<31).
func NewDate(days uint32) Value { return Value{Kind: KindDate, Int: int64(days)} }

// NewTime returns a time value in nanoseconds since midnight.
func NewTime(ns int64) Value { return Value{Kind: KindTime, Int: ns} }

// NewInet returns an inet value. The address must be 4 or 16 bytes.
func NewInet(ip net.IP) Value {
	b := ip
	if v4 := ip.To4(); v4 != nil {
		b = v4
	}
	return Value{Kind: KindInet, Bytes: append([]byte(nil), b...)}
}

// NewList returns a list value.
func NewList(elems []Value) Value { return Value{Kind: KindList, Elems: elems} }

// NewSet returns a set value. Elements are sorted and deduplicated so that
// equal sets compare equal regardless of construction order.
func NewSet(elems []Value) Value {
	sorted := append([]Value(nil), elems...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })
	out := sorted[:0]
	for i, e := range sorted {
		if i == 0 || sorted[i-1].Compare(e) != 0 {
			out = append(out, e)
		}
	}
	return Value{Kind: KindSet, Elems: out}
}

// NewMap returns a map value. Entries are sorted by key; a duplicate key keeps
// the last value.
func NewMap(pairs []Pair) Value {
	sorted := append([]Pair(nil), pairs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key.Compare(sorted[j].Key) < 0 })
	out := sorted[:0]
	for _, p := range sorted {
		if n := len(out); n > 0 && out[n-1].Key.Compare(p.Key) == 0 {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return Value{Kind: KindMap, Pairs: out}
}

// NewTuple returns a tuple value.
func NewTuple(fields []Value) Value { return Value{Kind: KindTuple, Elems: fields} }

// Compare defines a deterministic total order over values. Values of the same
// kind order by their natural CQL order; null sorts before everything, and
// mismatched kinds fall back to ordering by kind tag. The order is used for
// clustering-key sorting, set/map normalization and the equal-timestamp
// write tie-break, so it must never depend on map iteration or addresses.
func (v Value) Compare(o Value) int {
	if v.Kind != o.Kind {
		if v.Kind == KindNull {
			return -1
		}
		if o.Kind == KindNull {
			return 1
		}
		return int(v.Kind) - int(o.Kind)
	}
	switch v.Kind {
	case KindNull, KindUnset:
		return 0
	case KindBoolean:
		return boolCompare(v.Bool, o.Bool)
	case KindTinyint, KindSmallint, KindInt, KindBigint, KindCounter, KindTimestamp, KindTime, KindDate:
		return int64Compare(v.Int, o.Int)
	case KindFloat, KindDouble:
		return floatCompare(v.Float, o.Float)
	case KindAscii, KindText:
		return strings.Compare(v.Text, o.Text)
	case KindBlob, KindInet:
		return bytes.Compare(v.Bytes, o.Bytes)
	case KindVarint:
		return bigIntCompare(v.Bytes, o.Bytes)
	case KindDecimal:
		return decimalCompare(v, o)
	case KindUuid:
		return bytes.Compare(v.UUID[:], o.UUID[:])
	case KindTimeuuid:
		return timeuuidCompare(v.UUID, o.UUID)
	case KindList, KindSet, KindTuple:
		return sliceCompare(v.Elems, o.Elems)
	case KindMap:
		return pairsCompare(v.Pairs, o.Pairs)
	default:
		return 0
	}
}

// Equal reports whether two values are equal under Compare.
func (v Value) Equal(o Value) bool { return v.Compare(o) == 0 }

// String renders the value as a CQL-like literal. The rendering is stable and
// is what snapshots and JSON projection build on.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindUnset:
		return "unset"
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindTinyint, KindSmallint, KindInt, KindBigint, KindCounter, KindTimestamp, KindTime:
		return strconv.FormatInt(v.Int, 10)
	case KindDate:
		return strconv.FormatUint(uint64(uint32(v.Int)), 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 32)
	case KindDouble:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindAscii, KindText:
		return "'" + strings.ReplaceAll(v.Text, "'", "''") + "'"
	case KindBlob:
		return "0x" + hex.EncodeToString(v.Bytes)
	case KindInet:
		return "'" + net.IP(v.Bytes).String() + "'"
	case KindVarint:
		return v.BigInt().String()
	case KindDecimal:
		return decimalString(v.BigInt(), v.Scale)
	case KindUuid, KindTimeuuid:
		return uuid.UUID(v.UUID).String()
	case KindList:
		return bracketed("[", "]", v.Elems)
	case KindSet:
		return bracketed("{", "}", v.Elems)
	case KindTuple:
		return bracketed("(", ")", v.Elems)
	case KindMap:
		parts := make([]string, len(v.Pairs))
		for i, p := range v.Pairs {
			parts[i] = p.Key.String() + ": " + p.Val.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("<%s>", v.Kind)
	}
}

// BigInt reconstructs the big integer held by a varint or decimal value.
func (v Value) BigInt() *big.Int {
	return bigIntFromBytes(v.Bytes)
}

func bracketed(open, close string, elems []Value) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = e.String()
	}
	return open + strings.Join(parts, ", ") + close
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	default:
		return 1
	}
}

func int64Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func floatCompare(a, b float64) int {
	// NaN sorts after every other value; equal bit patterns compare equal.
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case math.Float64bits(a) == math.Float64bits(b):
		return 0
	case math.IsNaN(a) && !math.IsNaN(b):
		return 1
	case !math.IsNaN(a) && math.IsNaN(b):
		return -1
	default:
		return int64Compare(int64(math.Float64bits(a)), int64(math.Float64bits(b)))
	}
}

// timeuuidCompare orders version 1 uuids by their 60-bit timestamp, then
// by raw bytes. The timestamp is spread over the uuid as time_low (bytes
// 0-3), time_mid (4-5) and time_hi (6-7, low 12 bits), so a plain byte
// compare would order by the least significant part first.
func timeuuidCompare(a, b [16]byte) int {
	ta := timeuuidTimestamp(a)
	tb := timeuuidTimestamp(b)
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}
	return bytes.Compare(a[:], b[:])
}

func timeuuidTimestamp(u [16]byte) uint64 {
	low := uint64(binary.BigEndian.Uint32(u[0:4]))
	mid := uint64(binary.BigEndian.Uint16(u[4:6]))
	hi := uint64(binary.BigEndian.Uint16(u[6:8]) & 0x0fff)
	return hi<<48 | mid<<32 | low
}

func sliceCompare(a, b []Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func pairsCompare(a, b []Pair) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := a[i].Key.Compare(b[i].Key); c != 0 {
			return c
		}
		if c := a[i].Val.Compare(b[i].Val); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func bigIntCompare(a, b []byte) int {
	return bigIntFromBytes(a).Cmp(bigIntFromBytes(b))
}

func decimalCompare(a, b Value) int {
	// Align scales before comparing unscaled values.
	ai, bi := a.BigInt(), b.BigInt()
	if a.Scale == b.Scale {
		return ai.Cmp(bi)
	}
	if a.Scale < b.Scale {
		ai = new(big.Int).Mul(ai, pow10(b.Scale-a.Scale))
	} else {
		bi = new(big.Int).Mul(bi, pow10(a.Scale-b.Scale))
	}
	return ai.Cmp(bi)
}

func pow10(n int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func decimalString(unscaled *big.Int, scale int32) string {
	s := unscaled.String()
	if scale <= 0 {
		if scale < 0 {
			s += strings.Repeat("0", int(-scale))
		}
		return s
	}
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	for int32(len(digits)) <= scale {
		digits = "0" + digits
	}
	point := int32(len(digits)) - scale
	out := digits[:point] + "." + digits[point:]
	if neg {
		out = "-" + out
	}
	return out
}

// bigIntBytes returns the minimal two's-complement big-endian form of i.
func bigIntBytes(i *big.Int) []byte {
	if i == nil || i.Sign() == 0 {
		return []byte{0}
	}
	if i.Sign() > 0 {
		b := i.Bytes()
		if b[0]&0x80 != 0 {
			return append([]byte{0}, b...)
		}
		return b
	}
	// For a negative value x with n bytes of magnitude, the two's-complement
	// form is 2^(8n) + x, widened by one byte if the sign bit is not set.
	mag := new(big.Int).Neg(i)
	n := (mag.BitLen() + 7) / 8
	base := new(big.Int).Lsh(big.NewInt(1), uint(8*n))
	tc := new(big.Int).Add(base, i)
	b := tc.Bytes()
	for len(b) < n {
		b = append([]byte{0}, b...)
	}
	if b[0]&0x80 == 0 {
		b = append([]byte{0xff}, b...)
	}
	return b
}

// bigIntFromBytes decodes a minimal two's-complement big-endian integer.
func bigIntFromBytes(b []byte) *big.Int {
	if len(b) == 0 {
		return new(big.Int)
	}
	i := new(big.Int).SetBytes(b)
	if b[0]&0x80 != 0 {
		base := new(big.Int).Lsh(big.NewInt(1), uint(8*len(b)))
		i.Sub(i, base)
	}
	return i
}
