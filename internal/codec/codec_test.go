package codec

import (
	"bytes"
	"math/big"
	"net"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arkilian/minicql/internal/errors"
	"github.com/arkilian/minicql/pkg/types"
)

func mustType(t *testing.T, s string) types.ColumnType {
	t.Helper()
	ct, err := types.ParseType(s)
	if err != nil {
		t.Fatalf("ParseType(%q): %v", s, err)
	}
	return ct
}

func TestRoundTrip_Scalars(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		value   types.Value
		wantLen int
	}{
		{"boolean true", "boolean", types.NewBoolean(true), 1},
		{"boolean false", "boolean", types.NewBoolean(false), 1},
		{"tinyint", "tinyint", types.NewTinyint(-7), 1},
		{"smallint", "smallint", types.NewSmallint(-30000), 2},
		{"int", "int", types.NewInt(-123456), 4},
		{"bigint", "bigint", types.NewBigint(-9876543210), 8},
		{"counter", "counter", types.NewCounter(42), 8},
		{"float", "float", types.NewFloat(1.5), 4},
		{"double", "double", types.NewDouble(-2.25), 8},
		{"text", "text", types.NewText("héllo"), 6},
		{"ascii", "ascii", types.NewAscii("plain"), 5},
		{"empty text", "text", types.NewText(""), 0},
		{"blob", "blob", types.NewBlob([]byte{0x00, 0xff}), 2},
		{"timestamp", "timestamp", types.NewTimestamp(1735689600000), 8},
		{"date", "date", types.NewDate(1 << 31), 4},
		{"time", "time", types.NewTime(86399999999999), 8},
		{"uuid", "uuid", types.NewUuid([16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}), 16},
		{"inet v4", "inet", types.NewInet(net.IPv4(10, 0, 0, 1)), 4},
		{"varint small", "varint", types.NewVarint(big.NewInt(-1)), 1},
		{"varint boundary", "varint", types.NewVarint(big.NewInt(-129)), 2},
		{"decimal", "decimal", types.NewDecimal(big.NewInt(12345), 2), 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := mustType(t, tt.typ)
			data, err := Encode(tt.value, ct)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if len(data) != tt.wantLen {
				t.Errorf("encoded length = %d, want %d", len(data), tt.wantLen)
			}
			got, err := Decode(data, ct)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !got.Equal(tt.value) {
				t.Errorf("round trip = %s, want %s", got, tt.value)
			}
		})
	}
}

func TestEncode_FixedWidthLayout(t *testing.T) {
	data, err := Encode(types.NewInt(1), mustType(t, "int"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(data, []byte{0, 0, 0, 1}) {
		t.Errorf("int 1 = %x, want 00000001", data)
	}

	data, err = Encode(types.NewVarint(big.NewInt(-1)), mustType(t, "varint"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(data, []byte{0xff}) {
		t.Errorf("varint -1 = %x, want ff", data)
	}
}

func TestRoundTrip_Collections(t *testing.T) {
	tests := []struct {
		name  string
		typ   string
		value types.Value
	}{
		{
			"list of int",
			"list<int>",
			types.NewList([]types.Value{types.NewInt(1), types.NewInt(2), types.NewInt(1)}),
		},
		{
			"empty list",
			"list<text>",
			types.NewList(nil),
		},
		{
			"set of text",
			"set<text>",
			types.NewSet([]types.Value{types.NewText("b"), types.NewText("a"), types.NewText("b")}),
		},
		{
			"map text to bigint",
			"map<text, bigint>",
			types.NewMap([]types.Pair{
				{Key: types.NewText("y"), Val: types.NewBigint(2)},
				{Key: types.NewText("x"), Val: types.NewBigint(1)},
			}),
		},
		{
			"nested list",
			"list<list<int>>",
			types.NewList([]types.Value{
				types.NewList([]types.Value{types.NewInt(1)}),
				types.NewList(nil),
			}),
		},
		{
			"tuple",
			"tuple<int, text, boolean>",
			types.NewTuple([]types.Value{types.NewInt(7), types.NewText("x"), types.NewBoolean(true)}),
		},
		{
			"tuple with null field",
			"tuple<int, text>",
			types.NewTuple([]types.Value{types.Null(), types.NewText("x")}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := mustType(t, tt.typ)
			data, err := Encode(tt.value, ct)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(data, ct)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !got.Equal(tt.value) {
				t.Errorf("round trip = %s, want %s", got, tt.value)
			}
		})
	}
}

func TestDecode_SetDeduplicates(t *testing.T) {
	ct := mustType(t, "set<int>")
	raw := types.NewList([]types.Value{types.NewInt(3), types.NewInt(1), types.NewInt(3)})
	data, err := Encode(types.Value{Kind: types.KindSet, Elems: raw.Elems}, ct)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data, ct)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := types.NewSet([]types.Value{types.NewInt(1), types.NewInt(3)})
	if !got.Equal(want) {
		t.Errorf("decoded set = %s, want %s", got, want)
	}
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		typ      string
		value    types.Value
		wantCode string
	}{
		{"null body", "int", types.Null(), errors.CodeTypeMismatch},
		{"unset body", "int", types.Unset(), errors.CodeTypeMismatch},
		{"kind mismatch", "int", types.NewText("nope"), errors.CodeTypeMismatch},
		{
			"null list element", "list<int>",
			types.Value{Kind: types.KindList, Elems: []types.Value{types.Null()}},
			errors.CodeNullElement,
		},
		{
			"null map key", "map<text, int>",
			types.Value{Kind: types.KindMap, Pairs: []types.Pair{{Key: types.Null(), Val: types.NewInt(1)}}},
			errors.CodeNullElement,
		},
		{
			"tuple arity", "tuple<int, text>",
			types.NewTuple([]types.Value{types.NewInt(1)}),
			errors.CodeTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.value, mustType(t, tt.typ))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := errors.GetCode(err); got != tt.wantCode {
				t.Errorf("error code = %s, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		typ      string
		data     []byte
		wantCode string
	}{
		{"short int", "int", []byte{0, 1}, errors.CodeTruncatedData},
		{"short uuid", "uuid", make([]byte, 15), errors.CodeTruncatedData},
		{"trailing bytes", "int", []byte{0, 0, 0, 1, 9}, errors.CodeTypeMismatch},
		{"bad inet width", "inet", []byte{1, 2, 3}, errors.CodeTypeMismatch},
		{"short decimal", "decimal", []byte{0, 0}, errors.CodeTruncatedData},
		{"short list count", "list<int>", []byte{0, 0}, errors.CodeTruncatedData},
		{
			"null list element", "list<int>",
			[]byte{0, 0, 0, 1, 0xff, 0xff, 0xff, 0xff},
			errors.CodeNullElement,
		},
		{
			"truncated list element", "list<int>",
			[]byte{0, 0, 0, 1, 0, 0, 0, 4, 1, 2},
			errors.CodeTruncatedData,
		},
		{
			"negative count", "list<int>",
			[]byte{0xff, 0xff, 0xff, 0xfe},
			errors.CodeTypeMismatch,
		},
		{
			"list count beyond body", "list<int>",
			[]byte{0x7f, 0xff, 0xff, 0xff, 0, 0, 0, 4},
			errors.CodeTruncatedData,
		},
		{
			"set count beyond body", "set<text>",
			[]byte{0x00, 0x10, 0x00, 0x00},
			errors.CodeTruncatedData,
		},
		{
			"map count beyond body", "map<text,int>",
			[]byte{0x7f, 0xff, 0xff, 0xff, 0, 0, 0, 1, 'a'},
			errors.CodeTruncatedData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, mustType(t, tt.typ))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := errors.GetCode(err); got != tt.wantCode {
				t.Errorf("error code = %s, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestRoundTrip_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	roundTrips := func(v types.Value, typ string) bool {
		ct, err := types.ParseType(typ)
		if err != nil {
			return false
		}
		data, err := Encode(v, ct)
		if err != nil {
			return false
		}
		got, err := Decode(data, ct)
		if err != nil {
			return false
		}
		return got.Equal(v)
	}

	properties.Property("bigint values round trip", prop.ForAll(
		func(n int64) bool {
			return roundTrips(types.NewBigint(n), "bigint")
		},
		gen.Int64(),
	))

	properties.Property("text values round trip", prop.ForAll(
		func(s string) bool {
			return roundTrips(types.NewText(s), "text")
		},
		gen.AnyString(),
	))

	properties.Property("varint values round trip", prop.ForAll(
		func(n int64) bool {
			return roundTrips(types.NewVarint(big.NewInt(n)), "varint")
		},
		gen.Int64(),
	))

	properties.Property("double bit patterns round trip", prop.ForAll(
		func(f float64) bool {
			return roundTrips(types.NewDouble(f), "double")
		},
		gen.Float64(),
	))

	properties.Property("int lists round trip", prop.ForAll(
		func(ns []int32) bool {
			elems := make([]types.Value, len(ns))
			for i, n := range ns {
				elems[i] = types.NewInt(n)
			}
			return roundTrips(types.NewList(elems), "list<int>")
		},
		gen.SliceOf(gen.Int32()),
	))

	properties.TestingRun(t)
}
