package types

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func TestCompare_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("bigint compare is antisymmetric", prop.ForAll(
		func(a, b int64) bool {
			return sign(NewBigint(a).Compare(NewBigint(b))) == -sign(NewBigint(b).Compare(NewBigint(a)))
		},
		gen.Int64(), gen.Int64(),
	))

	properties.Property("bigint compare agrees with integer order", prop.ForAll(
		func(a, b int64) bool {
			got := sign(NewBigint(a).Compare(NewBigint(b)))
			switch {
			case a < b:
				return got == -1
			case a > b:
				return got == 1
			default:
				return got == 0
			}
		},
		gen.Int64(), gen.Int64(),
	))

	properties.Property("text compare is transitive", prop.ForAll(
		func(a, b, c string) bool {
			x, y, z := NewText(a), NewText(b), NewText(c)
			if x.Compare(y) <= 0 && y.Compare(z) <= 0 {
				return x.Compare(z) <= 0
			}
			return true
		},
		gen.AnyString(), gen.AnyString(), gen.AnyString(),
	))

	properties.Property("equal means compare zero", prop.ForAll(
		func(s string) bool {
			return NewText(s).Equal(NewText(s)) && NewText(s).Compare(NewText(s)) == 0
		},
		gen.AnyString(),
	))

	properties.Property("blob compare is reflexive and antisymmetric", prop.ForAll(
		func(a, b []byte) bool {
			x, y := NewBlob(a), NewBlob(b)
			return x.Compare(x) == 0 && sign(x.Compare(y)) == -sign(y.Compare(x))
		},
		gen.SliceOf(gen.UInt8()), gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
