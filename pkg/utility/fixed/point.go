package fixed

import (
	"github.com/govalues/decimal"
)

// nanoScale is the scale of the units+nano wire representation: one unit
// equals 1e9 nano.
const nanoScale = 9

// Point is an unsafe wrapper around decimal implementation. Caller must make sure the calculations
// are correct and will not result in an error state, otherwise it will panic
type Point struct {
	v decimal.Decimal
}

var (
	Zero    = Point{decimal.MustNew(0, 0)}
	One     = Point{decimal.MustNew(1, 0)}
	Hundred = Point{decimal.MustNew(100, 0)}
)

func FromInt(value int, scale int) Point {
	return Point{decimal.MustNew(int64(value), scale)}
}

func FromInt64(value int64, scale int) Point {
	return Point{decimal.MustNew(value, scale)}
}

func FromFloat64(value float64) Point {
	return Point{must(decimal.NewFromFloat64(value))}
}

// FromUnitsNano builds a point from the split representation used on the
// wire and in cache files: an integer part and a nanosecond-scaled
// fractional part, both carrying the sign.
func FromUnitsNano(units int64, nano int32) Point {
	whole := must(decimal.New(units, 0))
	frac := must(decimal.New(int64(nano), nanoScale))
	return Point{must(whole.Add(frac))}
}

func Parse(s string) (Point, error) {
	d, err := decimal.Parse(s)
	if err != nil {
		return Point{}, err
	}
	return Point{d}, nil
}

func (p Point) String() string           { return p.v.String() }
func (p Point) Float64() (float64, bool) { return p.v.Float64() }

// UnitsNano splits the point into integer units and a nano fraction.
// Both parts carry the sign of the value.
func (p Point) UnitsNano() (int64, int32) {
	units, nano, ok := p.v.Int64(nanoScale)
	if !ok {
		panic("fixed: value does not fit units+nano representation")
	}
	return units, int32(nano)
}

func (p Point) Abs() Point { return Point{p.v.Abs()} }
func (p Point) Neg() Point { return Point{p.v.Neg()} }

func (p Point) Add(o Point) Point { return Point{must(p.v.Add(o.v))} }
func (p Point) Sub(o Point) Point { return Point{must(p.v.Sub(o.v))} }
func (p Point) Mul(o Point) Point { return Point{must(p.v.Mul(o.v))} }
func (p Point) Div(o Point) Point { return Point{must(p.v.Quo(o.v))} }

func (p Point) MulInt64(o int64) Point { return Point{must(p.v.Mul(decimal.MustNew(o, 0)))} }
func (p Point) DivInt64(o int64) Point { return Point{must(p.v.Quo(decimal.MustNew(o, 0)))} }

func (p Point) Eq(o Point) bool  { return p.v.Cmp(o.v) == 0 }
func (p Point) Gt(o Point) bool  { return p.v.Cmp(o.v) > 0 }
func (p Point) Lt(o Point) bool  { return p.v.Cmp(o.v) < 0 }
func (p Point) Gte(o Point) bool { return p.v.Cmp(o.v) >= 0 }
func (p Point) Lte(o Point) bool { return p.v.Cmp(o.v) <= 0 }

func (p Point) IsZero() bool { return p.v.IsZero() }
func (p Point) IsNeg() bool  { return p.v.IsNeg() }

func (p Point) Rescale(scale int) Point { return Point{p.v.Rescale(scale)} }

func (p Point) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Point) UnmarshalText(data []byte) error {
	d, err := decimal.Parse(string(data))
	if err != nil {
		return err
	}
	p.v = d
	return nil
}

func must(v decimal.Decimal, err error) decimal.Decimal {
	if err == nil {
		// Return in the happy path
		return v
	}
	panic(err)
}
