package media

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

type Rational struct {
	Num int
	Den int
}

func NewRational(num, den int) Rational {
	return Rational{Num: num, Den: den}
}

func (r Rational) IsZero() bool {
	return r.Num == 0 || r.Den == 0
}

func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) Invert() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// ParseRational accepts "num/den", "num:den" or a plain integer.
func ParseRational(s string) (Rational, error) {
	sep := strings.IndexAny(s, "/:")
	if sep < 0 {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Rational{}, fmt.Errorf("invalid rational %q: %w", s, ErrInvalidFormat)
		}
		return Rational{Num: n, Den: 1}, nil
	}

	num, err1 := strconv.Atoi(s[:sep])
	den, err2 := strconv.Atoi(s[sep+1:])
	if err1 != nil || err2 != nil {
		return Rational{}, fmt.Errorf("invalid rational %q: %w", s, ErrInvalidFormat)
	}
	return Rational{Num: num, Den: den}, nil
}

// Rescale converts v from time base from to time base to, rounding to the
// nearest value. NoTimestamp passes through unchanged.
func Rescale(v int64, from, to Rational) int64 {
	if v == NoTimestamp || from.IsZero() || to.IsZero() || from == to {
		return v
	}

	n := new(big.Int).Mul(big.NewInt(v), big.NewInt(int64(from.Num)*int64(to.Den)))
	d := big.NewInt(int64(from.Den) * int64(to.Num))
	if d.Sign() < 0 {
		n.Neg(n)
		d.Neg(d)
	}

	half := new(big.Int).Rsh(d, 1)
	if n.Sign() >= 0 {
		n.Add(n, half)
	} else {
		n.Sub(n, half)
	}
	return n.Quo(n, d).Int64()
}
