package stalls

import (
	"strings"
	"unicode"
)

// NaturalLess orders stall numbers the way they are painted on the ground:
// letter prefixes compare as text and digit runs compare numerically, so
// A2 < A10 < B1.
func NaturalLess(a, b string) bool {
	ca, cb := chunks(a), chunks(b)
	for i := 0; i < len(ca) && i < len(cb); i++ {
		x, y := ca[i], cb[i]
		if x == y {
			continue
		}
		xNum, yNum := isDigits(x), isDigits(y)
		if xNum && yNum {
			tx, ty := strings.TrimLeft(x, "0"), strings.TrimLeft(y, "0")
			if len(tx) != len(ty) {
				return len(tx) < len(ty)
			}
			if tx != ty {
				return tx < ty
			}
			// 07 vs 7: fewer leading zeros first
			return len(x) < len(y)
		}
		if xNum != yNum {
			return xNum
		}
		return x < y
	}
	if len(ca) != len(cb) {
		return len(ca) < len(cb)
	}
	return a < b
}

func chunks(s string) []string {
	var out []string
	var b strings.Builder
	prevDigit := false
	for i, r := range s {
		digit := unicode.IsDigit(r)
		if i > 0 && digit != prevDigit {
			out = append(out, b.String())
			b.Reset()
		}
		b.WriteRune(r)
		prevDigit = digit
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
