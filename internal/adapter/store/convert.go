package store

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
)

// Cell values arrive as whatever the driver produced: int64, float64, string,
// []byte, bool, time.Time or nil. Anything that is not a usable number counts
// as missing.

func cellString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		if math.IsNaN(x) {
			return "", false
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	case time.Time:
		return x.Format(time.RFC3339), true
	default:
		return "", false
	}
}

func cellFloat(v any) domain.OptFloat {
	switch x := v.(type) {
	case int64:
		return domain.Float(float64(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return domain.OptFloat{}
		}
		return domain.Float(x)
	case string, []byte:
		s, _ := cellString(x)
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return domain.OptFloat{}
		}
		return domain.Float(f)
	default:
		return domain.OptFloat{}
	}
}

// cellInt accepts integral floats such as 1990.0, which is how date parts
// stored next to missing values usually come back.
func cellInt(v any) domain.OptInt {
	f := cellFloat(v)
	if !f.Valid || f.Value != math.Trunc(f.Value) {
		return domain.OptInt{}
	}
	return domain.Int(int(f.Value))
}

func cellArea(v any) domain.AreaValue {
	s, ok := cellString(v)
	if !ok {
		return domain.AreaAbsent()
	}
	return domain.AreaText(s)
}

// cellValue keeps pass-through attributes readable: byte slices become text.
func cellValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
