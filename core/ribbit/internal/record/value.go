package record

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Normalize converts a Go value into one of the stored kinds:
// nil, int64, float64, string or []byte.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, int64, float64, string, []byte:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", x)
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", x)
		}
		return int64(x), nil
	case float32:
		return float64(x), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case Other:
		return x, nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

// TypeName returns the SQL storage class name of a stored value.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "NULL"
	case int64:
		return "INTEGER"
	case float64:
		return "REAL"
	case string:
		return "TEXT"
	case []byte:
		return "BLOB"
	}
	return fmt.Sprintf("%T", v)
}

// class orders storage classes for Compare. NULL sorts as the integer 0.
func class(v any) int {
	switch v.(type) {
	case nil, int64, float64:
		return 0
	case string, Other:
		return 1
	case []byte:
		return 2
	}
	return 3
}

func numeric(v any) (float64, int64, bool, bool) {
	switch x := v.(type) {
	case nil:
		return 0, 0, true, true
	case int64:
		return float64(x), x, true, true
	case float64:
		return x, 0, false, true
	}
	return 0, 0, false, false
}

// Compare totally orders stored values: numbers (NULL counts as 0) before
// text before blobs. Integers and reals compare numerically.
func Compare(a, b any) int {
	ca, cb := class(a), class(b)
	if ca != cb {
		return cmp.Compare(ca, cb)
	}
	switch ca {
	case 0:
		fa, ia, aInt, _ := numeric(a)
		fb, ib, bInt, _ := numeric(b)
		if aInt && bInt {
			return cmp.Compare(ia, ib)
		}
		return cmp.Compare(fa, fb)
	case 1:
		return strings.Compare(textOf(a), textOf(b))
	case 2:
		return bytes.Compare(a.([]byte), b.([]byte))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func textOf(v any) string {
	if o, ok := v.(Other); ok {
		return string(o)
	}
	return v.(string)
}

// Comparable reports whether an ordering comparison between a and b is
// meaningful: both non-NULL and both numeric, both text or both blobs.
func Comparable(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	return class(a) == class(b)
}

// Equal reports value equality. Integers equal reals of the same value and
// two NULLs are equal.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if class(a) != class(b) {
		return false
	}
	return Compare(a, b) == 0
}

// Format renders a value for display.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	case []byte:
		return fmt.Sprintf("x'%x'", x)
	}
	return fmt.Sprint(v)
}

// Key returns a comparable map key for v. Blobs are prefixed so they never
// collide with text of the same bytes.
func Key(v any) any {
	switch x := v.(type) {
	case []byte:
		return "\x00blob:" + string(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
	}
	return v
}
