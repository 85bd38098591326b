package cypher

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// ErrUnsupportedValue is returned when a Go value has no Cypher equivalent.
var ErrUnsupportedValue = errors.New("unsupported value type")

const (
	dateLayout          = "2006-01-02"
	localTimeLayout     = "15:04:05.999999999"
	offsetTimeLayout    = "15:04:05.999999999Z07:00"
	localDateTimeLayout = "2006-01-02T15:04:05.999999999"
)

// Literal renders value as Cypher source: strings are quoted and escaped,
// numbers and booleans are emitted raw, temporal values become type-tagged
// literals such as date('2024-01-31').
func Literal(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(v).Int(), 10)
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(v).Uint(), 10)
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case time.Time:
		return "datetime(" + Quote(v.Format(time.RFC3339Nano)) + ")"
	case dbtype.Date:
		return "date(" + Quote(v.Time().Format(dateLayout)) + ")"
	case dbtype.LocalTime:
		return "localtime(" + Quote(v.Time().Format(localTimeLayout)) + ")"
	case dbtype.Time:
		return "time(" + Quote(v.Time().Format(offsetTimeLayout)) + ")"
	case dbtype.LocalDateTime:
		return "localdatetime(" + Quote(v.Time().Format(localDateTimeLayout)) + ")"
	case dbtype.Duration:
		return "duration(" + Quote(v.String()) + ")"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+Literal(v[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = Literal(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return Quote(fmt.Sprint(value))
}

// Quote wraps s in single quotes, escaping backslashes and quotes.
func Quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "0.0/0.0"
	case math.IsInf(f, 1):
		return "1.0/0.0"
	case math.IsInf(f, -1):
		return "-1.0/0.0"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Normalize converts value into a form the driver accepts as a property
// value: sized integers become int64, float32 becomes float64, typed slices
// become []any. Maps and nested lists are rejected because the store cannot
// hold them as property values.
func Normalize(value any) (any, error) {
	return normalize(value, false)
}

func normalize(value any, nested bool) (any, error) {
	switch v := value.(type) {
	case nil, string, bool, int64, float64, time.Time,
		dbtype.Date, dbtype.LocalTime, dbtype.Time, dbtype.LocalDateTime, dbtype.Duration:
		return v, nil
	case int:
		return int64(v), nil
	case int8, int16, int32:
		return reflect.ValueOf(v).Int(), nil
	case uint8, uint16, uint32:
		return int64(reflect.ValueOf(v).Uint()), nil
	case uint:
		return uintToInt64(uint64(v))
	case uint64:
		return uintToInt64(v)
	case float32:
		return float64(v), nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if nested {
			return nil, fmt.Errorf("%w: nested list", ErrUnsupportedValue)
		}
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes(), nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := normalize(rv.Index(i).Interface(), true)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
}

func uintToInt64(v uint64) (any, error) {
	if v > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, v)
	}
	return int64(v), nil
}
