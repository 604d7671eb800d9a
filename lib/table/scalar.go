package table

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// TimeLayout is how time values are rendered when they leave the process,
// the dockers expect the same "YYYY-MM-DD hh:mm:ss" text pandas produces.
const TimeLayout = "2006-01-02 15:04:05"

// Scalar converts a value into something that is safe to put on the wire,
// values that are not JSON primitives are rendered as strings.
func Scalar(v any) any {
	switch v := v.(type) {
	case nil, string, bool, int64, float64:
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		if v > math.MaxInt64 {
			return strconv.FormatUint(v, 10)
		}
		return int64(v)
	case float32:
		return float64(v)
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(TimeLayout)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.Format(TimeLayout)
	case orb.Point:
		return wkt.MarshalString(v)
	case []any, map[string]any:
		// nested docker values stay readable as JSON text
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// KeyString renders a join key value canonically, so that the same id
// compares equal whether it came out of the store as an int64 or back from
// a docker as a JSON number.
func KeyString(v any) string {
	switch s := Scalar(v).(type) {
	case nil:
		return "\x00null"
	case string:
		return s
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		if s == math.Trunc(s) && math.Abs(s) < 1<<53 {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(s)
	}
}

// Point reads a coordinate pair out of a row. ok is false when either value
// is missing, not numeric or out of range.
func Point(r Row, latColumn, lonColumn string) (orb.Point, bool) {
	lat, ok := toFloat(r[latColumn])
	if !ok || lat < -90 || lat > 90 {
		return orb.Point{}, false
	}
	lon, ok := toFloat(r[lonColumn])
	if !ok || lon < -180 || lon > 180 {
		return orb.Point{}, false
	}
	return orb.Point{lon, lat}, true
}

func toFloat(v any) (float64, bool) {
	switch v := Scalar(v).(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, !math.IsNaN(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
