package tap

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ISOTimestampFormat is the bookmark format Clover replication values are written in.
// The fractional part is optional.
const ISOTimestampFormat = "2006-01-02T15:04:05.999999999Z"

// NormalizeTimestamp converts a replication key value into unix seconds.
// Accepted inputs are integers, integral floats, numeric strings and ISO 8601 UTC strings.
func NormalizeTimestamp(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		// bookmark values read back from a state file decode as float64
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidTimestamp, v)
		}
		return int64(v), nil
	case json.Number:
		return NormalizeTimestamp(v.String())
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, nil
		}
		t, err := time.Parse(ISOTimestampFormat, v)
		if err != nil {
			t, err = time.Parse(time.RFC3339Nano, v)
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, v)
		}
		return t.Unix(), nil
	default:
		return 0, fmt.Errorf("%w: the starting value is neither an integer nor a string (%T)", ErrInvalidTimestamp, value)
	}
}
