package timeline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// timestampLayout is the wire format used for occurred_at in eventRow; RFC3339Nano
// round-trips through Postgres's timestamptz without losing sub-second precision.
const timestampLayout = time.RFC3339Nano

func newUUID() string { return uuid.NewString() }

func nowUTC() time.Time { return time.Now().UTC() }

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

// decodeJSONColumn defensively decodes a JSON-encoded text column into dst.
// A decode failure yields "absent" rather than bubbling up: a nil or
// empty raw value, or one that fails to unmarshal, leaves dst at its zero
// value and returns false instead of an error. Callers treat false as "no
// data stored", not as a fault.
func decodeJSONColumn(raw []byte, dst interface{}) bool {
	if len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false
	}
	return true
}

// encodeJSONColumn marshals v for storage in a text column. A marshal
// failure (only possible for values containing channels/funcs/cycles, which
// none of our domain types do) yields an empty column rather than a
// write-time error, matching decodeJSONColumn's "absent, not fatal" stance.
func encodeJSONColumn(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
