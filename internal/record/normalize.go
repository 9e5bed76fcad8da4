package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var (
	validStatuses = map[int64]bool{
		int64(StatusPending):    true,
		int64(StatusInProgress): true,
		int64(StatusDone):       true,
		int64(StatusFailed):     true,
		int64(StatusMixed):      true,
	}
	validMediaTypes = map[int64]bool{
		int64(MediaGallery): true,
		int64(MediaImage):   true,
		int64(MediaVideo):   true,
		int64(MediaAudio):   true,
		int64(MediaText):    true,
	}
)

// maxUnixSeconds bounds date fields to a representable calendar date
// (year 9999). Anything past it is treated as garbage.
const maxUnixSeconds = 253402300799

// asInt64 coerces the numeric shapes encoding/json can produce.
// Floats with a fractional part are not valid ids or enum values.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		i := int64(n)
		if float64(i) != n {
			return 0, false
		}
		return i, true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func normalizeID(v any) int64 {
	if n, ok := asInt64(v); ok && n >= 0 {
		return n
	}
	return InvalidID
}

func normalizeText(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func normalizeEnum(v any, valid map[int64]bool) int64 {
	if n, ok := asInt64(v); ok && valid[n] {
		return n
	}
	return -1
}

func normalizeTime(v any) int64 {
	n, ok := asInt64(v)
	if !ok || n < 0 || n > maxUnixSeconds {
		return UnsetTime
	}
	return n
}

func formatTime(secs int64) string {
	if secs == UnsetTime {
		return "-"
	}
	return time.Unix(secs, 0).Local().Format("2006-01-02 15:04:05")
}

// FormatDuration renders an elapsed span in coarse human units for the
// start-time tooltip ("2h 13m", "45s").
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd %dh", d/(24*time.Hour), (d%(24*time.Hour))/time.Hour)
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", d/time.Hour, (d%time.Hour)/time.Minute)
	case d >= time.Minute:
		return fmt.Sprintf("%dm %ds", d/time.Minute, (d%time.Minute)/time.Second)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}
