package imsg

import "time"

// appleEpochOffset is 2001-01-01T00:00:00Z in Unix seconds.
const appleEpochOffset int64 = 978307200

const nanosPerSecond int64 = 1_000_000_000

// ToTime converts a chat.db date value (nanoseconds since 2001-01-01 UTC)
// to a UTC time. Use Local() on the result for display.
func ToTime(ticks int64) time.Time {
	return time.Unix(appleEpochOffset+ticks/nanosPerSecond, ticks%nanosPerSecond).UTC()
}

// FromTime is the inverse of ToTime.
func FromTime(t time.Time) int64 {
	return (t.Unix()-appleEpochOffset)*nanosPerSecond + int64(t.Nanosecond())
}
