package validate

// secondsThreshold is the boundary below which a unix timestamp is assumed
// to be expressed in seconds rather than milliseconds. 10^12 ms is roughly
// the year 2001 in ms-since-epoch; any legitimate ms timestamp for current
// telemetry is well above it, and any legitimate seconds timestamp is well
// below it.
const secondsThreshold = 1_000_000_000_000

// NormalizeTimestampMs converts a Sparkplug timestamp (which may already be
// milliseconds, or may have arrived in seconds) to milliseconds-since-epoch.
// Values already >= the threshold are assumed to be milliseconds and
// returned unchanged — this also covers 64-bit big-integer timestamps at
// or above 2^53 without crashing; precision loss up there is acceptable,
// not a fatal error.
func NormalizeTimestampMs(ts int64) int64 {
	if ts == 0 {
		return 0
	}
	if ts < secondsThreshold {
		return ts * 1000
	}
	return ts
}

// AutoInterval computes the auto-bucket interval in seconds for a windowed
// query, given the window span in milliseconds and the requested sample
// count. The minimum interval is always 1 second — samples<=0 must never
// produce a zero-second interval, which would make the bucket arithmetic
// divide by zero downstream.
func AutoInterval(spanMs int64, samples int) int64 {
	if samples <= 0 {
		samples = 100
	}
	interval := spanMs / (1000 * int64(samples))
	if interval < 1 {
		return 1
	}
	return interval
}
