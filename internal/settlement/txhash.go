package settlement

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

// NewTxHash returns "0x" followed by 64 lowercase hex digits.
//
// Settlement is simulated, so the value only needs to look like a transaction
// hash and be unique with overwhelming probability. It comes from math/rand
// and must not be used for anything security sensitive.
func NewTxHash() string {
	return fmt.Sprintf("0x%016x%016x%016x%016x", rand.Uint64(), rand.Uint64(), rand.Uint64(), rand.Uint64())
}

func ValidTxHash(s string) bool {
	return txHashPattern.MatchString(s)
}

// DelayFunc draws the wait before a paid order is confirmed.
type DelayFunc func() time.Duration

// UniformDelay draws whole milliseconds uniformly from [min, max).
func UniformDelay(minDelay, maxDelay time.Duration) DelayFunc {
	lo := minDelay.Milliseconds()
	span := maxDelay.Milliseconds() - lo
	if span <= 0 {
		return func() time.Duration { return minDelay }
	}
	return func() time.Duration {
		return time.Duration(lo+rand.Int64N(span)) * time.Millisecond
	}
}

// FixedDelay always returns d.
func FixedDelay(d time.Duration) DelayFunc {
	return func() time.Duration { return d }
}
