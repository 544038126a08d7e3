package identity

import "time"

// IsWithinThreshold reports whether t falls inside the trailing window
// ending now.
func IsWithinThreshold(t time.Time, window time.Duration) bool {
	return t.After(time.Now().Add(-window))
}

// IsOutsideThreshold is the negation of IsWithinThreshold
func IsOutsideThreshold(t time.Time, window time.Duration) bool {
	return !IsWithinThreshold(t, window)
}
