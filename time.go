package users

import "time"

// IsWithinThresholdPeriod checks if t happened less than period before now
func IsWithinThresholdPeriod(now, t time.Time, period time.Duration) bool {
	return t.After(now.Add(-period))
}

// IsOutsideThresholdPeriod is the negation of IsWithinThresholdPeriod
func IsOutsideThresholdPeriod(now, t time.Time, period time.Duration) bool {
	return !IsWithinThresholdPeriod(now, t, period)
}
