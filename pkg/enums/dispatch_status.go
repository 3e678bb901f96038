package enums

import "fmt"

// DispatchStatus is the derived fulfillment state of an order. Transitions
// only move forward: pending -> partial -> completed.
type DispatchStatus string

const (
	DispatchStatusPending   DispatchStatus = "pending"
	DispatchStatusPartial   DispatchStatus = "partial"
	DispatchStatusCompleted DispatchStatus = "completed"
)

var validDispatchStatuses = []DispatchStatus{
	DispatchStatusPending,
	DispatchStatusPartial,
	DispatchStatusCompleted,
}

var dispatchStatusRank = map[DispatchStatus]int{
	DispatchStatusPending:   0,
	DispatchStatusPartial:   1,
	DispatchStatusCompleted: 2,
}

// String implements fmt.Stringer.
func (d DispatchStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DispatchStatus.
func (d DispatchStatus) IsValid() bool {
	for _, candidate := range validDispatchStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// AtLeast reports whether the status is at or past the other status.
func (d DispatchStatus) AtLeast(other DispatchStatus) bool {
	return dispatchStatusRank[d] >= dispatchStatusRank[other]
}

// ParseDispatchStatus converts raw input into a DispatchStatus.
func ParseDispatchStatus(value string) (DispatchStatus, error) {
	for _, candidate := range validDispatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispatch status %q", value)
}
