package enums

import "fmt"

// ItemClass distinguishes how a stock partition is measured.
type ItemClass string

const (
	// ItemClassBulk is stock tracked by continuous quantity (meters) and
	// counted as discrete rolls.
	ItemClassBulk ItemClass = "bulk"
	// ItemClassCount is stock tracked purely by whole-piece count.
	ItemClassCount ItemClass = "count"
)

var validItemClasses = []ItemClass{
	ItemClassBulk,
	ItemClassCount,
}

// String implements fmt.Stringer.
func (i ItemClass) String() string {
	return string(i)
}

// IsValid reports whether the value is a known ItemClass.
func (i ItemClass) IsValid() bool {
	for _, candidate := range validItemClasses {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseItemClass converts raw input into an ItemClass.
func ParseItemClass(value string) (ItemClass, error) {
	for _, candidate := range validItemClasses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item class %q", value)
}
