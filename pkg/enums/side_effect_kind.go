package enums

import "fmt"

// SideEffectKind identifies one money-moving external side effect per entity.
type SideEffectKind string

const (
	SideEffectTransfer SideEffectKind = "transfer"
	SideEffectRefund   SideEffectKind = "refund"
)

var validSideEffectKinds = []SideEffectKind{
	SideEffectTransfer,
	SideEffectRefund,
}

func (s SideEffectKind) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SideEffectKind.
func (s SideEffectKind) IsValid() bool {
	for _, candidate := range validSideEffectKinds {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSideEffectKind converts raw input into a SideEffectKind.
func ParseSideEffectKind(value string) (SideEffectKind, error) {
	for _, candidate := range validSideEffectKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid side effect kind %q", value)
}
