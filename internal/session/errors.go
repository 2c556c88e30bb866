package session

import "fmt"

// InvariantViolation reports a session or interval that broke a hard rule
// (start >= end, inconsistent zones, work time outside its span). It is fatal
// for the record or run that produced it and is never coerced into a valid value.
type InvariantViolation struct {
	RecordID string
	Detail   string
}

func (e *InvariantViolation) Error() string {
	if e.RecordID == "" {
		return "invariant violation: " + e.Detail
	}
	return fmt.Sprintf("invariant violation on %s: %s", e.RecordID, e.Detail)
}

func violation(id, detail string) error {
	return &InvariantViolation{RecordID: id, Detail: detail}
}

// NewInvariantViolation is used by other packages that check the same rules.
func NewInvariantViolation(id, detail string) error {
	return violation(id, detail)
}
