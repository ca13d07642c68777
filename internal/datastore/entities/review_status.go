package entities

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// ReviewStatus is the review state of an InspectionRecord.
// PENDING is initial; APPROVED and REJECTED are terminal.
type ReviewStatus string

const (
	StatusPending  ReviewStatus = "PENDING"
	StatusApproved ReviewStatus = "APPROVED"
	StatusRejected ReviewStatus = "REJECTED"
)

// ParseReviewStatus accepts the three states case-insensitively.
func ParseReviewStatus(s string) (ReviewStatus, error) {
	switch st := ReviewStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("unknown review status %q", s)
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s ReviewStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s ReviewStatus) String() string { return string(s) }

// Scan implements sql.Scanner. Unknown values are an error, never coerced.
func (s *ReviewStatus) Scan(value any) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		return fmt.Errorf("review status is NULL")
	default:
		return fmt.Errorf("cannot scan %T into ReviewStatus", value)
	}
	st, err := ParseReviewStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Value implements driver.Valuer.
func (s ReviewStatus) Value() (driver.Value, error) {
	if _, err := ParseReviewStatus(string(s)); err != nil {
		return nil, err
	}
	return string(s), nil
}
