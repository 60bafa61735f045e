// Package id defines the identifier type shared with the external
// scheduler engine.
//
// The scheduler assigns every schedule a 128-bit UUID. The index row
// projected from a schedule uses the same value as its primary key, so
// CronID is a thin wrapper over uuid.UUID rather than a generated,
// prefix-qualified identifier.
package id

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// CronID identifies a schedule and its projected index entry.
type CronID struct {
	inner uuid.UUID
}

// Nil is the zero-value CronID.
var Nil CronID

// NewCronID generates a new random CronID.
func NewCronID() CronID {
	return CronID{inner: uuid.New()}
}

// ParseCronID parses a canonical UUID string into a CronID.
func ParseCronID(s string) (CronID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return CronID{inner: u}, nil
}

// MustParseCronID is like ParseCronID but panics on error. Use for
// hardcoded values in tests.
func MustParseCronID(s string) CronID {
	c, err := ParseCronID(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return c
}

// String returns the canonical UUID form.
func (c CronID) String() string {
	return c.inner.String()
}

// IsNil reports whether c is the zero value.
func (c CronID) IsNil() bool {
	return c.inner == uuid.Nil
}

// MarshalText implements encoding.TextMarshaler.
func (c CronID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CronID) UnmarshalText(b []byte) error {
	parsed, err := ParseCronID(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements driver.Valuer; CronIDs are stored as text.
func (c CronID) Value() (driver.Value, error) {
	return c.String(), nil
}

// Scan implements sql.Scanner, accepting text and byte columns.
func (c *CronID) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return c.UnmarshalText([]byte(v))
	case []byte:
		return c.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into CronID", src)
	}
}
