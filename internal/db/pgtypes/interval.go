// Package pgtypes maps PostgreSQL column types that pgx does not convert to
// the Go types the store works with.
package pgtypes

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const (
	microsPerDay   = int64(24 * time.Hour / time.Microsecond)
	microsPerMonth = 30 * microsPerDay
)

// Interval is a nullable INTERVAL column read as a time.Duration.
// Connections store their basic schedule period in one.
type Interval struct {
	Duration time.Duration
	Valid    bool
}

// NewInterval creates a non-null Interval
func NewInterval(d time.Duration) Interval {
	return Interval{Duration: d, Valid: true}
}

// NewNullInterval creates a NULL interval
func NewNullInterval() Interval {
	return Interval{}
}

// fromPG flattens days and months into the duration. Months count as 30 days;
// schedule periods never rely on calendar months.
func fromPG(v pgtype.Interval) Interval {
	if !v.Valid {
		return Interval{}
	}
	micros := v.Microseconds + int64(v.Days)*microsPerDay + int64(v.Months)*microsPerMonth
	return Interval{Duration: time.Duration(micros) * time.Microsecond, Valid: true}
}

// Scan implements sql.Scanner
func (i *Interval) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Interval{}
		return nil
	case pgtype.Interval:
		*i = fromPG(v)
		return nil
	case string:
		var pg pgtype.Interval
		if err := pg.Scan(v); err != nil {
			return fmt.Errorf("failed to parse interval %q: %w", v, err)
		}
		*i = fromPG(pg)
		return nil
	case []byte:
		return i.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Interval", src)
	}
}

// Value implements driver.Valuer. Postgres normalizes the microseconds.
func (i Interval) Value() (driver.Value, error) {
	if !i.Valid {
		return nil, nil
	}
	return pgtype.Interval{Microseconds: i.Duration.Microseconds(), Valid: true}, nil
}

// String returns a human-readable representation of the interval
func (i Interval) String() string {
	if !i.Valid {
		return "NULL"
	}
	return i.Duration.String()
}

// DurationOr returns the duration, or def when the interval is NULL.
func (i Interval) DurationOr(def time.Duration) time.Duration {
	if !i.Valid {
		return def
	}
	return i.Duration
}
