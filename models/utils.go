package models

import (
	"database/sql"
	"time"
)

// NullInt64 converts a pointer to an int64 to sql.NullInt64.
func NullInt64(ptr *int64) sql.NullInt64 {
	if ptr == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *ptr, Valid: true}
}

// Int64Ptr unwraps a sql.NullInt64 into a pointer, nil when NULL.
func Int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

// NullTime converts a pointer to a time.Time to sql.NullTime.
func NullTime(ptr *time.Time) sql.NullTime {
	if ptr == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *ptr, Valid: true}
}

// TimePtr unwraps a sql.NullTime into a pointer, nil when NULL.
func TimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}
