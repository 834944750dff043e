package db

import "strings"

// IsUniqueViolation reports whether err is a unique-constraint violation
// from any of the supported dialects.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") || // postgres
		strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "Error 1062") // mysql
}
