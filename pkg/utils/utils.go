// Package utils contains small helpers shared by the rest of the engine.
package utils

import (
	"fmt"
	"strings"
	"time"
)

const (
	// PrimaryKeySeparator joins composite primary-key values into one
	// string so a multi-column key can be used as a map key.
	PrimaryKeySeparator = "-#-"
)

// HashKey converts a composite primary key into a single string so it can
// be used as a map key in the hash and diff tables.
func HashKey(key []any) string {
	var pk []string
	for _, v := range key {
		pk = append(pk, fmt.Sprintf("%v", v))
	}
	return strings.Join(pk, PrimaryKeySeparator)
}

// UnhashKey reverses HashKey, returning the individual primary-key values
// as strings in column order.
func UnhashKey(key string) []string {
	return strings.Split(key, PrimaryKeySeparator)
}

// ErrInErr is a wrapper func to not nest too deeply in an error being
// handled inside of an already error path. Not catching the error makes
// linters unhappy, but because it's already in an error path, there's not
// much to do.
func ErrInErr(_ error) {
}

// StripPort removes a trailing :port from a hostname.
func StripPort(hostname string) string {
	if strings.Contains(hostname, ":") {
		return strings.Split(hostname, ":")[0]
	}
	return hostname
}

// ConvertToTimestampString formats t as a compact, sortable run identifier,
// e.g. 20260729143012000.
func ConvertToTimestampString(t time.Time) string {
	return fmt.Sprintf("%d%02d%02d%02d%02d%02d%03d", t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1000000)
}
