// Package enums holds the closed string sets persisted in the database and
// exchanged over the API. Parsing is exact and case-sensitive.
package enums

import (
	"fmt"
	"slices"
)

func parseEnum[T ~string](kind string, known []T, raw string) (T, error) {
	value := T(raw)
	if !slices.Contains(known, value) {
		var zero T
		return zero, fmt.Errorf("invalid %s %q", kind, raw)
	}
	return value, nil
}
