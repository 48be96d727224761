// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package pointers has helpers for optional values, mostly used by partial
// updates where a nil pointer means "leave unchanged".
package pointers

import "time"

// To returns a pointer to v
func To[T any](v T) *T {
	return &v
}

// Safe returns the value from ptr or the zero value if the pointer is nil
func Safe[T any](ptr *T) T {
	if ptr != nil {
		return *ptr
	}
	var zero T
	return zero
}

// Or returns the value from ptr or def if the pointer is nil
func Or[T any](ptr *T, def T) T {
	if ptr != nil {
		return *ptr
	}
	return def
}

// Assign sets *dst to *src if src is not nil and reports whether it did
func Assign[T any](dst *T, src *T) bool {
	if src == nil {
		return false
	}
	*dst = *src
	return true
}

// Int returns a pointer to the int passed as parameter
func Int(d int) *int {
	return &d
}

// String returns a pointer to the string passed as parameter
func String(s string) *string {
	return &s
}

// Time returns a pointer to t
func Time(t time.Time) *time.Time {
	return &t
}

// SafeString returns the value from ptr or "" if the pointer is nil
func SafeString(ptr *string) string {
	return Safe(ptr)
}

var (
	// True is true
	True bool = true
	// False is false
	False bool = false
)
