package ptr

import (
	"time"
)

// FromString returns pointer to string
func FromString(s string) *string {
	return &s
}

// String returns value of pointer or empty string
func String(s *string) string {
	return StringOr(s, "")
}

// StringOr returns value of pointer or alternative value
func StringOr(s *string, or string) string {
	if s == nil {
		return or
	}
	return *s
}

// FromTime - get the address of the time
func FromTime(t time.Time) *time.Time {
	return &t
}

// FromInt64 - get the address of the int64
func FromInt64(i int64) *int64 {
	return &i
}

// Int64Or returns value of pointer or alternative value
func Int64Or(i *int64, or int64) int64 {
	if i == nil {
		return or
	}
	return *i
}

func To[T any](v T) *T {
	return &v
}
