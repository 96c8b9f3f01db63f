package utils

// Ptr returns a pointer to a copy of v. Useful for optional fields that
// distinguish "unset" from the zero value.
func Ptr[T any](v T) *T {
	return &v
}
