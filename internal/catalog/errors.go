package catalog

import "fmt"

// MissingRequiredFieldError reports a required field absent from an encoding,
// or unset on a value being encoded.
type MissingRequiredFieldError struct {
	Record string
	Field  string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("%s: missing required field %q", e.Record, e.Field)
}

// UnknownVariantError reports a union discriminant outside the variant set.
type UnknownVariantError struct {
	Union        string
	Discriminant uint64
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("%s: unknown variant discriminant %d", e.Union, e.Discriminant)
}

// FieldError reports a field that is present but holds an invalid value.
type FieldError struct {
	Record string
	Field  string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Record, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// MalformedError reports bytes that are not a valid record encoding
// (truncated varints, bad lengths, wrong wire types).
type MalformedError struct {
	Record string
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: malformed encoding: %v", e.Record, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}
