// Package catalog defines the event catalog: every topology mutation and
// every contract lifecycle operation that flows through the network, as
// closed tagged unions with a binary wire encoding.
//
// Unions are sealed interfaces. Each union also has a visitor interface with
// one method per variant; variants dispatch themselves through an unexported
// accept method, so adding a variant fails to compile until every visitor
// (encoder, journal reconstruction, renderers) handles it.
//
// Wire format (protobuf wire encoding via protowire):
//   - records are tagged fields written in ascending field-number order
//   - integers are varints, floats are fixed 64-bit, strings/bytes/records are
//     length-delimited
//   - a union is the record {1: discriminant, 2: payload}
//   - absent optional fields are not written and decode to nil
//
// Decoders never default a missing required field: they fail with
// MissingRequiredFieldError. Unknown discriminants fail with
// UnknownVariantError, out-of-range locations with FieldError wrapping
// ring.OutOfRangeError.
package catalog
