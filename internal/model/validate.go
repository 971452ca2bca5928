package model

import "github.com/go-playground/validator/v10"

// Validator is shared by every package that validates structs: records,
// settings and group profiles.
var Validator = validator.New()

// Validate checks the invariants every record must satisfy before it is
// merged: a known type, a non-empty bracket-free server and a port in range.
func (o Outbound) Validate() error {
	return Validator.Struct(o)
}
